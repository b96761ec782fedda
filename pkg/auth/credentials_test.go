package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	account := &Account{
		Host:     "kemono.su",
		Username: "testuser",
		Password: "hunter2-long",
	}
	require.NoError(t, manager.Store(account))
	assert.False(t, account.LastModified.IsZero())

	retrieved, err := manager.Retrieve("kemono.su", "testuser")
	require.NoError(t, err)
	assert.Equal(t, "hunter2-long", retrieved.Password)

	_, err = manager.Retrieve("coomer.su", "testuser")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	sanitized := SanitizeAccount(account)
	assert.Equal(t, "hu...ng", sanitized.Password)
	assert.Equal(t, account.Username, sanitized.Username)
	assert.Equal(t, "********", maskString("short"))

	require.NoError(t, manager.Delete("kemono.su", "testuser"))
	_, err = manager.Retrieve("kemono.su", "testuser")
	assert.Error(t, err)
	assert.Zero(t, mockStore.Count())

	assert.ErrorIs(t, manager.Delete("kemono.su", "testuser"), ErrCredentialsNotFound)
}

func TestStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	assert.Error(t, manager.Store(&Account{Username: "a", Password: "b"}))
	assert.Error(t, manager.Store(&Account{Host: "h", Password: "b"}))
	assert.Error(t, manager.Store(&Account{Host: "h", Username: "a"}))
}

func TestRetrieveDefault(t *testing.T) {
	t.Setenv(envUsername, "")
	t.Setenv(envPassword, "")

	mockStore := NewMockStore()
	manager := NewManagerWithStores(mockStore, NewEnvironmentStore())

	_, err := manager.RetrieveDefault("kemono.su")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	now := time.Now()
	mockStore.Put(Account{Host: "kemono.su", Username: "old", Password: "p", LastModified: now.Add(-time.Hour)})
	mockStore.Put(Account{Host: "kemono.su", Username: "new", Password: "p", LastModified: now})
	mockStore.Put(Account{Host: "coomer.su", Username: "other", Password: "p", LastModified: now.Add(time.Hour)})

	account, err := manager.RetrieveDefault("kemono.su")
	require.NoError(t, err)
	assert.Equal(t, "new", account.Username)

	t.Setenv(envUsername, "envuser")
	t.Setenv(envPassword, "envpass")

	account, err = manager.RetrieveDefault("kemono.su")
	require.NoError(t, err)
	assert.Equal(t, "envuser", account.Username)
	assert.Equal(t, "kemono.su", account.Host)
}

func TestListSortedAndDeduplicated(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()
	now := time.Now()

	older.Put(Account{Host: "kemono.su", Username: "bob", Password: "old", LastModified: now.Add(-time.Minute)})
	newer.Put(Account{Host: "kemono.su", Username: "bob", Password: "new", LastModified: now})
	newer.Put(Account{Host: "coomer.su", Username: "amy", Password: "x", LastModified: now})

	accounts, err := NewManagerWithStores(older, newer).List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "coomer.su", accounts[0].Host)
	assert.Equal(t, "new", accounts[1].Password)
}

func TestStoreFallsBack(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	working := NewMockStore()

	manager := NewManagerWithStores(broken, working)
	require.NoError(t, manager.Store(&Account{Host: "kemono.su", Username: "a", Password: "b"}))
	assert.Equal(t, 1, working.Count())

	onlyBroken := NewManagerWithStores(broken)
	err := onlyBroken.Store(&Account{Host: "kemono.su", Username: "a", Password: "b"})
	assert.ErrorContains(t, err, "keychain locked")
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv("CKSCRAPER_PASSPHRASE", "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "creds.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	account := &Account{Host: "coomer.su", Username: "encrypted_user", Password: "encrypted_secret"}
	require.NoError(t, store.Store(account))

	retrieved, err := store.Retrieve("coomer.su", "encrypted_user")
	require.NoError(t, err)
	assert.Equal(t, account.Password, retrieved.Password)
	assert.True(t, store.Exists("coomer.su", "encrypted_user"))
	assert.False(t, store.Exists("kemono.su", "encrypted_user"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "encrypted_secret")

	// a second store over the same file and passphrase reads it back
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	accounts, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "encrypted_user", accounts[0].Username)

	require.NoError(t, reopened.Delete("coomer.su", "encrypted_user"))
	assert.NoFileExists(t, path)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv("CKSCRAPER_PASSPHRASE", "")
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(filepath.Join(dir, "creds.enc"))
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Host: "kemono.su", Username: "u", Password: "p"}))

	info, err := os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.enc")

	t.Setenv(passphraseEnv, "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Host: "kemono.su", Username: "u", Password: "p"}))
	require.NoError(t, store.Store(&Account{Host: "coomer.su", Username: "u", Password: "q"}))

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
	assert.ErrorIs(t, store.Delete("kemono.su", "nobody"), ErrCredentialsNotFound)

	t.Setenv(passphraseEnv, "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("kemono.su", "u")
	assert.ErrorIs(t, err, errVaultCorrupt)
	assert.False(t, other.Exists("kemono.su", "u"))
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(envUsername, "env_user")
	t.Setenv(envPassword, "env_pass")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("kemono.su", "")
	require.NoError(t, err)
	assert.Equal(t, "env_user", account.Username)
	assert.Equal(t, "env_pass", account.Password)

	_, err = store.Retrieve("kemono.su", "someone_else")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	assert.ErrorIs(t, store.Store(&Account{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("kemono.su", "env_user"), ErrStoreUnavailable)
}

func TestParseCredentials(t *testing.T) {
	user, pass, err := ParseCredentials("alice:pa:ss")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "pa:ss", pass)

	for _, bad := range []string{"", "alice", "alice:", ":secret"} {
		_, _, err := ParseCredentials(bad)
		assert.ErrorIs(t, err, ErrInvalidCredentials, bad)
	}
}

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("alice\n")

	user, pass, err := Prompt(in, &out, func() ([]byte, error) { return []byte("secret\n"), nil })
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "secret", pass)
	assert.Contains(t, out.String(), "Enter your user name:")
	assert.Contains(t, out.String(), "Enter your password:")

	_, _, err = Prompt(strings.NewReader("\n"), &out, func() ([]byte, error) { return []byte("x"), nil })
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = Prompt(strings.NewReader("bob\n"), &out, func() ([]byte, error) { return nil, errors.New("no tty") })
	assert.ErrorContains(t, err, "no tty")
}

func TestShowLoginGuide(t *testing.T) {
	var out bytes.Buffer
	ShowLoginGuide(&out)
	assert.Contains(t, out.String(), "CKSCRAPER_USERNAME")
}
