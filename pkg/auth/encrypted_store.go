package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultVersion  = 2
	kdfRounds     = 100000
	passphraseEnv = "CKSCRAPER_PASSPHRASE"
)

var errVaultCorrupt = errors.New("credential file is corrupt or the passphrase is wrong")

// EncryptedFileStore keeps accounts in an AES-GCM sealed file. The key is
// derived with PBKDF2 from CKSCRAPER_PASSPHRASE, or from a random passphrase
// kept in a .passphrase file next to the vault.
type EncryptedFileStore struct {
	mu         sync.RWMutex
	path       string
	passphrase []byte
}

// vaultFile is the on-disk layout. Salt and nonce change on every write.
type vaultFile struct {
	Version int    `json:"version"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Sealed  []byte `json:"sealed"`
}

// vault maps accountKey(host, username) to the account
type vault map[string]Account

// NewEncryptedFileStore opens (without reading) the vault at path
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	passphrase, err := loadPassphrase(filepath.Join(filepath.Dir(path), ".passphrase"))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(v vault) error {
		v[account.Key()] = *account
		return nil
	})
}

func (e *EncryptedFileStore) Retrieve(host, username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}
	v, err := e.view()
	if err != nil {
		return nil, err
	}
	account, ok := v[accountKey(host, username)]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

func (e *EncryptedFileStore) List() ([]*Account, error) {
	v, err := e.view()
	if err != nil {
		return nil, err
	}
	accounts := make([]*Account, 0, len(v))
	for _, account := range v {
		accounts = append(accounts, &account)
	}
	return accounts, nil
}

// Delete removes one account. The vault file goes away with the last one.
func (e *EncryptedFileStore) Delete(host, username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(v vault) error {
		key := accountKey(host, username)
		if _, ok := v[key]; !ok {
			return ErrCredentialsNotFound
		}
		delete(v, key)
		return nil
	})
}

func (e *EncryptedFileStore) Exists(host, username string) bool {
	_, err := e.Retrieve(host, username)
	return err == nil
}

// view reads the vault; a missing file is an empty vault
func (e *EncryptedFileStore) view() (vault, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.read()
}

// update applies fn to the vault and writes the result back
func (e *EncryptedFileStore) update(fn func(vault) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.read()
	if err != nil {
		return err
	}
	if err := fn(v); err != nil {
		return err
	}
	if len(v) == 0 {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return e.write(v)
}

func (e *EncryptedFileStore) read() (vault, error) {
	raw, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return vault{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", e.path, err)
	}

	var f vaultFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", e.path, err)
	}
	gcm, err := newGCM(e.passphrase, f.Salt)
	if err != nil {
		return nil, err
	}
	if len(f.Nonce) != gcm.NonceSize() {
		return nil, errVaultCorrupt
	}
	plain, err := gcm.Open(nil, f.Nonce, f.Sealed, nil)
	if err != nil {
		return nil, errVaultCorrupt
	}

	v := vault{}
	if err := json.Unmarshal(plain, &v); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return v, nil
}

func (e *EncryptedFileStore) write(v vault) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}

	f := vaultFile{Version: vaultVersion, Salt: randomBytes(32)}
	gcm, err := newGCM(e.passphrase, f.Salt)
	if err != nil {
		return err
	}
	f.Nonce = randomBytes(gcm.NonceSize())
	f.Sealed = gcm.Seal(nil, f.Nonce, plain, nil)

	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, e.path)
}

// newGCM derives the vault key from passphrase and salt
func newGCM(passphrase, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(passphrase, salt, kdfRounds, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// loadPassphrase prefers the environment, then the passphrase file, and
// creates that file when neither exists
func loadPassphrase(file string) ([]byte, error) {
	if pass := os.Getenv(passphraseEnv); pass != "" {
		return []byte(pass), nil
	}
	if pass, err := os.ReadFile(file); err == nil && len(pass) > 0 {
		return pass, nil
	}

	pass := []byte(base64.RawURLEncoding.EncodeToString(randomBytes(32)))
	if err := os.WriteFile(file, pass, 0600); err != nil {
		return nil, fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

// randomBytes panics if the system random source fails
func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return b
}
