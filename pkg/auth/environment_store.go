package auth

import (
	"os"
	"strings"
	"time"
)

const (
	envUsername = "CKSCRAPER_USERNAME"
	envPassword = "CKSCRAPER_PASSWORD"
)

// EnvironmentStore reads a single account from CKSCRAPER_USERNAME and
// CKSCRAPER_PASSWORD. It answers for every host.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account when username is empty or matches
func (e *EnvironmentStore) Retrieve(host, username string) (*Account, error) {
	envUser := os.Getenv(envUsername)
	envPass := os.Getenv(envPassword)

	if envUser == "" || envPass == "" {
		return nil, ErrCredentialsNotFound
	}
	if username != "" && !strings.EqualFold(username, envUser) {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Host:         host,
		Username:     envUser,
		Password:     envPass,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("", "")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(host, username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(host, username string) bool {
	_, err := e.Retrieve(host, username)
	return err == nil
}
