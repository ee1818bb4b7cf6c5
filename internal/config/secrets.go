package config

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keyring service that holds every secret.
const KeyringService = "aiassist"

// Keyring accounts.
const (
	AccountAIKey       = "ai_api_key"
	AccountMinioSecret = "minio_secret_key"
	AccountAPIToken    = "api_token"
)

var ErrSecretNotFound = errors.New("secret not found")

// SecretStore reads and writes named secrets.
type SecretStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

// KeyringStore keeps secrets in the OS keyring.
type KeyringStore struct {
	service string
}

func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = KeyringService
	}
	return &KeyringStore{service: service}
}

func (k *KeyringStore) Get(account string) (string, error) {
	v, err := keyring.Get(k.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrSecretNotFound
	}
	return v, err
}

func (k *KeyringStore) Set(account, value string) error {
	return keyring.Set(k.service, account, value)
}

// EnsureAPIToken returns the stored API token, generating and storing a new
// one when none exists yet.
func EnsureAPIToken(s SecretStore) (string, error) {
	tok, err := s.Get(AccountAPIToken)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return "", fmt.Errorf("reading api token: %w", err)
	}
	tok = uuid.NewString()
	if err := s.Set(AccountAPIToken, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}
