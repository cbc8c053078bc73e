package cookiestore

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "dyscraper"

// KeyringStore keeps the snapshot in the system keychain
type KeyringStore struct {
	account string
}

// NewKeyringStore creates a keyring store under the given account key
func NewKeyringStore(account string) *KeyringStore {
	if account == "" {
		account = "cookies"
	}
	return &KeyringStore{account: account}
}

func (k *KeyringStore) Name() string { return "keyring" }

func (k *KeyringStore) Load() ([]Cookie, error) {
	data, err := keyring.Get(keyringService, k.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	return decodeSnapshot([]byte(data))
}

func (k *KeyringStore) Save(cookies []Cookie) error {
	content, err := encodeSnapshot(cookies)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, k.account, string(content)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Clear() error {
	err := keyring.Delete(keyringService, k.account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
