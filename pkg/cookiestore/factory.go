package cookiestore

import (
	"fmt"
	"os"
	"strings"

	"dyscraper/pkg/config"
)

// EnvPassphrase overrides session.cookie_passphrase
const EnvPassphrase = "DYSCRAPER_COOKIE_PASSPHRASE"

// New builds the configured backend, always chained with the read only
// environment seed so DYSCRAPER_COOKIES works regardless of backend.
func New(cfg config.SessionConfig, domain string) (Store, error) {
	var primary Store

	switch strings.ToLower(cfg.CookieStore) {
	case "", "file":
		primary = NewFileStore(cfg.CookieFile)
	case "encrypted":
		passphrase := cfg.CookiePassphrase
		if env := os.Getenv(EnvPassphrase); env != "" {
			passphrase = env
		}
		store, err := NewEncryptedFileStore(cfg.CookieFile, passphrase)
		if err != nil {
			return nil, err
		}
		primary = store
	case "keyring":
		primary = NewKeyringStore("cookies")
	case "memory":
		primary = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown cookie store %q", cfg.CookieStore)
	}

	return Chain{primary, NewEnvironmentStore(domain)}, nil
}
