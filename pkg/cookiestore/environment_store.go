package cookiestore

import (
	"net/http"
	"os"
	"strings"
)

// EnvCookies holds a browser style "name=value; name2=value2" cookie header
const EnvCookies = "DYSCRAPER_COOKIES"

// EnvironmentStore seeds the jar from an environment variable. It is read
// only; Save and Clear report ErrStoreUnavailable.
type EnvironmentStore struct {
	domain string
	getenv func(string) string
}

// NewEnvironmentStore scopes seeded cookies to domain (e.g. ".douyin.com")
func NewEnvironmentStore(domain string) *EnvironmentStore {
	return &EnvironmentStore{domain: domain, getenv: os.Getenv}
}

func (e *EnvironmentStore) Name() string { return "environment" }

func (e *EnvironmentStore) Load() ([]Cookie, error) {
	raw := strings.TrimSpace(e.getenv(EnvCookies))
	if raw == "" {
		return nil, nil
	}

	parsed, err := http.ParseCookie(raw)
	if err != nil {
		return nil, err
	}

	cookies := make([]Cookie, 0, len(parsed))
	for _, c := range parsed {
		cookies = append(cookies, Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: e.domain,
			Path:   "/",
		})
	}
	return cookies, nil
}

func (e *EnvironmentStore) Save([]Cookie) error { return ErrStoreUnavailable }

func (e *EnvironmentStore) Clear() error { return ErrStoreUnavailable }
