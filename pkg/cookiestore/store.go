package cookiestore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SnapshotVersion is written into every persisted snapshot
const SnapshotVersion = 1

// Cookie is the persisted form of one jar entry
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
	// HostOnly cookies are replayed only to Domain itself, not subdomains
	HostOnly bool `json:"host_only,omitempty"`
}

// Expired reports whether the cookie has a past expiry
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// Snapshot is the on-disk document
type Snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Cookies []Cookie  `json:"cookies"`
}

// Store persists cookie jar snapshots
type Store interface {
	// Load returns the persisted cookies; an absent snapshot yields nil, nil
	Load() ([]Cookie, error)
	// Save replaces the persisted snapshot
	Save(cookies []Cookie) error
	// Clear removes the persisted snapshot
	Clear() error
	// Name identifies the backend in logs
	Name() string
}

// Errors
var (
	ErrStoreUnavailable = errors.New("cookie store unavailable")
	ErrCorrupt          = errors.New("cookie snapshot is corrupt")
)

// Chain tries stores in order, like a credential manager with fallbacks.
// Load returns the first non-empty snapshot; Save and Clear stop at the
// first store that accepts them.
type Chain []Store

func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, s := range c {
		names = append(names, s.Name())
	}
	return strings.Join(names, ",")
}

func (c Chain) Load() ([]Cookie, error) {
	var errs []error
	for _, s := range c {
		cookies, err := s.Load()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if len(cookies) > 0 {
			return cookies, nil
		}
	}
	return nil, errors.Join(errs...)
}

func (c Chain) Save(cookies []Cookie) error {
	var lastErr error
	for _, s := range c {
		err := s.Save(cookies)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("failed to save cookies: %w", lastErr)
	}
	return ErrStoreUnavailable
}

func (c Chain) Clear() error {
	var cleared bool
	var errs []error
	for _, s := range c {
		if err := s.Clear(); err != nil {
			if !errors.Is(err, ErrStoreUnavailable) {
				errs = append(errs, err)
			}
			continue
		}
		cleared = true
	}
	if !cleared {
		if len(errs) == 0 {
			return ErrStoreUnavailable
		}
		return errors.Join(errs...)
	}
	return nil
}

// MemoryStore keeps the snapshot in process. Error fields allow tests to
// inject failures.
type MemoryStore struct {
	mu      sync.RWMutex
	cookies []Cookie
	saves   int

	LoadError  error
	SaveError  error
	ClearError error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(seed ...Cookie) *MemoryStore {
	return &MemoryStore{cookies: append([]Cookie(nil), seed...)}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Load() ([]Cookie, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.cookies) == 0 {
		return nil, nil
	}
	return append([]Cookie(nil), m.cookies...), nil
}

func (m *MemoryStore) Save(cookies []Cookie) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies = append([]Cookie(nil), cookies...)
	m.saves++
	return nil
}

func (m *MemoryStore) Clear() error {
	if m.ClearError != nil {
		return m.ClearError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies = nil
	return nil
}

// Saves returns how many successful saves happened
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Mask hides all but the first and last 4 characters of a cookie value
func Mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
