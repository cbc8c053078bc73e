package session

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"dyscraper/pkg/cookiestore"

	"golang.org/x/net/publicsuffix"
)

// Jar is an http.CookieJar that remembers every accepted cookie so the jar
// can be snapshotted and persisted. Matching and sending is delegated to
// net/http/cookiejar with the public suffix list.
type Jar struct {
	inner *cookiejar.Jar

	mu      sync.Mutex
	entries map[string]cookiestore.Cookie
	dirty   bool
	now     func() time.Time
}

// NewJar creates an empty jar
func NewJar() *Jar {
	inner, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &Jar{
		inner:   inner,
		entries: make(map[string]cookiestore.Cookie),
		now:     time.Now,
	}
}

// Cookies implements http.CookieJar
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// SetCookies implements http.CookieJar and marks the jar dirty
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	j.inner.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, c := range cookies {
		entry, ok := j.record(u, c, now)
		if !ok {
			continue
		}
		key := entryKey(entry)
		if entry.Expired(now) {
			delete(j.entries, key)
		} else {
			j.entries[key] = entry
		}
	}
	j.dirty = true
}

// record converts a cookie into its persisted form. It reports false for
// cookies the inner jar refuses, so they are never saved or replayed.
func (j *Jar) record(u *url.URL, c *http.Cookie, now time.Time) (cookiestore.Cookie, bool) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return cookiestore.Cookie{}, false
	}
	host := strings.ToLower(u.Hostname())
	domain, hostOnly, ok := cookieDomain(host, c.Domain)
	if !ok {
		return cookiestore.Cookie{}, false
	}

	entry := cookiestore.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		HostOnly: hostOnly,
	}

	if entry.Path == "" || !strings.HasPrefix(entry.Path, "/") {
		entry.Path = defaultPath(u.Path)
	}

	switch {
	case c.MaxAge < 0:
		entry.Expires = now.Add(-time.Second)
	case c.MaxAge > 0:
		entry.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		entry.Expires = c.Expires.UTC()
	}
	return entry, true
}

// cookieDomain applies the domain-match rules of net/http/cookiejar with
// the public suffix list: a Domain attribute must cover the request host
// and must not be a public suffix, unless it names the host itself, which
// turns the cookie host-only.
func cookieDomain(host, attr string) (domain string, hostOnly, ok bool) {
	if host == "" {
		return "", false, false
	}
	if attr == "" {
		return host, true, true
	}
	domain = strings.ToLower(attr)
	if domain[0] == '.' {
		domain = domain[1:]
	}
	if domain == "" || domain[0] == '.' || domain[len(domain)-1] == '.' {
		return "", false, false
	}

	if net.ParseIP(host) != nil || strings.Contains(host, ":") {
		if host != domain {
			return "", false, false
		}
		return host, true, true
	}

	if ps, _ := publicsuffix.PublicSuffix(domain); ps == domain {
		if host == domain {
			return host, true, true
		}
		return "", false, false
	}
	if host != domain && !strings.HasSuffix(host, "."+domain) {
		return "", false, false
	}
	return domain, false, true
}

// defaultPath follows RFC 6265 section 5.1.4
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

func entryKey(c cookiestore.Cookie) string {
	return c.Domain + ";" + c.Path + ";" + c.Name
}

// Snapshot returns the live cookies sorted by domain, path and name
func (j *Jar) Snapshot() []cookiestore.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Jar) snapshotLocked() []cookiestore.Cookie {
	now := j.now()
	out := make([]cookiestore.Cookie, 0, len(j.entries))
	for key, c := range j.entries {
		if c.Expired(now) {
			delete(j.entries, key)
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool {
		return entryKey(out[a]) < entryKey(out[b])
	})
	return out
}

// TakeDirty returns a snapshot and clears the dirty flag when the jar
// changed since the last call
func (j *Jar) TakeDirty() ([]cookiestore.Cookie, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.dirty {
		return nil, false
	}
	j.dirty = false
	return j.snapshotLocked(), true
}

// Restore replays persisted cookies into the jar without marking it dirty
func (j *Jar) Restore(cookies []cookiestore.Cookie) {
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range cookies {
		c.Domain = strings.TrimPrefix(strings.ToLower(c.Domain), ".")
		if c.Name == "" || c.Domain == "" || c.Expired(now) {
			continue
		}
		attr := c.Domain
		if c.HostOnly {
			attr = ""
		}
		if _, _, ok := cookieDomain(c.Domain, attr); !ok {
			continue
		}
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		u := &url.URL{Scheme: scheme, Host: c.Domain, Path: path}

		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if !c.HostOnly {
			hc.Domain = c.Domain
		}
		j.inner.SetCookies(u, []*http.Cookie{hc})

		c.Path = path
		j.entries[entryKey(c)] = c
	}
}

// Len returns the number of live cookies
func (j *Jar) Len() int {
	return len(j.Snapshot())
}
