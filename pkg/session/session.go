package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"dyscraper/pkg/config"
	"dyscraper/pkg/cookiestore"
	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"
	"dyscraper/pkg/ratelimit"
	"dyscraper/pkg/retry"

	"golang.org/x/net/publicsuffix"
)

// Options tune a single Send
type Options struct {
	// Header values override the session defaults key by key
	Header http.Header
	// Stream hands back the live body; otherwise it is fully buffered
	Stream bool
	// NoRedirects returns 3xx responses instead of following them
	NoRedirects bool
	Body        io.Reader
}

// Sender is what components need from a Session
type Sender interface {
	Send(ctx context.Context, method, rawURL string, opts Options) (*http.Response, error)
}

var errTooManyRedirects = errors.New("too many redirects")

// Session owns the client identity shared by every component of a run:
// user agent rotation, the persistent cookie jar, the proxy and the retry
// policy. It is safe for concurrent use.
type Session struct {
	follow   *http.Client
	noFollow *http.Client
	jar      *Jar
	store    cookiestore.Store
	saveMu   sync.Mutex

	agents []string
	rngMu  sync.Mutex
	rng    *rand.Rand
	uaMu   sync.RWMutex
	lastUA string

	headers http.Header
	limiter ratelimit.Limiter
	log     logger.Logger

	transport http.RoundTripper
}

// Option configures a Session
type Option func(*Session)

// WithTransport replaces the base transport beneath the retry layer
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Session) { s.transport = rt }
}

// WithLimiter replaces the request pacer
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Session) { s.limiter = l }
}

// WithStore replaces the cookie persistence backend
func WithStore(store cookiestore.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithRand fixes the user agent random source
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rng = r }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// DefaultHeaders returns the browser-like headers sent with every request
func DefaultHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	h.Set("Cache-Control", "max-age=0")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Referer", referer)
	h.Set("sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"Windows"`)
	h.Set("sec-fetch-dest", "document")
	h.Set("sec-fetch-mode", "navigate")
	h.Set("sec-fetch-site", "none")
	h.Set("sec-fetch-user", "?1")
	return h
}

// CookieDomain returns the registrable domain cookies are scoped to, with a
// leading dot (".douyin.com")
func CookieDomain(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return host
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return "." + etld1
	}
	return host
}

// New builds a Session from configuration and restores the persisted jar
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	s := &Session{
		agents: append([]string(nil), cfg.Session.UserAgents...),
		jar:    NewJar(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(s.agents) == 0 {
		s.agents = append(s.agents, config.DefaultUserAgents...)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s.log = logger.Component(s.log, "session")
	if s.limiter == nil {
		s.limiter = ratelimit.New(cfg.RateLimit.MinDelay, cfg.RateLimit.MaxDelay, cfg.RateLimit.RequestsPerMinute)
	}
	if s.store == nil {
		store, err := cookiestore.New(cfg.Session, CookieDomain(cfg.Platform.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to open cookie store: %w", err)
		}
		s.store = store
	}

	base := s.transport
	if base == nil {
		t, err := newBaseTransport(cfg.Session)
		if err != nil {
			return nil, err
		}
		base = t
	}
	rt := retry.NewTransport(base, cfg.Retry, s.log)
	rt.Jar = s.jar

	s.headers = DefaultHeaders(strings.TrimRight(cfg.Platform.BaseURL, "/") + "/")

	maxRedirects := cfg.Session.MaxRedirects
	s.follow = &http.Client{
		Transport: rt,
		Jar:       s.jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}
	s.noFollow = &http.Client{
		Transport: rt,
		Jar:       s.jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	s.restore()
	return s, nil
}

func newBaseTransport(cfg config.SessionConfig) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   cfg.RequestTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.TLSHandshakeTimeout = cfg.RequestTimeout
	t.ResponseHeaderTimeout = cfg.RequestTimeout

	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		t.Proxy = http.ProxyURL(proxy)
	}
	return t, nil
}

// restore loads the persisted jar once; absence or failure leaves it empty
func (s *Session) restore() {
	cookies, err := s.store.Load()
	if err != nil {
		s.log.WithError(err).Warn("Could not load saved cookies, starting with an empty jar")
		return
	}
	if len(cookies) == 0 {
		return
	}
	s.jar.Restore(cookies)
	s.log.InfoWithFields("Loaded saved cookies", map[string]interface{}{
		"count": len(cookies),
		"store": s.store.Name(),
	})
}

// Jar exposes the cookie jar
func (s *Session) Jar() *Jar { return s.jar }

// Store exposes the cookie persistence backend
func (s *Session) Store() cookiestore.Store { return s.store }

// UserAgent returns the agent used by the most recent request
func (s *Session) UserAgent() string {
	s.uaMu.RLock()
	defer s.uaMu.RUnlock()
	return s.lastUA
}

func (s *Session) pickAgent() string {
	s.rngMu.Lock()
	ua := s.agents[s.rng.Intn(len(s.agents))]
	s.rngMu.Unlock()

	s.uaMu.Lock()
	s.lastUA = ua
	s.uaMu.Unlock()
	return ua
}

// Send issues one request with the session identity. The pacer runs first,
// then the retrying transport. Cookies set anywhere in the exchange are
// persisted before Send returns.
func (s *Session) Send(ctx context.Context, method, rawURL string, opts Options) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, classify(err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, opts.Body)
	if err != nil {
		return nil, errs.Network(errs.KindConnection, "invalid request", 0, err)
	}
	for key, values := range s.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	req.Header.Set("User-Agent", s.pickAgent())
	for key, values := range opts.Header {
		req.Header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}

	client := s.follow
	if opts.NoRedirects {
		client = s.noFollow
	}

	start := time.Now()
	resp, err := client.Do(req)
	s.persist()
	if err != nil {
		s.log.WithError(err).WarnWithFields("Request failed", map[string]interface{}{
			"method": method,
			"url":    redact(rawURL),
		})
		return nil, classify(err)
	}
	logger.LogRequest(s.log, method, redact(rawURL), resp.StatusCode, time.Since(start))

	if opts.Stream {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, classify(err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

// persist saves the jar if any response changed it. Failures are logged
// and never fail the request.
func (s *Session) persist() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	cookies, dirty := s.jar.TakeDirty()
	if !dirty {
		return
	}
	if err := s.store.Save(cookies); err != nil {
		s.log.WithError(err).Warn("Failed to persist cookies")
		return
	}
	s.log.DebugWithFields("Cookies saved", map[string]interface{}{
		"count": len(cookies),
		"store": s.store.Name(),
	})
}

// Flush writes the current jar regardless of changes
func (s *Session) Flush() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.store.Save(s.jar.Snapshot())
}

// classify maps transport failures onto the network error taxonomy
func classify(err error) error {
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		if ex.Attempts > 1 {
			return errs.Network(errs.KindExhaustedRetries,
				fmt.Sprintf("gave up after %d attempts", ex.Attempts), 0, ex.Err)
		}
		err = ex.Err
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, errTooManyRedirects) {
		return errs.Network(errs.KindTooManyRedirects, "redirect limit reached", 0, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Network(errs.KindTimeout, "deadline exceeded", 0, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errs.Network(errs.KindTimeout, "request timed out", 0, err)
	}
	return errs.Network(errs.KindConnection, "request failed", 0, err)
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for _, key := range []string{"msToken", "a_bogus", "X-Bogus"} {
		if q.Has(key) {
			q.Set(key, "redacted")
		}
	}
	u.RawQuery = q.Encode()
	return u.Redacted()
}
