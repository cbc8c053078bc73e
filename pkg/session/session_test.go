package session

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"dyscraper/pkg/config"
	"dyscraper/pkg/cookiestore"
	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.RateLimit.MinDelay = 0
	cfg.RateLimit.MaxDelay = 0
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Session.RequestTimeout = 2 * time.Second
	cfg.Session.CookieStore = "memory"
	return cfg
}

func newTestSession(t *testing.T, cfg *config.Config, opts ...Option) (*Session, *cookiestore.MemoryStore) {
	t.Helper()
	store := cookiestore.NewMemoryStore()
	opts = append([]Option{WithStore(store), WithLogger(logger.NewNopLogger())}, opts...)
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	return s, store
}

func TestSendAppliesIdentityHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	cfg := testConfig()
	s, _ := newTestSession(t, cfg)

	resp, err := s.Send(context.Background(), http.MethodGet, srv.URL, Options{
		Header: http.Header{"accept": []string{"application/json"}},
	})
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))

	assert.Contains(t, cfg.Session.UserAgents, got.Get("User-Agent"))
	assert.Equal(t, got.Get("User-Agent"), s.UserAgent())
	assert.Equal(t, "https://www.douyin.com/", got.Get("Referer"))
	assert.Equal(t, "zh-CN,zh;q=0.9,en;q=0.8", got.Get("Accept-Language"))
	assert.Equal(t, "application/json", got.Get("Accept"))
}

func TestUserAgentRotationIsSeeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Session.UserAgents = []string{"ua-a", "ua-b", "ua-c"}

	pick := func(seed int64) []string {
		s, _ := newTestSession(t, cfg, WithRand(rand.New(rand.NewSource(seed))))
		var seen []string
		for i := 0; i < 5; i++ {
			_, err := s.Send(context.Background(), http.MethodGet, srv.URL, Options{})
			require.NoError(t, err)
			seen = append(seen, s.UserAgent())
		}
		return seen
	}

	assert.Equal(t, pick(42), pick(42))
}

func TestCookiesPersistedBeforeSendReturns(t *testing.T) {
	var sawCookie atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("ttwid"); err == nil {
			sawCookie.Store(c.Value)
		}
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "ttwid", Value: "abc123", Path: "/"})
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	s, store := newTestSession(t, cfg)

	_, err := s.Send(context.Background(), http.MethodGet, srv.URL+"/set", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, store.Saves())
	saved, err := store.Load()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "ttwid", saved[0].Name)
	assert.Equal(t, "abc123", saved[0].Value)

	// No new cookies means no new save
	_, err = s.Send(context.Background(), http.MethodGet, srv.URL+"/plain", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Saves())

	// A fresh session restores the jar from the same store
	sawCookie.Store("")
	fresh, err := New(cfg, WithStore(store), WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	_, err = fresh.Send(context.Background(), http.MethodGet, srv.URL+"/plain", Options{})
	require.NoError(t, err)
	assert.Equal(t, "abc123", sawCookie.Load())
}

func TestCookieSaveFailureIsOnlyLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "1"})
	}))
	defer srv.Close()

	store := cookiestore.NewMemoryStore()
	store.SaveError = errors.New("read-only filesystem")
	tl := logger.NewTestLogger()

	s, err := New(testConfig(), WithStore(store), WithLogger(tl))
	require.NoError(t, err)

	resp, err := s.Send(context.Background(), http.MethodGet, srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, tl.HasMessage("Failed to persist cookies"))
}

func TestSendRetriesTransientStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "finally")
	}))
	defer srv.Close()

	s, _ := newTestSession(t, testConfig())
	resp, err := s.Send(context.Background(), http.MethodGet, srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestCookiesFromRetriedResponsesArePersisted(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			http.SetCookie(w, &http.Cookie{Name: "ttwid", Value: "from-503", Path: "/"})
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if c, err := r.Cookie("ttwid"); err == nil {
			io.WriteString(w, c.Value)
		}
	}))
	defer srv.Close()

	s, store := newTestSession(t, testConfig())
	resp, err := s.Send(context.Background(), http.MethodGet, srv.URL, Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "from-503", string(body), "the retry replays the cookie")

	saved, err := store.Load()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "ttwid", saved[0].Name)
	assert.Equal(t, "from-503", saved[0].Value)
}

func TestCookiesPersistedWhenRetriesRunOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "ttwid", Value: "throttled", Path: "/"})
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Retry.MaxRetries = 1
	s, store := newTestSession(t, cfg)

	_, err := s.Send(context.Background(), http.MethodGet, srv.URL, Options{})
	require.Error(t, err)
	assert.Equal(t, errs.KindExhaustedRetries, errs.KindOf(err))

	saved, err := store.Load()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "throttled", saved[0].Value)
}

func TestSendExhaustsRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, _ := newTestSession(t, testConfig())
	resp, err := s.Send(context.Background(), http.MethodGet, srv.URL, Options{})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNetwork))
	assert.Equal(t, errs.KindExhaustedRetries, errs.KindOf(err))
	assert.Equal(t, http.StatusBadGateway, errs.StatusOf(err))
	assert.EqualValues(t, 4, atomic.LoadInt32(&hits))
}

func TestSendReturnsNonRetryableStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s, _ := newTestSession(t, testConfig())
	resp, err := s.Send(context.Background(), http.MethodGet, srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestSendRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landing", http.StatusFound)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "landed")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig()
	cfg.Session.MaxRedirects = 3
	s, _ := newTestSession(t, cfg)

	resp, err := s.Send(context.Background(), http.MethodHead, srv.URL+"/hop", Options{})
	require.NoError(t, err)
	assert.Equal(t, "/landing", resp.Request.URL.Path)

	resp, err = s.Send(context.Background(), http.MethodGet, srv.URL+"/hop", Options{NoRedirects: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	_, err = s.Send(context.Background(), http.MethodGet, srv.URL+"/loop", Options{})
	require.Error(t, err)
	assert.Equal(t, errs.KindTooManyRedirects, errs.KindOf(err))
}

func TestSendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	s, _ := newTestSession(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Send(ctx, http.MethodGet, srv.URL, Options{})
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNetwork))
	assert.Equal(t, errs.KindTimeout, errs.KindOf(err))
}

func TestSendConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	cfg := testConfig()
	cfg.Retry.MaxRetries = 0
	s, _ := newTestSession(t, cfg)

	_, err := s.Send(context.Background(), http.MethodGet, addr, Options{})
	require.Error(t, err)
	assert.Equal(t, errs.KindConnection, errs.KindOf(err))

	cfg.Retry.MaxRetries = 2
	s, _ = newTestSession(t, cfg)

	_, err = s.Send(context.Background(), http.MethodGet, addr, Options{})
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNetwork))
	assert.Equal(t, errs.KindExhaustedRetries, errs.KindOf(err))
	assert.Contains(t, err.Error(), "3 attempts")
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr), "the dial failure stays reachable")
}

func TestSendStreamKeepsLiveBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "streamed bytes")
	}))
	defer srv.Close()

	s, _ := newTestSession(t, testConfig())
	resp, err := s.Send(context.Background(), http.MethodGet, srv.URL, Options{Stream: true})
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "streamed bytes", string(body))
}

func TestSendHonorsCancelledContextBeforePacing(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MinDelay = time.Hour
	cfg.RateLimit.MaxDelay = time.Hour
	s, _ := newTestSession(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Send(ctx, http.MethodGet, "http://127.0.0.1:1/", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCookieDomain(t *testing.T) {
	assert.Equal(t, ".douyin.com", CookieDomain("https://www.douyin.com"))
	assert.Equal(t, ".example.co.uk", CookieDomain("https://a.b.example.co.uk/path"))
	assert.Equal(t, "127.0.0.1", CookieDomain("http://127.0.0.1:8080"))
	assert.Equal(t, "", CookieDomain("::"))
}

func TestRedact(t *testing.T) {
	out := redact("https://site/api?user_id=1&msToken=secret")
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "user_id=1")

	u, _ := url.Parse(out)
	assert.Equal(t, "redacted", u.Query().Get("msToken"))
}
