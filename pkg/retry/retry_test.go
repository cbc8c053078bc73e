package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{9, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterStaysInRange(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	d, ok := ParseRetryAfter("7", now)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	d, ok = ParseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	_, ok = ParseRetryAfter("", now)
	assert.False(t, ok)
	_, ok = ParseRetryAfter("soon", now)
	assert.False(t, ok)
	_, ok = ParseRetryAfter("-3", now)
	assert.False(t, ok)
}

func TestRetryAfterBackoffIsCapped(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"120"}}}
	b := &retryAfterBackoff{
		base: &ConstantBackoff{Delay: time.Second},
		max:  5 * time.Second,
		last: &resp,
		now:  time.Now,
	}
	assert.Equal(t, 5*time.Second, b.NextDelay(1))

	resp.Header.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, b.NextDelay(1))

	resp = nil
	assert.Equal(t, time.Second, b.NextDelay(1))
}

func quickConfig(max int) *Config {
	return &Config{
		MaxAttempts: max,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Context:     context.Background(),
		Logger:      logger.NewNopLogger(),
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retried []int
	cfg := quickConfig(4)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := Do(func() error {
		calls++
		if calls < 3 {
			return io.ErrUnexpectedEOF
		}
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoExhausts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return &StatusError{Code: 503}
	}, quickConfig(3))

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, 3, ex.Attempts)
	var se *StatusError
	assert.True(t, errors.As(err, &se))
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	notFound := errs.Download(errs.KindBadStatus, "gone", 404, nil)
	err := Do(func() error {
		calls++
		return notFound
	}, quickConfig(5))

	assert.Equal(t, 1, calls)
	assert.Same(t, notFound, err)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := quickConfig(0)
	cfg.Context = ctx
	cfg.Backoff = &ConstantBackoff{Delay: time.Hour}
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	err := Do(func() error { return io.ErrUnexpectedEOF }, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.False(t, DefaultRetryIf(context.DeadlineExceeded))
	assert.True(t, DefaultRetryIf(&StatusError{Code: 429}))
	assert.True(t, DefaultRetryIf(errs.Network(errs.KindTimeout, "", 0, nil)))
	assert.False(t, DefaultRetryIf(errs.Network(errs.KindTooManyRedirects, "", 0, nil)))
	assert.False(t, DefaultRetryIf(errs.Listing(errs.KindRejected, "", 403, nil)))
	assert.True(t, DefaultRetryIf(io.ErrUnexpectedEOF))
}

// scripted replays a fixed list of outcomes, one per round trip
type scripted struct {
	steps  []func(*http.Request) (*http.Response, error)
	calls  int32
	bodies []string
	closed int32
}

func (s *scripted) RoundTrip(req *http.Request) (*http.Response, error) {
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		s.bodies = append(s.bodies, string(b))
	}
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i](req)
}

func (s *scripted) status(code int, headers ...string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		h := http.Header{}
		for i := 0; i+1 < len(headers); i += 2 {
			h.Set(headers[i], headers[i+1])
		}
		return &http.Response{
			StatusCode: code,
			Header:     h,
			Body:       &trackedBody{Reader: strings.NewReader("body"), closed: &s.closed},
			Request:    req,
		}, nil
	}
}

func fail(err error) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) { return nil, err }
}

type trackedBody struct {
	io.Reader
	closed *int32
}

func (b *trackedBody) Close() error {
	atomic.AddInt32(b.closed, 1)
	return nil
}

func newTestTransport(base http.RoundTripper) *Transport {
	return &Transport{
		Base:       base,
		MaxRetries: 3,
		Backoff:    &ConstantBackoff{Delay: time.Millisecond},
		Logger:     logger.NewNopLogger(),
	}
}

func TestTransportRetriesServiceUnavailable(t *testing.T) {
	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){s.status(503), s.status(503), s.status(200)}

	req, _ := http.NewRequest(http.MethodGet, "https://site/page", nil)
	resp, err := newTestTransport(s).RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 3, s.calls)
	assert.EqualValues(t, 2, s.closed)
}

func TestTransportPassesNonRetryableStatusThrough(t *testing.T) {
	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){s.status(404)}

	req, _ := http.NewRequest(http.MethodGet, "https://site/missing", nil)
	resp, err := newTestTransport(s).RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.EqualValues(t, 1, s.calls)
}

func TestTransportExhaustsOnStatus(t *testing.T) {
	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){s.status(429)}

	req, _ := http.NewRequest(http.MethodGet, "https://site/busy", nil)
	resp, err := newTestTransport(s).RoundTrip(req)
	assert.Nil(t, resp)
	require.Error(t, err)

	assert.True(t, errs.IsType(err, errs.ErrorTypeNetwork))
	assert.Equal(t, errs.KindExhaustedRetries, errs.KindOf(err))
	assert.Equal(t, 429, errs.StatusOf(err))
	assert.EqualValues(t, 4, s.calls)
	assert.EqualValues(t, 4, s.closed)
}

func TestTransportRetriesConnectionFailure(t *testing.T) {
	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){fail(io.ErrUnexpectedEOF), s.status(200)}

	req, _ := http.NewRequest(http.MethodGet, "https://site/flaky", nil)
	resp, err := newTestTransport(s).RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 2, s.calls)
}

func TestTransportExhaustsOnConnectionFailureKeepsCause(t *testing.T) {
	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){fail(io.ErrUnexpectedEOF)}

	tr := newTestTransport(s)
	tr.MaxRetries = 1
	req, _ := http.NewRequest(http.MethodGet, "https://site/down", nil)
	_, err := tr.RoundTrip(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.EqualValues(t, 2, s.calls)
}

func TestTransportReplaysBody(t *testing.T) {
	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){s.status(502), s.status(200)}

	req, _ := http.NewRequest(http.MethodPost, "https://site/form", strings.NewReader("a=1"))
	_, err := newTestTransport(s).RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"a=1", "a=1"}, s.bodies)
}

func TestTransportDoesNotRetryOneShotBody(t *testing.T) {
	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){s.status(503), s.status(200)}

	req, _ := http.NewRequest(http.MethodPost, "https://site/form", io.NopCloser(strings.NewReader("x")))
	req.GetBody = nil
	resp, err := newTestTransport(s).RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
	assert.EqualValues(t, 1, s.calls)
}

func TestTransportZeroRetries(t *testing.T) {
	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){s.status(500)}

	tr := newTestTransport(s)
	tr.MaxRetries = 0
	req, _ := http.NewRequest(http.MethodGet, "https://site/once", nil)
	_, err := tr.RoundTrip(req)
	assert.Equal(t, errs.KindExhaustedRetries, errs.KindOf(err))
	assert.EqualValues(t, 1, s.calls)
}

func TestTransportCustomStatusCodes(t *testing.T) {
	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){s.status(503)}

	tr := newTestTransport(s)
	tr.StatusCodes = []int{429}
	req, _ := http.NewRequest(http.MethodGet, "https://site/x", nil)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestTransportHandsRetriedCookiesToJar(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	var sent []string
	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){
		s.status(503, "Set-Cookie", "ttwid=fresh; Path=/"),
		func(req *http.Request) (*http.Response, error) {
			sent = append(sent, req.Header.Get("Cookie"))
			return s.status(200)(req)
		},
	}

	tr := newTestTransport(s)
	tr.Jar = jar
	req, _ := http.NewRequest(http.MethodGet, "https://site/page", nil)
	req.Header.Set("Cookie", "ttwid=stale; other=1")

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ttwid=stale; other=1", req.Header.Get("Cookie"), "caller request untouched")
	require.Len(t, sent, 1)
	assert.Equal(t, "ttwid=fresh; other=1", sent[0])

	u, _ := url.Parse("https://site/page")
	cookies := jar.Cookies(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, "fresh", cookies[0].Value)
}

func TestTransportHandsExhaustedCookiesToJar(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	s := &scripted{}
	s.steps = []func(*http.Request) (*http.Response, error){s.status(429, "Set-Cookie", "ttwid=busy; Path=/")}

	tr := newTestTransport(s)
	tr.MaxRetries = 1
	tr.Jar = jar
	req, _ := http.NewRequest(http.MethodGet, "https://site/busy", nil)
	_, err = tr.RoundTrip(req)
	require.Error(t, err)

	u, _ := url.Parse("https://site/busy")
	require.Len(t, jar.Cookies(u), 1)
}
