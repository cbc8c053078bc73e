package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"dyscraper/pkg/config"
	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"
)

// Transport is an http.RoundTripper that retries transient failures of the
// wrapped transport. Retryable statuses and connection-level errors are
// retried with backoff; every other response is passed through untouched.
type Transport struct {
	// Base performs the actual exchange; http.DefaultTransport when nil
	Base http.RoundTripper
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	Backoff    BackoffStrategy
	// MaxRetryAfter caps a server supplied Retry-After delay
	MaxRetryAfter time.Duration
	// StatusCodes overrides the retryable status set
	StatusCodes []int
	// Jar receives the cookies of responses the transport consumes itself.
	// http.Client only applies cookies of the response it is handed back,
	// so retried and exhausted responses would otherwise lose theirs.
	Jar    http.CookieJar
	Logger logger.Logger

	now func() time.Time
}

// NewTransport builds a retrying transport from configuration
func NewTransport(base http.RoundTripper, cfg config.RetryConfig, log logger.Logger) *Transport {
	return &Transport{
		Base:       base,
		MaxRetries: cfg.MaxRetries,
		Backoff: &ExponentialBackoff{
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
			Multiplier: cfg.Multiplier,
		},
		MaxRetryAfter: cfg.MaxDelay,
		StatusCodes:   cfg.StatusCodes,
		Logger:        log,
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) clock() func() time.Time {
	if t.now != nil {
		return t.now
	}
	return time.Now
}

func (t *Transport) retryableStatus(code int) bool {
	if len(t.StatusCodes) == 0 {
		return errs.IsRetryableStatusCode(code)
	}
	for _, c := range t.StatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !replayable(req) {
		return t.base().RoundTrip(req)
	}

	ctx := req.Context()
	var resp *http.Response

	backoff := t.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}

	policy := &Config{
		MaxAttempts: t.MaxRetries + 1,
		Backoff: &retryAfterBackoff{
			base: backoff,
			max:  t.MaxRetryAfter,
			last: &resp,
			now:  t.clock(),
		},
		RetryIf: func(err error) bool {
			return ctx.Err() == nil && DefaultRetryIf(err)
		},
		OnRetry: func(int, error, time.Duration) {
			t.consume(req, resp)
			resp = nil
		},
		Context: ctx,
		Logger:  logger.OrDefault(t.Logger).WithField("url", req.URL.Redacted()),
	}

	attempt := 0
	err := Do(func() error {
		attempt++
		r, err := t.rewind(ctx, req, attempt)
		if err != nil {
			return err
		}
		res, err := t.base().RoundTrip(r)
		if err != nil {
			return err
		}
		resp = res
		if t.retryableStatus(res.StatusCode) {
			return &StatusError{Code: res.StatusCode}
		}
		return nil
	}, policy)

	if err == nil {
		return resp, nil
	}

	var se *StatusError
	var ex *ExhaustedError
	if errors.As(err, &se) && errors.As(err, &ex) {
		t.consume(req, resp)
		return nil, errs.Network(errs.KindExhaustedRetries,
			fmt.Sprintf("gave up after %d attempts", ex.Attempts), se.Code, nil)
	}
	t.consume(req, resp)
	return nil, err
}

// consume hands the cookies of a response that never reaches the client to
// the jar and drains it
func (t *Transport) consume(req *http.Request, resp *http.Response) {
	if resp == nil {
		return
	}
	if t.Jar != nil {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			t.Jar.SetCookies(req.URL, cookies)
		}
	}
	discard(resp)
}

// replayable reports whether the request body can be sent more than once
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// rewind prepares the request for the given attempt. Retries get a fresh
// body and the cookies the jar picked up from earlier attempts.
func (t *Transport) rewind(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 {
		return req, nil
	}
	r := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		r.Body = body
	}
	if t.Jar != nil {
		refreshCookies(r, t.Jar.Cookies(r.URL))
	}
	return r, nil
}

// refreshCookies merges jar cookies into the Cookie header, jar values
// winning by name
func refreshCookies(r *http.Request, fromJar []*http.Cookie) {
	if len(fromJar) == 0 {
		return
	}
	merged := r.Cookies()
	index := make(map[string]int, len(merged))
	for i, c := range merged {
		index[c.Name] = i
	}
	for _, c := range fromJar {
		if i, ok := index[c.Name]; ok {
			merged[i].Value = c.Value
			continue
		}
		index[c.Name] = len(merged)
		merged = append(merged, c)
	}
	r.Header.Del("Cookie")
	for _, c := range merged {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
