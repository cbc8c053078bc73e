package resolver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"dyscraper/pkg/config"
	"dyscraper/pkg/cookiestore"
	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"
	"dyscraper/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	status int
	final  string
	err    error
	calls  []string
}

func (f *fakeSender) Send(ctx context.Context, method, rawURL string, opts session.Options) (*http.Response, error) {
	f.calls = append(f.calls, method+" "+rawURL)
	if f.err != nil {
		return nil, f.err
	}
	u, _ := url.Parse(f.final)
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    &http.Request{URL: u},
	}, nil
}

func newResolver(t *testing.T, sender session.Sender, shortHosts ...string) *Resolver {
	t.Helper()
	r, err := New(sender, config.PlatformConfig{
		BaseURL:        "https://site",
		ShortLinkHosts: shortHosts,
	}, logger.NewNopLogger())
	require.NoError(t, err)
	return r
}

func TestResolveCanonicalIsIdentity(t *testing.T) {
	sender := &fakeSender{}
	r := newResolver(t, sender, "v.site")

	for _, ref := range []string{
		"https://site/user/ABC123",
		"https://site/user/MS4wLjABAAAA_x-Y",
	} {
		got, err := r.Resolve(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, ref, got)
	}
	assert.Empty(t, sender.calls)
}

func TestResolveNormalizesVariants(t *testing.T) {
	r := newResolver(t, &fakeSender{}, "v.site")

	tests := []struct {
		name string
		ref  string
	}{
		{name: "http scheme", ref: "http://site/user/ABC123"},
		{name: "www subdomain", ref: "https://www.site/user/ABC123"},
		{name: "query string", ref: "https://www.site/user/ABC123?from_tab_name=main"},
		{name: "trailing path", ref: "https://site/user/ABC123/"},
		{name: "upper case host", ref: "HTTPS://WWW.SITE/user/ABC123"},
		{name: "surrounding spaces", ref: "  https://site/user/ABC123 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.Equal(t, "https://site/user/ABC123", got)
		})
	}
}

func TestResolveRejectsUnknownShapes(t *testing.T) {
	r := newResolver(t, &fakeSender{}, "v.site")

	for _, ref := range []string{
		"https://example.com",
		"not_a_url",
		"https://site/invalid/path",
		"https://site/user/",
		"https://example.com/user/ABC123",
		"",
	} {
		_, err := r.Resolve(context.Background(), ref)
		require.Error(t, err, ref)
		assert.True(t, errors.Is(err, errs.ErrInvalidReference), ref)
	}
}

func TestResolveShortLink(t *testing.T) {
	sender := &fakeSender{status: http.StatusOK, final: "https://www.iessite.com/share/user/XYZ789?sec_uid=1"}
	r := newResolver(t, sender, "v.site")

	got, err := r.Resolve(context.Background(), "https://v.site/iRNBho6u/")
	require.NoError(t, err)
	assert.Equal(t, "https://site/user/XYZ789", got)
	assert.Equal(t, []string{"HEAD https://v.site/iRNBho6u/"}, sender.calls)
}

func TestResolveShortLinkFailures(t *testing.T) {
	tests := []struct {
		name   string
		sender *fakeSender
	}{
		{name: "network failure", sender: &fakeSender{err: errs.Network(errs.KindTimeout, "deadline exceeded", 0, nil)}},
		{name: "not found", sender: &fakeSender{status: http.StatusNotFound, final: "https://v.site/gone"}},
		{name: "no profile at target", sender: &fakeSender{status: http.StatusOK, final: "https://site/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, tt.sender, "v.site")
			_, err := r.Resolve(context.Background(), "https://v.site/abc")
			require.Error(t, err)
			assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidReference))
		})
	}

	r := newResolver(t, &fakeSender{err: errs.Network(errs.KindTimeout, "deadline exceeded", 0, nil)}, "v.site")
	_, err := r.Resolve(context.Background(), "https://v.site/abc")
	assert.True(t, errors.Is(err, errs.ErrNetwork), "cause is kept in the chain")
}

func TestResolveShortLinkThroughSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/share/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/user/REDIRECTED?previous_page=app_code_link", http.StatusFound)
	})
	mux.HandleFunc("/user/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.RateLimit.MinDelay = 0
	cfg.RateLimit.MaxDelay = 0
	s, err := session.New(cfg, session.WithStore(cookiestore.NewMemoryStore()), session.WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)

	short := strings.TrimPrefix(srv.URL, "http://")
	r := newResolver(t, s, short)

	got, err := r.Resolve(context.Background(), srv.URL+"/share/")
	require.NoError(t, err)
	assert.Equal(t, "https://site/user/REDIRECTED", got)
}

func TestAccountID(t *testing.T) {
	r := newResolver(t, &fakeSender{})

	id, err := r.AccountID("https://site/user/ABC123")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", id)

	_, err = r.AccountID("https://site/video/1")
	assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidReference))
}
