package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at a temp dir so no real
// config file or .env leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://www.douyin.com", cfg.Platform.BaseURL)
	assert.Equal(t, []string{"v.douyin.com"}, cfg.Platform.ShortLinkHosts)
	assert.Equal(t, "/web/api/v2/aweme/post/", cfg.Platform.ListingPath)
	assert.Len(t, cfg.Session.UserAgents, 5)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, []int{429, 500, 502, 503, 504}, cfg.Retry.StatusCodes)
	assert.Equal(t, time.Second, cfg.RateLimit.MinDelay)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.MaxDelay)
	assert.Equal(t, 20, cfg.Listing.PageSize)
	assert.Equal(t, 1024*1024, cfg.Download.ChunkSize)
	assert.Equal(t, 50, cfg.Output.TitleMaxLength)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DYSCRAPER_BASE_URL", "https://mirror.example")
	t.Setenv("DYSCRAPER_PROXY", "http://127.0.0.1:8080")
	t.Setenv("DYSCRAPER_MAX_RETRIES", "5")
	t.Setenv("DYSCRAPER_MIN_DELAY", "250ms")
	t.Setenv("DYSCRAPER_LISTING_PARAMS", "aid=6383&device_platform=webapp")
	t.Setenv("DYSCRAPER_SHORT_LINK_HOSTS", "v.douyin.com, s.example")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://mirror.example", cfg.Platform.BaseURL)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Session.ProxyURL)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.MinDelay)
	assert.Equal(t, "6383", cfg.Platform.ListingParams["aid"])
	assert.Equal(t, "webapp", cfg.Platform.ListingParams["device_platform"])
	assert.Equal(t, []string{"v.douyin.com", "s.example"}, cfg.Platform.ShortLinkHosts)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("DYSCRAPER_MAX_RETRIES", "many")
	t.Setenv("DYSCRAPER_MAX_DELAY", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DYSCRAPER_MAX_RETRIES")
	assert.Contains(t, err.Error(), "DYSCRAPER_MAX_DELAY")
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"relative base url", func(c *Config) { c.Platform.BaseURL = "douyin.com" }, "absolute URL"},
		{"no user agents", func(c *Config) { c.Session.UserAgents = nil }, "user agent"},
		{"bad proxy", func(c *Config) { c.Session.ProxyURL = "::nope" }, "proxy URL"},
		{"unknown cookie store", func(c *Config) { c.Session.CookieStore = "s3" }, "cookie store"},
		{"encrypted without passphrase", func(c *Config) { c.Session.CookieStore = "encrypted" }, "passphrase"},
		{"inverted delays", func(c *Config) { c.RateLimit.MinDelay = 5 * time.Second }, "request delay"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "max retries"},
		{"zero page size", func(c *Config) { c.Listing.PageSize = 0 }, "page size"},
		{"zero chunk", func(c *Config) { c.Download.ChunkSize = 0 }, "chunk size"},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listing.PageSize = 0
	cfg.Download.Extension = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page size")
	assert.Contains(t, err.Error(), "file extension")
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"output":      "/tmp/out",
		"max-retries": 0,
		"concurrent":  4,
		"min-delay":   time.Duration(0),
		"max-delay":   500 * time.Millisecond,
		"no-metadata": true,
		"proxy":       "",
	})

	assert.Equal(t, "/tmp/out", cfg.Output.BaseDirectory)
	assert.Equal(t, 0, cfg.Retry.MaxRetries)
	assert.Equal(t, 4, cfg.Download.ConcurrentAccounts)
	assert.Equal(t, time.Duration(0), cfg.RateLimit.MinDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit.MaxDelay)
	assert.False(t, cfg.Output.WriteMetadata)
	assert.Empty(t, cfg.Session.ProxyURL)
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Output.BaseDirectory = "/srv/videos"
	cfg.RateLimit.MaxDelay = 7 * time.Second
	cfg.Platform.ListingParams["aid"] = "6383"
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "/srv/videos", loaded.Output.BaseDirectory)
	assert.Equal(t, 7*time.Second, loaded.RateLimit.MaxDelay)
	assert.Equal(t, "6383", loaded.Platform.ListingParams["aid"])
}

func TestLoadFromFileMissingPathIsNotAnErrorWhenSearching(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	assert.NoError(t, cfg.LoadFromFile(""))
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: [unclosed"), 0644))

	err := DefaultConfig().LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestMasked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.CookiePassphrase = "hunter2"
	cfg.Platform.ListingParams["msToken"] = "secret-token"
	cfg.Platform.ListingParams["aid"] = "6383"

	masked := cfg.Masked()
	assert.Equal(t, "********", masked.Session.CookiePassphrase)
	assert.Equal(t, "********", masked.Platform.ListingParams["msToken"])
	assert.Equal(t, "6383", masked.Platform.ListingParams["aid"])
	assert.Equal(t, "hunter2", cfg.Session.CookiePassphrase)
	assert.Equal(t, "secret-token", cfg.Platform.ListingParams["msToken"])
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "config.yaml")
	content := `
output:
  base_directory: /file/output
logging:
  level: warn
retry:
  max_retries: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("DYSCRAPER_OUTPUT_DIR", "/env/output")
	t.Setenv("DYSCRAPER_LOG_LEVEL", "error")

	cfg, err := Load(path, map[string]interface{}{"log-level": "debug"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/env/output", cfg.Output.BaseDirectory)
	assert.Equal(t, 1, cfg.Retry.MaxRetries)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.Unsetenv("DYSCRAPER_OUTPUT_DIR"))
	t.Cleanup(func() { _ = os.Unsetenv("DYSCRAPER_OUTPUT_DIR") })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DYSCRAPER_OUTPUT_DIR=/dotenv/output\n"), 0644))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "/dotenv/output", cfg.Output.BaseDirectory)
}

func TestLoadValidationFailure(t *testing.T) {
	isolate(t)

	cfg, err := Load("", map[string]interface{}{"log-level": "shout"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Nil(t, cfg)
}

func TestLoadWithHookRunsBeforeValidation(t *testing.T) {
	isolate(t)
	t.Setenv("DYSCRAPER_COOKIE_STORE", "encrypted")
	t.Setenv("DYSCRAPER_COOKIE_PASSPHRASE", "")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passphrase")

	cfg, err := LoadWithHook("", nil, func(c *Config) error {
		c.Session.CookiePassphrase = "prompted"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "prompted", cfg.Session.CookiePassphrase)

	_, err = LoadWithHook("", nil, func(*Config) error { return errors.New("cancelled") })
	assert.EqualError(t, err, "cancelled")
}
