package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DYSCRAPER_"

// Config holds all configuration options for the harvester
type Config struct {
	// Upstream platform surface
	Platform PlatformConfig `yaml:"platform" json:"platform"`

	// HTTP client identity and cookie persistence
	Session SessionConfig `yaml:"session" json:"session"`

	// Cooperative pacing between requests
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Transport-level retry policy
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Listing pagination settings
	Listing ListingConfig `yaml:"listing" json:"listing"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PlatformConfig describes the upstream endpoints
type PlatformConfig struct {
	BaseURL        string            `yaml:"base_url" json:"base_url"`
	ShortLinkHosts []string          `yaml:"short_link_hosts" json:"short_link_hosts"`
	ListingPath    string            `yaml:"listing_path" json:"listing_path"`
	// ListingParams are opaque fingerprint values (aid, device_platform,
	// msToken, ...) appended verbatim to every listing request.
	ListingParams map[string]string `yaml:"listing_params" json:"listing_params"`
}

// SessionConfig holds client identity settings
type SessionConfig struct {
	UserAgents       []string      `yaml:"user_agents" json:"user_agents"`
	ProxyURL         string        `yaml:"proxy_url" json:"proxy_url"`
	CookieStore      string        `yaml:"cookie_store" json:"cookie_store"`
	CookieFile       string        `yaml:"cookie_file" json:"cookie_file"`
	CookiePassphrase string        `yaml:"cookie_passphrase" json:"cookie_passphrase"`
	RequestTimeout   time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxRedirects     int           `yaml:"max_redirects" json:"max_redirects"`
}

// RateLimitConfig holds request pacing configuration
type RateLimitConfig struct {
	MinDelay          time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	PageMinDelay      time.Duration `yaml:"page_min_delay" json:"page_min_delay"`
	PageMaxDelay      time.Duration `yaml:"page_max_delay" json:"page_max_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetryConfig holds retry configuration for transient failures
type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
	StatusCodes []int         `yaml:"status_codes" json:"status_codes"`
}

// ListingConfig holds pagination settings
type ListingConfig struct {
	PageSize int `yaml:"page_size" json:"page_size"`
	MaxPages int `yaml:"max_pages" json:"max_pages"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ChunkSize          int    `yaml:"chunk_size" json:"chunk_size"`
	Extension          string `yaml:"extension" json:"extension"`
	ConcurrentAccounts int    `yaml:"concurrent_accounts" json:"concurrent_accounts"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory  string `yaml:"base_directory" json:"base_directory"`
	TitleMaxLength int    `yaml:"title_max_length" json:"title_max_length"`
	WriteMetadata  bool   `yaml:"write_metadata" json:"write_metadata"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultUserAgents is the rotation pool used when none is configured
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			BaseURL:        "https://www.douyin.com",
			ShortLinkHosts: []string{"v.douyin.com"},
			ListingPath:    "/web/api/v2/aweme/post/",
			ListingParams:  map[string]string{},
		},
		Session: SessionConfig{
			UserAgents:     append([]string(nil), DefaultUserAgents...),
			CookieStore:    "file",
			CookieFile:     filepath.Join("data", "cookies.json"),
			RequestTimeout: 10 * time.Second,
			MaxRedirects:   10,
		},
		RateLimit: RateLimitConfig{
			MinDelay:          1 * time.Second,
			MaxDelay:          3 * time.Second,
			PageMinDelay:      1 * time.Second,
			PageMaxDelay:      3 * time.Second,
			RequestsPerMinute: 0, // 0 disables the hard ceiling
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    60 * time.Second,
			Multiplier:  2.0,
			StatusCodes: []int{429, 500, 502, 503, 504},
		},
		Listing: ListingConfig{
			PageSize: 20,
			MaxPages: 0,
		},
		Download: DownloadConfig{
			ChunkSize:          1024 * 1024,
			Extension:          "mp4",
			ConcurrentAccounts: 1,
		},
		Output: OutputConfig{
			BaseDirectory:  filepath.Join("data", "downloads"),
			TitleMaxLength: 50,
			WriteMetadata:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := env("BASE_URL"); v != "" {
		c.Platform.BaseURL = v
	}
	if v := env("SHORT_LINK_HOSTS"); v != "" {
		c.Platform.ShortLinkHosts = splitList(v)
	}
	if v := env("LISTING_PARAMS"); v != "" {
		values, err := url.ParseQuery(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLISTING_PARAMS: %w", envPrefix, err))
		} else {
			if c.Platform.ListingParams == nil {
				c.Platform.ListingParams = map[string]string{}
			}
			for key := range values {
				c.Platform.ListingParams[key] = values.Get(key)
			}
		}
	}

	if v := env("PROXY"); v != "" {
		c.Session.ProxyURL = v
	}
	if v := env("USER_AGENT"); v != "" {
		c.Session.UserAgents = []string{v}
	}
	if v := env("COOKIE_STORE"); v != "" {
		c.Session.CookieStore = v
	}
	if v := env("COOKIE_FILE"); v != "" {
		c.Session.CookieFile = v
	}
	if v := env("COOKIE_PASSPHRASE"); v != "" {
		c.Session.CookiePassphrase = v
	}

	envInt("MAX_RETRIES", &c.Retry.MaxRetries, &errs)
	envInt("REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute, &errs)
	envInt("CONCURRENT_ACCOUNTS", &c.Download.ConcurrentAccounts, &errs)
	envInt("MAX_PAGES", &c.Listing.MaxPages, &errs)
	envDuration("MIN_DELAY", &c.RateLimit.MinDelay, &errs)
	envDuration("MAX_DELAY", &c.RateLimit.MaxDelay, &errs)

	if v := env("OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := env("LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func envInt(key string, dst *int, errs *[]error) {
	v := env(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return
	}
	*dst = n
}

func envDuration(key string, dst *time.Duration, errs *[]error) {
	v := env(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return
	}
	*dst = d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile searches for a config file in the standard locations and
// returns "" when there is none
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".dyscraper.yaml",
		".dyscraper.yml",
		filepath.Join(home, ".config", "dyscraper", "config.yaml"),
		filepath.Join(home, ".config", "dyscraper", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	base, err := url.Parse(c.Platform.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		errs = append(errs, fmt.Errorf("platform base URL %q must be an absolute URL", c.Platform.BaseURL))
	}
	if c.Platform.ListingPath == "" {
		errs = append(errs, errors.New("listing path is required"))
	}

	if len(c.Session.UserAgents) == 0 {
		errs = append(errs, errors.New("at least one user agent is required"))
	}
	if c.Session.ProxyURL != "" {
		if p, err := url.Parse(c.Session.ProxyURL); err != nil || p.Host == "" {
			errs = append(errs, fmt.Errorf("proxy URL %q is invalid", c.Session.ProxyURL))
		}
	}
	switch strings.ToLower(c.Session.CookieStore) {
	case "file", "memory", "keyring":
	case "encrypted":
		if c.Session.CookiePassphrase == "" {
			errs = append(errs, errors.New("encrypted cookie store requires a passphrase"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid cookie store %q", c.Session.CookieStore))
	}
	if c.Session.CookieStore != "memory" && c.Session.CookieStore != "keyring" && c.Session.CookieFile == "" {
		errs = append(errs, errors.New("cookie file is required"))
	}
	if c.Session.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.Session.MaxRedirects < 0 {
		errs = append(errs, errors.New("max redirects cannot be negative"))
	}

	if c.RateLimit.MinDelay < 0 || c.RateLimit.MaxDelay < c.RateLimit.MinDelay {
		errs = append(errs, errors.New("request delay bounds must satisfy 0 <= min <= max"))
	}
	if c.RateLimit.PageMinDelay < 0 || c.RateLimit.PageMaxDelay < c.RateLimit.PageMinDelay {
		errs = append(errs, errors.New("page delay bounds must satisfy 0 <= min <= max"))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}

	if c.Listing.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Listing.MaxPages < 0 {
		errs = append(errs, errors.New("max pages cannot be negative"))
	}

	if c.Download.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk size must be positive"))
	}
	if c.Download.Extension == "" {
		errs = append(errs, errors.New("file extension is required"))
	}
	if c.Download.ConcurrentAccounts <= 0 {
		errs = append(errs, errors.New("concurrent accounts must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.TitleMaxLength <= 0 {
		errs = append(errs, errors.New("title max length must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Masked returns a copy safe to print, with secrets hidden
func (c *Config) Masked() *Config {
	cp := *c
	if cp.Session.CookiePassphrase != "" {
		cp.Session.CookiePassphrase = "********"
	}
	if len(c.Platform.ListingParams) > 0 {
		cp.Platform.ListingParams = make(map[string]string, len(c.Platform.ListingParams))
		for k, v := range c.Platform.ListingParams {
			if strings.EqualFold(k, "msToken") || strings.EqualFold(k, "a_bogus") {
				v = "********"
			}
			cp.Platform.ListingParams[k] = v
		}
	}
	return &cp
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["proxy"].(string); ok && v != "" {
		c.Session.ProxyURL = v
	}
	if v, ok := flags["cookie-file"].(string); ok && v != "" {
		c.Session.CookieFile = v
	}
	if v, ok := flags["cookie-store"].(string); ok && v != "" {
		c.Session.CookieStore = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["max-retries"].(int); ok && v >= 0 {
		c.Retry.MaxRetries = v
	}
	if v, ok := flags["max-pages"].(int); ok && v >= 0 {
		c.Listing.MaxPages = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentAccounts = v
	}
	if v, ok := flags["min-delay"].(time.Duration); ok && v >= 0 {
		c.RateLimit.MinDelay = v
	}
	if v, ok := flags["max-delay"].(time.Duration); ok && v >= 0 {
		c.RateLimit.MaxDelay = v
	}
	if v, ok := flags["no-metadata"].(bool); ok && v {
		c.Output.WriteMetadata = false
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	return LoadWithHook(configPath, flags, nil)
}

// LoadWithHook is Load with a hook that may complete the merged configuration
// (for example by prompting for a secret) before it is validated
func LoadWithHook(configPath string, flags map[string]interface{}, hook func(*Config) error) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".dyscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if hook != nil {
		if err := hook(config); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
