package douyin

import (
	"fmt"
	"net/url"
	"strings"

	"dyscraper/pkg/config"
	"dyscraper/pkg/models"
)

const (
	// DefaultBaseURL is the web surface of the platform
	DefaultBaseURL = "https://www.douyin.com"

	// DefaultListingPath is the endpoint serving an account's posts
	DefaultListingPath = "/web/api/v2/aweme/post/"

	// DefaultPageSize is the number of items requested per listing page
	DefaultPageSize = 20

	// MaxPageSize is the largest page the listing endpoint honors
	MaxPageSize = 50
)

// reserved query keys are always set by ListingURL and cannot be overridden
// by configured params
var reserved = map[string]bool{"user_id": true, "sec_user_id": true, "count": true, "max_cursor": true}

// Endpoints builds upstream URLs from configuration
type Endpoints struct {
	baseURL     string
	listingPath string
	pageSize    int
	params      map[string]string
}

// NewEndpoints creates an endpoint builder
func NewEndpoints(platform config.PlatformConfig, listing config.ListingConfig) *Endpoints {
	base := strings.TrimRight(platform.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	path := platform.ListingPath
	if path == "" {
		path = DefaultListingPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return &Endpoints{
		baseURL:     base,
		listingPath: path,
		pageSize:    clampPageSize(listing.PageSize),
		params:      platform.ListingParams,
	}
}

func clampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// BaseURL returns the base URL without a trailing slash
func (e *Endpoints) BaseURL() string {
	return e.baseURL
}

// PageSize returns the per-page item count sent to the listing endpoint
func (e *Endpoints) PageSize() int {
	return e.pageSize
}

// ProfileURL constructs the canonical profile URL for an account
func (e *Endpoints) ProfileURL(accountID string) string {
	if accountID == "" {
		return ""
	}
	return fmt.Sprintf("%s/user/%s", e.baseURL, url.PathEscape(accountID))
}

// ListingURL constructs the URL for one page of an account's posts. An
// empty secUID falls back to accountID. Configured fingerprint params are
// passed through untouched.
func (e *Endpoints) ListingURL(accountID, secUID string, cursor models.Cursor) string {
	if secUID == "" {
		secUID = accountID
	}
	params := url.Values{}
	for key, value := range e.params {
		if reserved[key] {
			continue
		}
		params.Set(key, value)
	}
	params.Set("user_id", accountID)
	params.Set("sec_user_id", secUID)
	params.Set("count", fmt.Sprintf("%d", e.pageSize))
	params.Set("max_cursor", cursor.Param())

	return fmt.Sprintf("%s%s?%s", e.baseURL, e.listingPath, params.Encode())
}
