package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"dyscraper/pkg/config"
	"dyscraper/pkg/douyin"
	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"
	"dyscraper/pkg/session"
)

// userSegment finds the account id in any URL, including redirect targets
// on other hosts of the platform
var userSegment = regexp.MustCompile(`/user/([^/?#]+)`)

// Resolver turns user supplied references into canonical profile URLs
type Resolver struct {
	sender    session.Sender
	endpoints *douyin.Endpoints
	profile   *regexp.Regexp
	shortLink *regexp.Regexp
	logger    logger.Logger
}

// New creates a Resolver for the configured platform hosts
func New(sender session.Sender, platform config.PlatformConfig, log logger.Logger) (*Resolver, error) {
	endpoints := douyin.NewEndpoints(platform, config.ListingConfig{})

	base, err := url.Parse(endpoints.BaseURL())
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", platform.BaseURL)
	}
	host := strings.TrimPrefix(strings.ToLower(base.Host), "www.")

	r := &Resolver{
		sender:    sender,
		endpoints: endpoints,
		profile:   regexp.MustCompile(`^https?://(?:www\.)?` + regexp.QuoteMeta(host) + `/user/([^/?#]+)`),
		logger:    logger.Component(log, "resolver"),
	}

	if len(platform.ShortLinkHosts) > 0 {
		quoted := make([]string, 0, len(platform.ShortLinkHosts))
		for _, h := range platform.ShortLinkHosts {
			if h = strings.TrimSpace(h); h != "" {
				quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(h)))
			}
		}
		if len(quoted) > 0 {
			r.shortLink = regexp.MustCompile(`^https?://(?:` + strings.Join(quoted, "|") + `)/([^/?#]+)/?(?:[?#].*)?$`)
		}
	}

	return r, nil
}

// Resolve returns the canonical profile URL for reference. Short links are
// expanded with a redirect-following HEAD request.
func (r *Resolver) Resolve(ctx context.Context, reference string) (string, error) {
	ref := strings.TrimSpace(reference)

	if id := r.matchProfile(ref); id != "" {
		return r.endpoints.ProfileURL(id), nil
	}

	if r.shortLink != nil && r.shortLink.MatchString(lowerHost(ref)) {
		final, err := r.expand(ctx, ref)
		if err != nil {
			return "", err
		}
		m := userSegment.FindStringSubmatch(final)
		if m == nil || m[1] == "" {
			return "", errs.InvalidReference(fmt.Sprintf("short link %s did not lead to a profile", ref), nil)
		}
		canonical := r.endpoints.ProfileURL(m[1])
		r.logger.DebugWithFields("Short link expanded", map[string]interface{}{
			"reference": ref,
			"resolved":  final,
			"canonical": canonical,
		})
		return canonical, nil
	}

	return "", errs.InvalidReference(fmt.Sprintf("unrecognized reference %q", reference), nil)
}

// AccountID extracts the account id from a canonical profile URL
func (r *Resolver) AccountID(canonicalURL string) (string, error) {
	if id := r.matchProfile(strings.TrimSpace(canonicalURL)); id != "" {
		return id, nil
	}
	return "", errs.InvalidReference(fmt.Sprintf("no account id in %q", canonicalURL), nil)
}

func (r *Resolver) matchProfile(ref string) string {
	m := r.profile.FindStringSubmatch(lowerHost(ref))
	if m == nil {
		return ""
	}
	if id, err := url.PathUnescape(m[1]); err == nil {
		return id
	}
	return m[1]
}

func (r *Resolver) expand(ctx context.Context, ref string) (string, error) {
	resp, err := r.sender.Send(ctx, http.MethodHead, ref, session.Options{})
	if err != nil {
		return "", errs.InvalidReference(fmt.Sprintf("failed to expand short link %s", ref), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errs.InvalidReference(
			fmt.Sprintf("short link %s answered with status %d", ref, resp.StatusCode), nil)
	}
	if resp.Request == nil || resp.Request.URL == nil {
		return ref, nil
	}
	return resp.Request.URL.String(), nil
}

// lowerHost lowercases the scheme and host so matching is case-insensitive
// there while the id keeps its case
func lowerHost(ref string) string {
	i := strings.Index(ref, "://")
	if i < 0 {
		return ref
	}
	rest := ref[i+3:]
	end := strings.IndexAny(rest, "/?#")
	if end < 0 {
		end = len(rest)
	}
	return strings.ToLower(ref[:i+3+end]) + rest[end:]
}
