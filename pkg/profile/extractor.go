package profile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"
	"dyscraper/pkg/models"
	"dyscraper/pkg/session"
)

var accountIDPattern = regexp.MustCompile(`^https?://[^/]+/user/([^/?#]+)`)

// Extractor fetches profile pages and runs the strategies over them
type Extractor struct {
	sender     session.Sender
	strategies []Strategy
	logger     logger.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithStrategies replaces the default strategy list
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) { e.strategies = strategies }
}

// New creates an Extractor
func New(sender session.Sender, log logger.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		sender:     sender,
		strategies: DefaultStrategies(),
		logger:     logger.Component(log, "profile"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AccountIDFromURL returns the id segment of a canonical profile URL
func AccountIDFromURL(canonicalURL string) (string, bool) {
	m := accountIDPattern.FindStringSubmatch(canonicalURL)
	if m == nil || m[1] == "" {
		return "", false
	}
	if id, err := url.PathUnescape(m[1]); err == nil {
		return id, true
	}
	return m[1], true
}

// Extract fetches the profile page and returns the first account a strategy
// produces. A failed fetch or a non-2xx page aborts with a network
// extraction error; unparsable markup degrades to the URL id.
func (e *Extractor) Extract(ctx context.Context, canonicalURL string) (*models.Account, error) {
	accountID, ok := AccountIDFromURL(canonicalURL)
	if !ok {
		return nil, errs.Extraction(errs.KindUnparsable, fmt.Sprintf("no account id in %q", canonicalURL), 0, nil)
	}

	resp, err := e.sender.Send(ctx, http.MethodGet, canonicalURL, session.Options{})
	if err != nil {
		return nil, errs.Extraction(errs.KindNetwork, "failed to fetch profile page", errs.StatusOf(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Extraction(errs.KindNetwork,
			fmt.Sprintf("profile page returned status %d", resp.StatusCode), resp.StatusCode, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Extraction(errs.KindNetwork, "failed to read profile page", 0, err)
	}

	doc, err := ParseDocument(bytes.NewReader(body), canonicalURL, accountID)
	if err != nil {
		// Unparsable markup still leaves the URL id.
		e.logger.WithError(err).Debug("Profile page is not parseable HTML")
		doc = &Document{URL: canonicalURL, AccountID: accountID}
	}

	return e.Run(doc)
}

// Run evaluates the strategies over an already parsed document
func (e *Extractor) Run(doc *Document) (*models.Account, error) {
	for _, s := range e.strategies {
		acct, ok := s.Extract(doc)
		if !ok {
			e.logger.DebugWithFields("Extraction strategy found nothing", map[string]interface{}{
				"strategy":   s.Name,
				"account_id": doc.AccountID,
			})
			continue
		}

		acct.Source = s.Name
		if acct.SecUID == "" && acct.ID != doc.AccountID {
			acct.SecUID = doc.AccountID
		}

		fields := map[string]interface{}{
			"account_id": acct.ID,
			"source":     s.Name,
			"degraded":   acct.Degraded,
		}
		if acct.Degraded {
			e.logger.WarnWithFields("Profile extraction degraded to identifier only", fields)
		} else {
			fields["display_name"] = acct.DisplayName
			fields["followers"] = acct.FollowerCount
			e.logger.InfoWithFields("Profile extracted", fields)
		}
		return acct, nil
	}

	return nil, errs.Extraction(errs.KindUnparsable, "no strategy produced an account", 0, nil)
}
