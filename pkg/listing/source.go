package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"dyscraper/pkg/douyin"
	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"
	"dyscraper/pkg/models"
	"dyscraper/pkg/session"
)

// Batch is one page of a listing
type Batch struct {
	Items   []models.ContentItem
	HasMore bool
	// Cursor is the position the page was requested with
	Cursor models.Cursor
	// Next is the position the upstream returned for the following page
	Next models.Cursor
}

// Target identifies the account a listing walks
type Target struct {
	ID string
	// SecUID is the opaque profile identifier; ID stands in when it is empty
	SecUID string
}

// TargetOf returns the listing target of an extracted account
func TargetOf(account *models.Account) Target {
	if account == nil {
		return Target{}
	}
	return Target{ID: account.ID, SecUID: account.SecUID}
}

// SecUserID returns SecUID, or ID when the profile carried none
func (t Target) SecUserID() string {
	if t.SecUID != "" {
		return t.SecUID
	}
	return t.ID
}

// Source fetches one page of an account's catalog
type Source interface {
	Next(ctx context.Context, target Target, cursor models.Cursor) (Batch, error)
}

// HTTPSource reads pages from the platform's listing endpoint
type HTTPSource struct {
	sender    session.Sender
	endpoints *douyin.Endpoints
	logger    logger.Logger
}

// NewHTTPSource creates a listing source over a Session
func NewHTTPSource(sender session.Sender, endpoints *douyin.Endpoints, log logger.Logger) *HTTPSource {
	return &HTTPSource{
		sender:    sender,
		endpoints: endpoints,
		logger:    logger.Component(log, "listing"),
	}
}

// Next requests the page at cursor. It never retries; the Session already
// absorbed transient failures.
func (s *HTTPSource) Next(ctx context.Context, target Target, cursor models.Cursor) (Batch, error) {
	listingURL := s.endpoints.ListingURL(target.ID, target.SecUserID(), cursor)

	header := http.Header{}
	header.Set("Accept", "application/json, text/plain, */*")
	header.Set("Referer", s.endpoints.ProfileURL(target.SecUserID()))
	header.Set("sec-fetch-dest", "empty")
	header.Set("sec-fetch-mode", "cors")
	header.Set("sec-fetch-site", "same-origin")

	resp, err := s.sender.Send(ctx, http.MethodGet, listingURL, session.Options{Header: header})
	if err != nil {
		return Batch{}, errs.Listing(errs.KindNetwork, "listing request failed", errs.StatusOf(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Batch{}, errs.Listing(errs.KindRejected,
			fmt.Sprintf("listing returned status %d", resp.StatusCode), resp.StatusCode, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Batch{}, errs.Listing(errs.KindNetwork, "failed to read listing response", 0, err)
	}

	var payload douyin.ListingResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Batch{}, errs.Listing(errs.KindMalformedResponse, "listing response is not structured data", resp.StatusCode, err)
	}
	if payload.StatusCode != 0 {
		msg := payload.StatusMsg
		if msg == "" {
			msg = "no message"
		}
		return Batch{}, errs.Listing(errs.KindRejected,
			fmt.Sprintf("listing rejected with upstream status %d: %s", payload.StatusCode, msg), resp.StatusCode, nil)
	}

	batch := Batch{
		Items:   payload.Items(),
		HasMore: bool(payload.HasMore),
		Cursor:  cursor,
		Next:    payload.MaxCursor.Cursor(),
	}

	s.logger.DebugWithFields("Listing page fetched", map[string]interface{}{
		"account_id": target.ID,
		"cursor":     cursor.Param(),
		"next":       batch.Next.Param(),
		"items":      len(batch.Items),
		"has_more":   batch.HasMore,
	})

	return batch, nil
}
