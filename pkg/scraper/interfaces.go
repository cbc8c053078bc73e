package scraper

import (
	"context"

	"dyscraper/pkg/downloader"
	"dyscraper/pkg/models"
)

// Resolver turns a user supplied reference into a canonical profile URL
type Resolver interface {
	Resolve(ctx context.Context, reference string) (string, error)
}

// Extractor builds the account identity behind a canonical profile URL
type Extractor interface {
	Extract(ctx context.Context, canonicalURL string) (*models.Account, error)
}

// Fetcher stores one asset at dest
type Fetcher interface {
	Fetch(ctx context.Context, assetURL, dest string) (*downloader.Result, error)
}

// Observer is notified as a run progresses. Calls come from the goroutine
// executing Run.
type Observer interface {
	StateChanged(reference string, state models.State)
	AccountResolved(reference string, account *models.Account)
	PageFetched(reference string, page, items int)
	ItemFinished(reference string, outcome models.Outcome)
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, models.State)       {}
func (nopObserver) AccountResolved(string, *models.Account) {}
func (nopObserver) PageFetched(string, int, int)            {}
func (nopObserver) ItemFinished(string, models.Outcome)     {}
