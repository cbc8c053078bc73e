package listing

import (
	"context"

	errs "dyscraper/pkg/errors"
	"dyscraper/pkg/logger"
	"dyscraper/pkg/models"
	"dyscraper/pkg/ratelimit"
)

// ShouldStop reports whether pagination ends after a page requested with
// used returned next. It ends when the upstream says there is nothing more,
// when next is the zero cursor, or when next did not advance.
func ShouldStop(used, next models.Cursor, hasMore bool) bool {
	if !hasMore || next.IsZero() {
		return true
	}
	return next.Param() == used.Param()
}

// Paginator walks a Source page by page
type Paginator struct {
	source   Source
	pacer    ratelimit.Limiter
	maxPages int
	logger   logger.Logger
}

// Option configures a Paginator
type Option func(*Paginator)

// WithPacer sets the delay applied between successive pages
func WithPacer(l ratelimit.Limiter) Option {
	return func(p *Paginator) { p.pacer = l }
}

// WithMaxPages caps the number of pages fetched; 0 means no cap
func WithMaxPages(n int) Option {
	return func(p *Paginator) { p.maxPages = n }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(p *Paginator) { p.logger = l }
}

// NewPaginator creates a Paginator
func NewPaginator(source Source, opts ...Option) *Paginator {
	p := &Paginator{source: source}
	for _, opt := range opts {
		opt(p)
	}
	if p.pacer == nil {
		p.pacer = ratelimit.Nop{}
	}
	p.logger = logger.Component(p.logger, "paginator")
	return p
}

// Iterate starts a fresh walk from the zero cursor
func (p *Paginator) Iterate(target Target) *Iterator {
	return &Iterator{p: p, target: target, seen: make(map[string]bool)}
}

// Iterator is a pull-based walk over one account's pages. It is not safe
// for concurrent use.
//
//	it := paginator.Iterate(listing.TargetOf(account))
//	for it.Next(ctx) {
//		handle(it.Batch())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	p      *Paginator
	target Target
	cursor models.Cursor
	// seen holds every cursor already requested, so a cycle ends the walk
	seen  map[string]bool
	pages int
	batch Batch
	done  bool
	err   error
}

// Next fetches the following page, returning false once the listing ended
// or failed. An empty page ends the listing and is not yielded.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}
	if it.p.maxPages > 0 && it.pages >= it.p.maxPages {
		it.p.logger.InfoWithFields("Page limit reached", map[string]interface{}{
			"account_id": it.target.ID,
			"pages":      it.pages,
		})
		return it.finish(nil)
	}

	if it.pages > 0 {
		if err := it.p.pacer.Wait(ctx); err != nil {
			return it.finish(errs.Listing(errs.KindNetwork, "listing interrupted", 0, err))
		}
	}

	used := it.cursor
	it.seen[used.Param()] = true
	batch, err := it.p.source.Next(ctx, it.target, used)
	if err != nil {
		it.p.logger.WithError(err).WarnWithFields("Listing ended early", map[string]interface{}{
			"account_id": it.target.ID,
			"cursor":     used.Param(),
			"kind":       string(errs.KindOf(err)),
		})
		return it.finish(err)
	}
	it.pages++

	if len(batch.Items) == 0 {
		return it.finish(nil)
	}

	it.batch = batch
	switch {
	case ShouldStop(used, batch.Next, batch.HasMore):
		it.done = true
	case it.seen[batch.Next.Param()]:
		it.p.logger.WarnWithFields("Listing cursor repeated, stopping", map[string]interface{}{
			"account_id": it.target.ID,
			"cursor":     batch.Next.Param(),
			"pages":      it.pages,
		})
		it.done = true
	default:
		it.cursor = batch.Next
	}
	return true
}

func (it *Iterator) finish(err error) bool {
	it.done = true
	it.err = err
	it.batch = Batch{}
	return false
}

// Batch returns the page produced by the last successful Next
func (it *Iterator) Batch() Batch { return it.batch }

// Err returns the error that ended the listing, if any
func (it *Iterator) Err() error { return it.err }

// Cursor returns the cursor the next page will be requested with
func (it *Iterator) Cursor() models.Cursor { return it.cursor }

// Pages returns the number of pages fetched so far
func (it *Iterator) Pages() int { return it.pages }

// Collect drains it, returning every item seen along with the error that
// ended the listing, if any
func Collect(ctx context.Context, it *Iterator) ([]models.ContentItem, error) {
	var items []models.ContentItem
	for it.Next(ctx) {
		items = append(items, it.Batch().Items...)
	}
	return items, it.Err()
}
