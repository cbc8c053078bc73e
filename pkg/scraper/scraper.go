package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dyscraper/pkg/config"
	"dyscraper/pkg/douyin"
	"dyscraper/pkg/downloader"
	"dyscraper/pkg/listing"
	"dyscraper/pkg/logger"
	"dyscraper/pkg/metadata"
	"dyscraper/pkg/models"
	"dyscraper/pkg/profile"
	"dyscraper/pkg/ratelimit"
	"dyscraper/pkg/resolver"
	"dyscraper/pkg/session"
	"dyscraper/pkg/storage"
)

// ErrNoPlayableAsset marks items the listing returned without a play URL
var ErrNoPlayableAsset = errors.New("no playable asset")

// Scraper runs the harvest pipeline for one reference at a time. Distinct
// references may run concurrently on the same Scraper.
type Scraper struct {
	resolver  Resolver
	extractor Extractor
	source    listing.Source
	pacer     ratelimit.Limiter
	fetcher   Fetcher
	storage   *storage.Manager
	observer  Observer
	config    *config.Config
	base      logger.Logger
	logger    logger.Logger
}

// Option configures a Scraper
type Option func(*Scraper)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scraper) { s.logger = l }
}

// WithResolver replaces the reference resolver
func WithResolver(r Resolver) Option {
	return func(s *Scraper) { s.resolver = r }
}

// WithExtractor replaces the profile extractor
func WithExtractor(e Extractor) Option {
	return func(s *Scraper) { s.extractor = e }
}

// WithSource replaces the listing source
func WithSource(src listing.Source) Option {
	return func(s *Scraper) { s.source = src }
}

// WithPagePacer replaces the delay applied between listing pages
func WithPagePacer(l ratelimit.Limiter) Option {
	return func(s *Scraper) { s.pacer = l }
}

// WithFetcher replaces the asset downloader
func WithFetcher(f Fetcher) Option {
	return func(s *Scraper) { s.fetcher = f }
}

// WithStorage replaces the storage manager
func WithStorage(m *storage.Manager) Option {
	return func(s *Scraper) { s.storage = m }
}

// WithObserver receives progress notifications
func WithObserver(o Observer) Option {
	return func(s *Scraper) { s.observer = o }
}

// New creates a Scraper whose components all talk through sender. Options
// override individual components.
func New(cfg *config.Config, sender session.Sender, opts ...Option) (*Scraper, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	s := &Scraper{config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.base = logger.OrDefault(s.logger)
	s.logger = logger.Component(s.base, "scraper")

	if s.resolver == nil {
		if sender == nil {
			return nil, errors.New("sender is required")
		}
		r, err := resolver.New(sender, cfg.Platform, s.base)
		if err != nil {
			return nil, fmt.Errorf("failed to create resolver: %w", err)
		}
		s.resolver = r
	}
	if s.extractor == nil {
		if sender == nil {
			return nil, errors.New("sender is required")
		}
		s.extractor = profile.New(sender, s.base)
	}
	if s.source == nil {
		if sender == nil {
			return nil, errors.New("sender is required")
		}
		s.source = listing.NewHTTPSource(sender, douyin.NewEndpoints(cfg.Platform, cfg.Listing), s.base)
	}
	if s.pacer == nil {
		s.pacer = ratelimit.New(cfg.RateLimit.PageMinDelay, cfg.RateLimit.PageMaxDelay, 0)
	}
	if s.fetcher == nil {
		if sender == nil {
			return nil, errors.New("sender is required")
		}
		s.fetcher = downloader.New(sender, cfg.Download.ChunkSize, s.base)
	}
	if s.storage == nil {
		m, err := storage.NewManager(cfg.Output, cfg.Download)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage manager: %w", err)
		}
		s.storage = m
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	return s, nil
}

// Storage returns the storage manager
func (s *Scraper) Storage() *storage.Manager {
	return s.storage
}

// Run harvests every video behind reference. The returned report is never
// nil; when the run aborts it is returned together with the triggering
// error. Listing and download failures do not abort a run.
func (s *Scraper) Run(ctx context.Context, reference string) (*models.Report, error) {
	report := models.NewReport(reference)
	log := s.logger.WithFields(map[string]interface{}{
		"run_id":    report.RunID.String(),
		"reference": reference,
	})

	log.Info("Starting run")
	s.enter(report, models.StateResolving)
	canonical, err := s.resolver.Resolve(ctx, reference)
	if err != nil {
		return s.abort(report, log, "resolve", err)
	}
	report.CanonicalURL = canonical

	s.enter(report, models.StateExtractingProfile)
	account, err := s.extractor.Extract(ctx, canonical)
	if err != nil {
		return s.abort(report, log, "extract", err)
	}
	report.Account = account
	s.observer.AccountResolved(reference, account)
	log = log.WithField("account_id", account.ID)

	dir, err := s.storage.AccountDir(account)
	if err != nil {
		return s.abort(report, log, "prepare", err)
	}
	lock, err := s.storage.Lock(dir, report.RunID.String())
	if err != nil {
		return s.abort(report, log, "lock", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.WithError(err).Warn("Failed to release account lock")
		}
	}()

	if n, err := s.storage.RemovePartials(dir); err != nil {
		log.WithError(err).Warn("Failed to clean partial files")
	} else if n > 0 {
		log.InfoWithFields("Removed partial files", map[string]interface{}{"count": n})
	}

	s.enter(report, models.StatePaginating)
	items := s.paginate(ctx, report, dir, listing.TargetOf(account), log)

	if err := ctx.Err(); err != nil {
		s.writeMetadata(report, items, dir, log)
		return s.abort(report, log, "paginate", err)
	}

	report.FinishedAt = time.Now()
	s.enter(report, models.StateDone)
	s.writeMetadata(report, items, dir, log)

	counts := report.Counts()
	log.InfoWithFields("Run finished", map[string]interface{}{
		"total":       counts.Total,
		"success":     counts.Success,
		"failed":      counts.Failed,
		"skipped":     counts.Skipped,
		"listing_end": report.ListingErr,
		"duration_ms": report.Duration().Milliseconds(),
	})
	return report, nil
}

// paginate walks the listing and processes each item as its page arrives.
// It returns the items that were processed.
func (s *Scraper) paginate(ctx context.Context, report *models.Report, dir string, target listing.Target, log logger.Logger) []models.ContentItem {
	var processed []models.ContentItem

	it := listing.NewPaginator(s.source,
		listing.WithPacer(s.pacer),
		listing.WithMaxPages(s.config.Listing.MaxPages),
		listing.WithLogger(s.base),
	).Iterate(target)

	for it.Next(ctx) {
		batch := it.Batch()
		s.observer.PageFetched(report.Reference, it.Pages(), len(batch.Items))
		log.DebugWithFields("Processing page", map[string]interface{}{
			"page":     it.Pages(),
			"items":    len(batch.Items),
			"has_more": batch.HasMore,
		})

		for _, item := range batch.Items {
			if ctx.Err() != nil {
				return processed
			}
			outcome := s.process(ctx, dir, item)
			report.Add(outcome)
			processed = append(processed, item)
			s.observer.ItemFinished(report.Reference, outcome)

			var outcomeErr error
			if outcome.Error != "" {
				outcomeErr = errors.New(outcome.Error)
			}
			logger.LogOutcome(log, outcome.ItemID, string(outcome.Status), outcome.Path, outcomeErr)
		}
	}

	if err := it.Err(); err != nil && ctx.Err() == nil {
		report.ListingErr = err.Error()
	}
	return processed
}

// process maps one item to its outcome. A file already at the destination
// is skipped without touching the network.
func (s *Scraper) process(ctx context.Context, dir string, item models.ContentItem) models.Outcome {
	outcome := models.Outcome{ItemID: item.ID, Title: item.Title}

	if item.PlayURL == "" {
		outcome.Status = models.StatusFailed
		outcome.Error = ErrNoPlayableAsset.Error()
		return outcome
	}

	path := s.storage.PathFor(dir, item)
	if s.storage.Exists(path) {
		outcome.Status = models.StatusSkipped
		outcome.Path = path
		return outcome
	}

	res, err := s.fetcher.Fetch(ctx, item.PlayURL, path)
	if err != nil {
		outcome.Status = models.StatusFailed
		outcome.Error = err.Error()
		return outcome
	}

	s.storage.MarkDownloaded(path)
	outcome.Status = models.StatusSuccess
	outcome.Path = path
	outcome.Bytes = res.Bytes
	return outcome
}

func (s *Scraper) enter(report *models.Report, state models.State) {
	report.State = state
	s.observer.StateChanged(report.Reference, state)
}

func (s *Scraper) abort(report *models.Report, log logger.Logger, stage string, err error) (*models.Report, error) {
	report.Err = err.Error()
	report.FinishedAt = time.Now()
	s.enter(report, models.StateAborted)
	log.WithError(err).ErrorWithFields("Run aborted", map[string]interface{}{
		"stage":    stage,
		"outcomes": len(report.Outcomes),
	})
	return report, err
}

// writeMetadata merges this run into the account manifest. Failures are
// logged and never fail the run.
func (s *Scraper) writeMetadata(report *models.Report, items []models.ContentItem, dir string, log logger.Logger) {
	if !s.config.Output.WriteMetadata {
		return
	}
	if report.FinishedAt.IsZero() {
		report.FinishedAt = time.Now()
	}

	manifest := metadata.Build(report, items)
	prev, err := metadata.Load(dir)
	if err != nil {
		log.WithError(err).Warn("Ignoring unreadable metadata file")
	}
	manifest.Merge(prev)

	if err := manifest.Save(dir); err != nil {
		log.WithError(err).Warn("Failed to write metadata")
		return
	}
	log.DebugWithFields("Metadata written", map[string]interface{}{
		"dir":   dir,
		"items": len(manifest.Items),
	})
}
