// Package reconciler decides where release data comes from: the in-memory
// cache, the durable store or a live scrape.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bryan-buckman/dropwatch/internal/cache"
	"github.com/bryan-buckman/dropwatch/internal/database"
	"github.com/bryan-buckman/dropwatch/internal/extractor"
	"github.com/bryan-buckman/dropwatch/internal/freshness"
	"github.com/bryan-buckman/dropwatch/internal/model"
)

var tracer = otel.Tracer("dropwatch/reconciler")

var (
	// ErrScrapeFailure means the live source failed and nothing could be
	// served in its place.
	ErrScrapeFailure = errors.New("scrape failed")
	// ErrNotFound means no release matches the requested id.
	ErrNotFound = errors.New("release not found")
	// ErrStoreFailure wraps durable store errors.
	ErrStoreFailure = errors.New("store failure")
)

var errEmptyListing = errors.New("listing is empty")

// Item request states, logged at debug level.
const (
	stateFoundFresh    = "FOUND_FRESH"
	stateFoundStale    = "FOUND_STALE"
	stateRefreshed     = "REFRESHED"
	stateRefreshFailed = "REFRESH_FAILED"
	stateNotFound      = "NOT_FOUND"
)

// Options configures a Reconciler. Store, Cache and Extractor are required.
type Options struct {
	Store     database.Store
	Cache     *cache.Listings
	Extractor extractor.Extractor
	// Resale enriches refreshed details; optional.
	Resale extractor.Resale
	Logger *slog.Logger
	// Retry defaults to DefaultRetry.
	Retry Retry
	// Now defaults to time.Now.
	Now func() time.Time
}

// Reconciler serves listings and items.
type Reconciler struct {
	store     database.Store
	cache     *cache.Listings
	extractor extractor.Extractor
	resale    extractor.Resale
	logger    *slog.Logger
	retry     Retry
	now       func() time.Time
}

// New creates a Reconciler.
func New(opts Options) *Reconciler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = DefaultRetry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.DefaultTTL)
	}
	return &Reconciler{
		store:     opts.Store,
		cache:     opts.Cache,
		extractor: opts.Extractor,
		resale:    opts.Resale,
		logger:    opts.Logger,
		retry:     opts.Retry,
		now:       opts.Now,
	}
}

// GetListing returns the current listing. A cache hit is served as is.
// Otherwise the live listing is scraped, stored and cached; if scraping
// fails the most recent stored releases are served instead.
func (r *Reconciler) GetListing(ctx context.Context) ([]model.ReleaseSummary, error) {
	ctx, span := tracer.Start(ctx, "GetListing")
	defer span.End()

	if cached, ok := r.cache.Get(cache.ListingKey); ok {
		span.SetAttributes(attribute.String("source", "cache"))
		return cached, nil
	}

	fresh, scrapeErr := r.ScrapeListing(ctx)
	if scrapeErr == nil {
		span.SetAttributes(attribute.String("source", "scrape"))
		return fresh, nil
	}
	r.logger.Warn("listing scrape failed, falling back to store", "err", scrapeErr)

	stored, err := r.store.GetRecentSummaries(ctx, extractor.MaxListingItems)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store fallback failed")
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if len(stored) == 0 {
		span.SetStatus(codes.Error, "no listing available")
		return nil, fmt.Errorf("%w: %w", ErrScrapeFailure, scrapeErr)
	}
	span.SetAttributes(attribute.String("source", "store"))
	return stored, nil
}

// ScrapeListing scrapes the live listing with retries, stores it and
// refreshes the cache. A store write failure is logged; the fresh listing
// is still cached and returned, so until the next successful write its
// items are only reachable through the cache step of GetItem's lookup.
func (r *Reconciler) ScrapeListing(ctx context.Context) ([]model.ReleaseSummary, error) {
	ctx, span := tracer.Start(ctx, "ScrapeListing")
	defer span.End()

	raw, err := withRetry(ctx, r.retry, r.logger, "listing", func(ctx context.Context) ([]model.RawItem, error) {
		items, err := r.extractor.FetchListing(ctx)
		if err != nil {
			return nil, err
		}
		items = named(items)
		if len(items) == 0 {
			return nil, errEmptyListing
		}
		return items, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing scrape failed")
		return nil, err
	}
	if len(raw) > extractor.MaxListingItems {
		raw = raw[:extractor.MaxListingItems]
	}

	batchID := uuid.NewString()
	now := r.now().UTC()
	summaries := model.Summaries(raw, batchID)
	for i := range summaries {
		summaries[i].Timestamp = now
	}
	span.SetAttributes(attribute.String("batch", batchID), attribute.Int("items", len(summaries)))

	if err := r.store.UpsertSummaries(ctx, summaries); err != nil {
		r.logger.Error("failed to store listing", "batch", batchID, "err", err)
	}
	r.cache.Set(cache.ListingKey, summaries)
	r.logger.Info("scraped listing", "batch", batchID, "items", len(summaries))
	return summaries, nil
}

func named(items []model.RawItem) []model.RawItem {
	out := items[:0:0]
	for _, it := range items {
		if strings.TrimSpace(it.Name) != "" {
			out = append(out, it)
		}
	}
	return out
}

// GetItem returns the release matching id, exactly or by prefix, with its
// detail merged in. A stale or missing detail is refreshed first; if that
// fails the existing data is returned.
func (r *Reconciler) GetItem(ctx context.Context, id string) (model.Item, error) {
	ctx, span := tracer.Start(ctx, "GetItem")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	log := r.logger.With("id", id)
	stored, err := r.locate(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Debug("item request", "state", stateNotFound)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "lookup failed")
		}
		return model.Item{}, err
	}

	detail := stored.Detail
	var lastUpdated *time.Time
	if detail != nil {
		lastUpdated = detail.LastUpdated
	}
	productURL := stored.Summary.ProductURL
	if productURL == "" && detail != nil {
		productURL = detail.ProductURL
	}

	if !freshness.IsStale(lastUpdated, r.now()) {
		log.Debug("item request", "state", stateFoundFresh)
	} else {
		log.Debug("item request", "state", stateFoundStale)
		if productURL != "" {
			summary := stored.Summary
			summary.ProductURL = productURL
			fresh, err := r.RefreshDetail(ctx, summary)
			if err != nil {
				log.Warn("detail refresh failed, serving stored data", "state", stateRefreshFailed, "err", err)
			} else {
				log.Debug("item request", "state", stateRefreshed)
				detail = &fresh
			}
		}
	}

	item, err := model.Merge(stored.Summary, detail)
	if err != nil {
		log.Error("failed to merge detail", "err", err)
	}
	return item, nil
}

// locate runs the lookup chain: exact id, id prefix, cached listing and
// finally a fresh listing.
func (r *Reconciler) locate(ctx context.Context, id string) (*model.StoredItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	stored, err := r.store.GetByID(ctx, id)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	stored, err = r.store.GetByIDPrefix(ctx, id)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	if cached, ok := r.cache.Get(cache.ListingKey); ok {
		if s, ok := findPrefix(cached, id); ok {
			return &model.StoredItem{Summary: s}, nil
		}
	}

	listing, err := r.GetListing(ctx)
	if err != nil {
		return nil, err
	}
	if s, ok := findPrefix(listing, id); ok {
		return &model.StoredItem{Summary: s}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func findPrefix(listing []model.ReleaseSummary, prefix string) (model.ReleaseSummary, bool) {
	for _, s := range listing {
		if strings.HasPrefix(s.ID, prefix) {
			return s, true
		}
	}
	return model.ReleaseSummary{}, false
}

// RefreshDetail scrapes the product page for summary, attaches resale data
// when available and stores the result.
func (r *Reconciler) RefreshDetail(ctx context.Context, summary model.ReleaseSummary) (model.ShoeDetail, error) {
	ctx, span := tracer.Start(ctx, "RefreshDetail")
	defer span.End()
	span.SetAttributes(attribute.String("id", summary.ID), attribute.String("url", summary.ProductURL))

	if summary.ProductURL == "" {
		return model.ShoeDetail{}, fmt.Errorf("%w: %s has no product url", ErrScrapeFailure, summary.ID)
	}

	raw, err := withRetry(ctx, r.retry, r.logger, "detail", func(ctx context.Context) (model.RawDetail, error) {
		return r.extractor.FetchDetail(ctx, summary.ProductURL)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detail scrape failed")
		return model.ShoeDetail{}, fmt.Errorf("%w: %w", ErrScrapeFailure, err)
	}

	detail := model.DetailFromRaw(summary, raw, r.now().UTC())
	if r.resale != nil {
		resale, err := r.resale.Lookup(ctx, detail.Name)
		if err != nil {
			r.logger.Debug("no resale data", "id", summary.ID, "err", err)
		} else {
			detail.Resale = resale
		}
	}

	if err := r.store.UpsertDetail(ctx, summary.ID, detail); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store detail")
		return model.ShoeDetail{}, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return detail, nil
}
