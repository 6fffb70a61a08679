// Package refresher keeps stored details fresh and the store bounded.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/bryan-buckman/dropwatch/internal/database"
	"github.com/bryan-buckman/dropwatch/internal/model"
)

const (
	// Schedule runs the jobs daily at local midnight.
	Schedule = "0 0 * * *"
	// DefaultPace is the spacing between detail scrapes in one run.
	DefaultPace = 2 * time.Second
	// RetentionLimit is how many releases the trim keeps.
	RetentionLimit = 1000
)

// DetailRefresher re-scrapes and stores the detail of one release.
type DetailRefresher interface {
	RefreshDetail(ctx context.Context, summary model.ReleaseSummary) (model.ShoeDetail, error)
}

// Report summarizes one refresh run.
type Report struct {
	Candidates int
	Refreshed  int
	Failed     int
	Skipped    int
}

// Options configures a Refresher.
type Options struct {
	Store   database.Store
	Details DetailRefresher
	Logger  *slog.Logger
	// Pace defaults to DefaultPace. Negative disables pacing.
	Pace time.Duration
	// Keep defaults to RetentionLimit.
	Keep int
	// Location defaults to time.Local.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// Refresher runs the daily detail refresh and retention trim.
type Refresher struct {
	store   database.Store
	details DetailRefresher
	logger  *slog.Logger
	pace    time.Duration
	keep    int
	now     func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	runMu  sync.Mutex
}

// New creates a Refresher.
func New(opts Options) *Refresher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Pace == 0 {
		opts.Pace = DefaultPace
	}
	if opts.Keep <= 0 {
		opts.Keep = RetentionLimit
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	logger := opts.Logger.With("component", "refresher")
	return &Refresher{
		store:   opts.Store,
		details: opts.Details,
		logger:  logger,
		pace:    opts.Pace,
		keep:    opts.Keep,
		now:     opts.Now,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// RunOnce refreshes every release whose detail is missing or stale, one
// at a time. Per-item failures are logged and counted, never fatal.
func (r *Refresher) RunOnce(ctx context.Context) (Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	var report Report
	candidates, err := r.store.GetStaleDetailCandidates(ctx, r.now())
	if err != nil {
		return report, fmt.Errorf("list stale details: %w", err)
	}
	report.Candidates = len(candidates)
	r.logger.Info("refreshing stale details", "candidates", len(candidates))

	limit := rate.Inf
	if r.pace > 0 {
		limit = rate.Every(r.pace)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, c := range candidates {
		if c.ProductURL == "" {
			report.Skipped++
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			r.logger.Warn("refresh cancelled", "done", report.Refreshed+report.Failed, "of", len(candidates))
			return report, err
		}
		if err := r.refreshOne(ctx, c); err != nil {
			if errors.Is(err, context.Canceled) {
				return report, err
			}
			report.Failed++
			r.logger.Warn("detail refresh failed", "id", c.ID, "err", err)
			continue
		}
		report.Refreshed++
	}

	r.logger.Info("refresh finished",
		"candidates", report.Candidates,
		"refreshed", report.Refreshed,
		"failed", report.Failed,
		"skipped", report.Skipped)
	return report, nil
}

func (r *Refresher) refreshOne(ctx context.Context, c model.RefreshCandidate) error {
	stored, err := r.store.GetByID(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("load %s: %w", c.ID, err)
	}
	_, err = r.details.RefreshDetail(ctx, stored.Summary)
	return err
}

// Trim keeps the newest releases and removes details left without one.
// It waits for a running refresh to finish.
func (r *Refresher) Trim(ctx context.Context) (trimmed, orphans int64, err error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	trimmed, err = r.store.TrimToMostRecent(ctx, r.keep)
	if err != nil {
		return 0, 0, fmt.Errorf("trim releases: %w", err)
	}
	orphans, err = r.store.DeleteOrphanDetails(ctx)
	if err != nil {
		return trimmed, 0, fmt.Errorf("delete orphan details: %w", err)
	}
	r.logger.Info("trimmed store", "releases", trimmed, "details", orphans, "keep", r.keep)
	return trimmed, orphans, nil
}

// Start schedules the daily job.
func (r *Refresher) Start() error {
	if _, err := r.cron.AddFunc(Schedule, func() { r.daily(r.ctx) }); err != nil {
		return err
	}
	r.cron.Start()
	if entries := r.cron.Entries(); len(entries) > 0 {
		r.logger.Info("refresher started", "schedule", Schedule, "next", entries[0].Next)
	}
	return nil
}

// daily refreshes stale details and then trims the store. The trim only
// starts once the refresh has returned.
func (r *Refresher) daily(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("scheduled refresh failed", "err", err)
		if ctx.Err() != nil {
			return
		}
	}
	if _, _, err := r.Trim(ctx); err != nil {
		r.logger.Error("scheduled trim failed", "err", err)
	}
}

// Stop cancels running jobs and waits for them to return.
func (r *Refresher) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}
