package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bryan-buckman/dropwatch/internal/cache"
	"github.com/bryan-buckman/dropwatch/internal/config"
	"github.com/bryan-buckman/dropwatch/internal/database"
	"github.com/bryan-buckman/dropwatch/internal/extractor"
	"github.com/bryan-buckman/dropwatch/internal/logging"
	"github.com/bryan-buckman/dropwatch/internal/reconciler"
	"github.com/bryan-buckman/dropwatch/internal/refresher"
)

// app holds the wired components shared by every command.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      database.Store
	resale     extractor.Resale
	reconciler *reconciler.Reconciler
	refresher  *refresher.Refresher
}

func newApp(getenv func(string) string) (*app, error) {
	cfg, err := config.Load(configPath, configPath != "", getenv)
	if err != nil {
		return nil, err
	}
	level, _ := cfg.LogLevel()
	logger := logging.Setup(os.Stderr, level, cfg.Log.Format)

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", "type", store.DatabaseType())

	ext, err := newExtractor(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	if cfg.ResaleURL != "" {
		a.resale = extractor.NewResaleClient(cfg.ResaleURL, cfg.AttemptTimeout())
	}
	a.reconciler = reconciler.New(reconciler.Options{
		Store:     store,
		Cache:     cache.New(cfg.CacheTTL()),
		Extractor: ext,
		Resale:    a.resale,
		Logger:    logger,
	})
	a.refresher = refresher.New(refresher.Options{
		Store:   store,
		Details: a.reconciler,
		Logger:  logger,
		Pace:    cfg.RefreshPace(),
	})
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("close database", "err", err)
	}
}

func openStore(cfg config.Config) (database.Store, error) {
	switch cfg.DB.Driver {
	case "postgres":
		store, err := database.NewPostgres(cfg.DB.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	default:
		store, err := database.New(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.DB.Path, err)
		}
		return store, nil
	}
}

// newExtractor scrapes the listing page, or reads the listing feed when
// one is configured. Detail pages are always scraped.
func newExtractor(cfg config.Config) (extractor.Extractor, error) {
	launcher := extractor.NewHTTPLauncher(extractor.LauncherOptions{
		Timeout:      cfg.AttemptTimeout(),
		HostInterval: cfg.HostInterval(),
	})
	listingURL := cfg.Listing.URL
	if listingURL == "" {
		listingURL = cfg.Listing.FeedURL
	}
	html, err := extractor.NewHTML(listingURL, launcher, cfg.AttemptTimeout())
	if err != nil {
		return nil, err
	}
	if cfg.Listing.FeedURL == "" {
		return html, nil
	}
	feed, err := extractor.NewFeed(cfg.Listing.FeedURL, html)
	if err != nil {
		return nil, err
	}
	return feed, nil
}
