// Package config loads dropwatch settings from an optional json5 file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// DefaultFile is read when no config path is given.
const DefaultFile = "dropwatch.json5"

// Config is the full application configuration.
type Config struct {
	Port      int    `json:"port"`
	Env       string `json:"env"`
	StaticDir string `json:"staticDir"`

	DB struct {
		// Driver is "sqlite" or "postgres".
		Driver string `json:"driver"`
		Path   string `json:"path"`
		URL    string `json:"url"`
	} `json:"db"`

	Listing struct {
		URL     string `json:"url"`
		FeedURL string `json:"feedUrl"`
	} `json:"listing"`

	ResaleURL string `json:"resaleUrl"`

	Scrape struct {
		AttemptTimeout string `json:"attemptTimeout"`
		HostInterval   string `json:"hostInterval"`
		RefreshPace    string `json:"refreshPace"`
		CacheTTL       string `json:"cacheTtl"`
	} `json:"scrape"`

	Log struct {
		Level  string `json:"level"`
		Format string `json:"format"`
	} `json:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Port = 3000
	c.Env = "development"
	c.DB.Driver = "sqlite"
	c.DB.Path = "data/nike.db"
	c.Listing.URL = "https://www.nike.com/launch?s=upcoming"
	c.Scrape.AttemptTimeout = "45s"
	c.Scrape.HostInterval = "1s"
	c.Scrape.RefreshPace = "2s"
	c.Scrape.CacheTTL = "3h"
	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

// Load builds the configuration: defaults, then the file at path merged
// with its ".local" sibling, then environment overrides. A missing file is
// only an error when required is set.
func Load(path string, required bool, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}
	file, err := readConfig(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if required {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	case err != nil:
		return cfg, fmt.Errorf("config %s: %w", path, err)
	default:
		if err := mergo.Merge(&cfg, file, mergo.WithOverride); err != nil {
			return cfg, err
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func splitExt(f string) (string, string) {
	ext := filepath.Ext(f)
	return strings.TrimSuffix(f, ext), strings.TrimPrefix(ext, ".")
}

// readConfig reads name and merges name.local.<ext> over it.
func readConfig(name string) (Config, error) {
	var out Config
	found := false

	data, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(data) > 0 {
		if err := json5.Unmarshal(data, &out); err != nil {
			return out, err
		}
		found = true
	}

	prefix, ext := splitExt(name)
	localPath := fmt.Sprintf("%s.local.%s", prefix, ext)
	local, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(local) > 0 {
		var override Config
		if err := json5.Unmarshal(local, &override); err != nil {
			return out, err
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		slog.Debug("merging config with local overrides", "local", localPath)
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

func applyEnv(c *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Port = port
	}
	str("NODE_ENV", &c.Env)
	str("APP_ENV", &c.Env)
	str("STATIC_DIR", &c.StaticDir)
	str("DB_DRIVER", &c.DB.Driver)
	str("DB_PATH", &c.DB.Path)
	str("DATABASE_URL", &c.DB.URL)
	str("LISTING_URL", &c.Listing.URL)
	str("LISTING_FEED_URL", &c.Listing.FeedURL)
	str("RESALE_URL", &c.ResaleURL)
	str("SCRAPE_TIMEOUT", &c.Scrape.AttemptTimeout)
	str("REFRESH_PACE", &c.Scrape.RefreshPace)
	str("CACHE_TTL", &c.Scrape.CacheTTL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	// A postgres URL alone selects the postgres driver.
	if getenv("DB_DRIVER") == "" && getenv("DATABASE_URL") != "" {
		c.DB.Driver = "postgres"
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return errors.New("db.path is required for sqlite")
		}
	case "postgres":
		if c.DB.URL == "" {
			return errors.New("db.url is required for postgres")
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}
	if c.Listing.URL == "" && c.Listing.FeedURL == "" {
		return errors.New("listing.url or listing.feedUrl is required")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"scrape.attemptTimeout": c.Scrape.AttemptTimeout,
		"scrape.hostInterval":   c.Scrape.HostInterval,
		"scrape.refreshPace":    c.Scrape.RefreshPace,
		"scrape.cacheTtl":       c.Scrape.CacheTTL,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// IsProduction reports whether internal error details must stay hidden.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// LogLevel parses the configured level.
func (c Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return l, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// AttemptTimeout bounds one extractor attempt.
func (c Config) AttemptTimeout() time.Duration { return duration(c.Scrape.AttemptTimeout) }

// HostInterval spaces requests to the same host.
func (c Config) HostInterval() time.Duration { return duration(c.Scrape.HostInterval) }

// RefreshPace spaces detail scrapes in a refresh run.
func (c Config) RefreshPace() time.Duration { return duration(c.Scrape.RefreshPace) }

// CacheTTL is the listing cache lifetime.
func (c Config) CacheTTL() time.Duration { return duration(c.Scrape.CacheTTL) }
