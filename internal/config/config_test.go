package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"), false, env(nil))
	require.NoError(t, err)
	require.Equal(t, 3000, cfg.Port)
	require.Equal(t, "sqlite", cfg.DB.Driver)
	require.Equal(t, "data/nike.db", cfg.DB.Path)
	require.Equal(t, 45*time.Second, cfg.AttemptTimeout())
	require.Equal(t, 3*time.Hour, cfg.CacheTTL())
	require.Equal(t, 2*time.Second, cfg.RefreshPace())
	require.False(t, cfg.IsProduction())
	require.Equal(t, ":3000", cfg.Addr())
}

func TestLoadRequiredFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json5"), true, env(nil))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFileLocalAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dropwatch.json5")
	writeFile(t, path, `{
		// checked in
		port: 8080,
		db: { path: "/var/lib/dropwatch/nike.db" },
		listing: { url: "https://www.nike.com/launch" },
		log: { level: "debug" },
	}`)
	writeFile(t, filepath.Join(dir, "dropwatch.local.json5"), `{
		port: 9090,
		resaleUrl: "http://localhost:4000",
	}`)

	cfg, err := Load(path, true, env(map[string]string{
		"LOG_FORMAT": "json",
		"NODE_ENV":   "production",
	}))
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "/var/lib/dropwatch/nike.db", cfg.DB.Path)
	require.Equal(t, "https://www.nike.com/launch", cfg.Listing.URL)
	require.Equal(t, "http://localhost:4000", cfg.ResaleURL)
	require.Equal(t, "json", cfg.Log.Format)
	require.True(t, cfg.IsProduction())

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)

	// Untouched settings keep their defaults.
	require.Equal(t, "sqlite", cfg.DB.Driver)
	require.Equal(t, 45*time.Second, cfg.AttemptTimeout())
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.json5"), false, env(map[string]string{
		"PORT":         "4321",
		"NODE_ENV":     "production",
		"APP_ENV":      "staging",
		"DATABASE_URL": "postgres://u:p@db/dropwatch?sslmode=disable",
		"STATIC_DIR":   "public",
	}))
	require.NoError(t, err)
	require.Equal(t, 4321, cfg.Port)
	require.Equal(t, "staging", cfg.Env)
	require.False(t, cfg.IsProduction())
	require.Equal(t, "postgres", cfg.DB.Driver)
	require.Equal(t, "public", cfg.StaticDir)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]map[string]string{
		"bad port":       {"PORT": "http"},
		"port range":     {"PORT": "70000"},
		"driver":         {"DB_DRIVER": "mysql"},
		"postgres url":   {"DB_DRIVER": "postgres"},
		"log format":     {"LOG_FORMAT": "xml"},
		"log level":      {"LOG_LEVEL": "loud"},
		"scrape timeout": {"SCRAPE_TIMEOUT": "soon"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(filepath.Join(dir, "none.json5"), false, env(vars))
			require.Error(t, err)
		})
	}

	path := filepath.Join(dir, "broken.json5")
	writeFile(t, path, `{ port: `)
	_, err := Load(path, false, env(nil))
	require.Error(t, err)
}
