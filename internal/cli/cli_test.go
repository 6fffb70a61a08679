package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/dropwatch/internal/database"
	"github.com/bryan-buckman/dropwatch/internal/extractor"
	"github.com/bryan-buckman/dropwatch/internal/model"
)

func seed(t *testing.T, path string) {
	t.Helper()
	db, err := database.New(path)
	require.NoError(t, err)
	defer db.Close()

	batch := model.Summaries([]model.RawItem{
		{Name: "Air Max 90", Price: "$130", Status: "Coming Soon"},
		{Name: "Dunk Low Panda", Price: "$115"},
	}, "batch-1")
	require.NoError(t, db.UpsertSummaries(context.Background(), batch))
}

func TestNewAppWiring(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nike.db")
	vars := map[string]string{
		"DB_PATH":          path,
		"LISTING_FEED_URL": "https://feeds.example.com/releases.xml",
		"RESALE_URL":       "http://localhost:4000",
		"LOG_LEVEL":        "warn",
	}
	a, err := newApp(func(k string) string { return vars[k] })
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, "SQLite", a.store.DatabaseType())
	require.NotNil(t, a.resale)
	require.NotNil(t, a.reconciler)
	require.NotNil(t, a.refresher)
	require.FileExists(t, path)
}

func TestNewExtractor(t *testing.T) {
	a, err := newApp(func(k string) string {
		if k == "DB_PATH" {
			return filepath.Join(t.TempDir(), "nike.db")
		}
		return ""
	})
	require.NoError(t, err)
	defer a.Close()
	require.Nil(t, a.resale)

	ext, err := newExtractor(a.cfg)
	require.NoError(t, err)
	require.IsType(t, &extractor.HTMLExtractor{}, ext)

	a.cfg.Listing.FeedURL = "https://feeds.example.com/releases.xml"
	ext, err = newExtractor(a.cfg)
	require.NoError(t, err)
	require.IsType(t, &extractor.FeedExtractor{}, ext)
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	_, err := newApp(func(k string) string {
		if k == "DB_DRIVER" {
			return "mysql"
		}
		return ""
	})
	require.Error(t, err)
}

func TestListCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nike.db")
	seed(t, path)
	t.Setenv("DB_PATH", path)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"list", "--limit", "5"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	require.Contains(t, out.String(), "air-max-90-0")
	require.Contains(t, out.String(), "dunk-low-panda-1")
	require.Contains(t, out.String(), "Coming Soon")
}

func TestRenderItem(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := model.Item{
		ReleaseSummary: model.ReleaseSummary{ID: "air-max-90-0", Name: "Air Max 90"},
		Resale:         model.Resale{StockXPrice: 182},
		Colorway:       "White/Black",
		Sizes: []model.Size{
			{Size: "M 9", Available: true},
			{Size: "M 10", OutOfStock: true},
		},
		LastUpdated: &updated,
	}

	var out bytes.Buffer
	renderItem(&out, item)
	require.Contains(t, out.String(), "White/Black")
	require.Contains(t, out.String(), "M 10")
	require.Contains(t, out.String(), "182")
}
