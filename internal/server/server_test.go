package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/dropwatch/internal/extractor"
	"github.com/bryan-buckman/dropwatch/internal/model"
	"github.com/bryan-buckman/dropwatch/internal/reconciler"
)

type fakeReleases struct {
	listing    []model.ReleaseSummary
	listingErr error
	items      map[string]model.Item
	itemErr    error
	scrapes    int
	lastID     string
}

func (f *fakeReleases) GetListing(context.Context) ([]model.ReleaseSummary, error) {
	return f.listing, f.listingErr
}

func (f *fakeReleases) ScrapeListing(context.Context) ([]model.ReleaseSummary, error) {
	f.scrapes++
	return f.listing, f.listingErr
}

func (f *fakeReleases) GetItem(_ context.Context, id string) (model.Item, error) {
	f.lastID = id
	if f.itemErr != nil {
		return model.Item{}, f.itemErr
	}
	item, ok := f.items[id]
	if !ok {
		return model.Item{}, reconciler.ErrNotFound
	}
	return item, nil
}

type fakeResale struct {
	products  []extractor.ResaleProduct
	err       error
	lastLimit int
}

func (f *fakeResale) Lookup(context.Context, string) (model.Resale, error) {
	return model.Resale{}, f.err
}

func (f *fakeResale) Search(_ context.Context, _ string, limit int) ([]extractor.ResaleProduct, error) {
	f.lastLimit = limit
	return f.products, f.err
}

func (f *fakeResale) Popular(_ context.Context, limit int) ([]extractor.ResaleProduct, error) {
	f.lastLimit = limit
	return f.products, f.err
}

func (f *fakeResale) Prices(context.Context, string) (extractor.ResaleProduct, error) {
	if f.err != nil {
		return extractor.ResaleProduct{}, f.err
	}
	return f.products[0], nil
}

type fakeMaintainer struct {
	started, stopped atomic.Bool
}

func (m *fakeMaintainer) Start() error { m.started.Store(true); return nil }
func (m *fakeMaintainer) Stop()        { m.stopped.Store(true) }
func (m *fakeMaintainer) Trim(context.Context) (int64, int64, error) {
	return 12, 3, nil
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "application/json", res.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return res.StatusCode, body
}

func getList(t *testing.T, url string) (int, []map[string]any) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()

	var body []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return res.StatusCode, body
}

var airMax = model.ReleaseSummary{
	ID:    "air-max-90-0",
	Name:  "Air Max 90",
	Price: "$130",
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Options{Releases: &fakeReleases{}, DatabaseType: "sqlite"})

	status, body := do(t, http.MethodGet, srv.URL+"/healthz")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "sqlite", body["database"])
}

func TestListing(t *testing.T) {
	releases := &fakeReleases{listing: []model.ReleaseSummary{airMax}}
	srv := newTestServer(t, Options{Releases: releases})

	for _, path := range []string{"/api/listing", "/api/nike-releases"} {
		status, body := getList(t, srv.URL+path)
		require.Equal(t, http.StatusOK, status, path)
		require.Len(t, body, 1)
		require.Equal(t, "air-max-90-0", body[0]["id"])
	}
}

func TestListingFailure(t *testing.T) {
	releases := &fakeReleases{listingErr: reconciler.ErrScrapeFailure}

	srv := newTestServer(t, Options{Releases: releases})
	status, body := do(t, http.MethodGet, srv.URL+"/api/nike-releases")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "Failed to fetch Nike releases", body["error"])
	require.Contains(t, body["detail"], "scrape")

	prod := newTestServer(t, Options{Releases: releases, Production: true})
	status, body = do(t, http.MethodGet, prod.URL+"/api/nike-releases")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, map[string]any{"error": "Failed to fetch Nike releases"}, body)
}

func TestItem(t *testing.T) {
	releases := &fakeReleases{items: map[string]model.Item{
		"air-max-90-0": {ReleaseSummary: airMax},
	}}
	srv := newTestServer(t, Options{Releases: releases})

	status, body := do(t, http.MethodGet, srv.URL+"/api/item/air-max-90-0")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Air Max 90", body["name"])

	status, body = do(t, http.MethodGet, srv.URL+"/api/shoe/AIR-MAX-90-0")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "air-max-90-0", releases.lastID)
	require.Equal(t, "air-max-90-0", body["id"])

	status, body = do(t, http.MethodGet, srv.URL+"/api/shoe/dunk-low-3")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, map[string]any{"error": "Shoe not found"}, body)

	status, body = do(t, http.MethodGet, srv.URL+"/api/shoe/bad%20id%21")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Invalid shoe id", body["error"])

	for _, path := range []string{"/api/item/", "/api/shoe/"} {
		status, body = do(t, http.MethodGet, srv.URL+path)
		require.Equal(t, http.StatusBadRequest, status, path)
		require.Equal(t, "Missing shoe id", body["error"], path)
	}
}

func TestItemWithoutAlphanumericName(t *testing.T) {
	id := model.ShoeID("★", 0)
	require.Equal(t, "-0", id)

	releases := &fakeReleases{items: map[string]model.Item{
		id: {ReleaseSummary: model.ReleaseSummary{ID: id, Name: "★"}},
	}}
	srv := newTestServer(t, Options{Releases: releases})

	status, body := do(t, http.MethodGet, srv.URL+"/api/item/"+id)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "★", body["name"])
}

func TestItemFailure(t *testing.T) {
	releases := &fakeReleases{itemErr: reconciler.ErrStoreFailure}
	srv := newTestServer(t, Options{Releases: releases})

	status, body := do(t, http.MethodGet, srv.URL+"/api/shoe/air-max-90-0")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "Failed to fetch shoe details", body["error"])
}

func TestRefreshAndCleanup(t *testing.T) {
	releases := &fakeReleases{listing: []model.ReleaseSummary{airMax, airMax}}
	maint := &fakeMaintainer{}
	srv := newTestServer(t, Options{Releases: releases, Maintainer: maint})

	status, body := do(t, http.MethodPost, srv.URL+"/api/refresh")
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 2, body["items"])
	require.Equal(t, 1, releases.scrapes)

	status, body = do(t, http.MethodPost, srv.URL+"/api/cleanup")
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 12, body["deleted"])
	require.EqualValues(t, 3, body["orphans"])

	bare := newTestServer(t, Options{Releases: releases})
	status, _ = do(t, http.MethodPost, bare.URL+"/api/cleanup")
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestResale(t *testing.T) {
	resale := &fakeResale{products: []extractor.ResaleProduct{{
		Name:              "Nike Dunk Low Panda",
		StyleID:           "DD1391-100",
		LowestResellPrice: map[string]float64{"stockX": 120},
	}}}
	srv := newTestServer(t, Options{Releases: &fakeReleases{}, Resale: resale})

	status, list := getList(t, srv.URL+"/api/resale/search?sneaker=dunk+low")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "DD1391-100", list[0]["styleID"])
	require.Equal(t, 5, resale.lastLimit)

	status, _ = getList(t, srv.URL+"/api/resale/popular?limit=20")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 20, resale.lastLimit)

	status, body := do(t, http.MethodGet, srv.URL+"/api/resale/prices?sneaker=Nike+Dunk+Low+Panda")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Nike Dunk Low Panda", body["shoeName"])

	for _, path := range []string{
		"/api/resale/search",
		"/api/resale/search?sneaker=dunk&limit=13",
		"/api/resale/popular?limit=0",
		"/api/resale/popular?limit=many",
		"/api/resale/prices",
	} {
		status, _ := do(t, http.MethodGet, srv.URL+path)
		require.Equal(t, http.StatusBadRequest, status, path)
	}
}

func TestResaleErrors(t *testing.T) {
	unmatched := &fakeResale{err: extractor.ErrNoMatch}
	srv := newTestServer(t, Options{Releases: &fakeReleases{}, Resale: unmatched})
	status, _ := do(t, http.MethodGet, srv.URL+"/api/resale/prices?sneaker=unknown")
	require.Equal(t, http.StatusNotFound, status)

	broken := &fakeResale{err: errors.New("upstream 502")}
	srv = newTestServer(t, Options{Releases: &fakeReleases{}, Resale: broken})
	status, body := do(t, http.MethodGet, srv.URL+"/api/resale/popular")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "upstream 502", body["detail"])

	srv = newTestServer(t, Options{Releases: &fakeReleases{}})
	status, _ = do(t, http.MethodGet, srv.URL+"/api/resale/popular")
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>releases</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shoe.html"), []byte("<h1>shoe</h1>"), 0o644))
	srv := newTestServer(t, Options{Releases: &fakeReleases{}, StaticDir: dir})

	read := func(path string) (int, string) {
		res, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		return res.StatusCode, string(b)
	}

	status, body := read("/")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "releases")

	status, body = read("/shoe/air-max-90-0")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "shoe")

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	res, err := client.Get(srv.URL + "/favicon.ico")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusMovedPermanently, res.StatusCode)
	require.Equal(t, "/assets/img/misc/airforceshoes.png", res.Header.Get("Location"))
}

func TestStartStop(t *testing.T) {
	maint := &fakeMaintainer{}
	s := New(Options{
		Releases:   &fakeReleases{},
		Maintainer: maint,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	done := make(chan error, 1)
	go func() { done <- s.Start("127.0.0.1:0") }()

	require.Eventually(t, func() bool { return maint.started.Load() }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, <-done)
	require.True(t, maint.stopped.Load())
}
