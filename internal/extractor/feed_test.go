package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func releaseFeed(base string, n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Upcoming Drops</title><link>`+base+`/launch</link>`)
	b.WriteString(`<item><title></title><link>`+base+`/t/nameless</link></item>`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `
<item>
	<title>Dunk Low %d</title>
	<link>%s/t/dunk-low-%d#top</link>
	<category>Just In</category>
	<enclosure url="https://static.nike.com/a/dunk-%d.png" type="image/png" length="0"/>
</item>`, i, base, i, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func TestFeedFetchListing(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, releaseFeed(srv.URL, 15))
	})
	mux.HandleFunc("/t/air-max-90", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPage)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	launcher := NewHTTPLauncher(LauncherOptions{Transport: srv.Client().Transport})
	html, err := NewHTML(srv.URL+"/launch", launcher, 5*time.Second)
	require.NoError(t, err)
	f, err := NewFeed(srv.URL+"/feed.xml", html)
	require.NoError(t, err)

	items, err := f.FetchListing(context.Background())
	require.NoError(t, err)
	require.Len(t, items, MaxListingItems)
	require.Equal(t, "Dunk Low 0", items[0].Name)
	require.Equal(t, srv.URL+"/t/dunk-low-0", items[0].ProductURL)
	require.Equal(t, "https://static.nike.com/a/dunk-0.png", items[0].ImageURL)
	require.Equal(t, "Just In", items[0].Status)

	// Product pages still come from the HTML scraper.
	d, err := f.FetchDetail(context.Background(), srv.URL+"/t/air-max-90")
	require.NoError(t, err)
	require.Equal(t, "Air Max 90", d.Name)
}

func TestFeedRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not a feed")
	}))
	t.Cleanup(srv.Close)

	launcher := NewHTTPLauncher(LauncherOptions{Transport: srv.Client().Transport})
	html, err := NewHTML(srv.URL+"/launch", launcher, time.Second)
	require.NoError(t, err)
	f, err := NewFeed(srv.URL+"/feed.xml", html)
	require.NoError(t, err)

	_, err = f.FetchListing(context.Background())
	require.Error(t, err)
}
