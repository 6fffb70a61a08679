package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bryan-buckman/dropwatch/internal/model"
)

// FeedExtractor reads the listing from an RSS/Atom/JSON feed of upcoming
// releases. Product pages are still scraped as HTML.
type FeedExtractor struct {
	*HTMLExtractor
	feedURL string
	parser  *gofeed.Parser
}

// NewFeed creates a feed-backed extractor. Detail pages go through html.
func NewFeed(feedURL string, html *HTMLExtractor) (*FeedExtractor, error) {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid feed url %q", feedURL)
	}
	return &FeedExtractor{
		HTMLExtractor: html,
		feedURL:       feedURL,
		parser:        gofeed.NewParser(),
	}, nil
}

// FetchListing parses the feed into at most MaxListingItems entries.
func (f *FeedExtractor) FetchListing(ctx context.Context) ([]model.RawItem, error) {
	ctx, span := tracer.Start(ctx, "feed:FetchListing", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("url", f.feedURL))

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	items, err := WithSession(ctx, f.launcher, func(ctx context.Context, s Session) ([]model.RawItem, error) {
		body, err := s.Fetch(ctx, f.feedURL)
		if err != nil {
			return nil, err
		}
		parsed, err := f.parser.Parse(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse feed: %w", err)
		}
		return feedItems(parsed, f.feedURL), nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch feed")
		return nil, fmt.Errorf("fetch feed %s: %w", f.feedURL, err)
	}
	span.SetAttributes(attribute.Int("items", len(items)))
	return items, nil
}

func feedItems(feed *gofeed.Feed, feedURL string) []model.RawItem {
	base, _ := url.Parse(feedURL)
	out := make([]model.RawItem, 0, MaxListingItems)
	for _, item := range feed.Items {
		name := clean(item.Title)
		if name == "" {
			continue
		}
		raw := model.RawItem{
			Name:       name,
			ProductURL: normalize(resolve(base, item.Link)),
			ImageURL:   resolve(base, feedImage(item)),
			Price:      feedCustom(item, "price"),
			Status:     feedCustom(item, "status"),
		}
		if raw.Status == "" && len(item.Categories) > 0 {
			raw.Status = clean(item.Categories[0])
		}
		if raw.Status == "" && item.PublishedParsed != nil && item.PublishedParsed.After(time.Now()) {
			raw.Status = "Coming Soon"
		}
		out = append(out, raw)
		if len(out) == MaxListingItems {
			break
		}
	}
	return out
}

func feedImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

// feedCustom reads a custom element such as <price> from an RSS item.
func feedCustom(item *gofeed.Item, key string) string {
	if item.Custom != nil {
		if v := clean(item.Custom[key]); v != "" {
			return v
		}
	}
	return ""
}
