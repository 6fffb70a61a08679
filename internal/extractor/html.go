package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/PuerkitoBio/purell"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bryan-buckman/dropwatch/internal/model"
)

// Selectors are best effort; the retail markup changes often.
const (
	cardSelector        = ".product-card"
	cardNameSelector    = ".product-card__title, .product-title"
	cardPriceSelector   = ".product-price, .price"
	cardImageSelector   = `img[src*="nike"], img[src*="static.nike"]`
	cardLinkSelector    = `a[href*="/t/"], a[href*="/p/"]`
	cardStatusSelector  = ".product-card__badge, .product-badge"
	titleSelector       = `[data-testid="product-title"], .product-title, h1`
	priceSelector       = `[data-testid="product-price"], .product-price, .price`
	heroImageSelector   = `[data-testid="hero-image"] img, img.product-image, .product-image img`
	badgeSelector       = `[data-testid="product-badge"], .product-badge, .badge`
	descriptionSelector = `[data-testid="product-description"], .product-description, .description`
	colorwaySelector    = `[data-testid="colorway-label"], .colorway-label, .colorway`
	styleSelector       = `[data-testid="style-code"], .style-code, .style`
	sizeSelector        = `[data-testid="size-selector"] button, .size-selector button, .size-button`
	galleryImgSelector  = `[data-testid="product-gallery"] img, .product-gallery img, .thumbnail img, img.thumbnail`
)

// HTMLExtractor scrapes the retail site's listing and product pages.
type HTMLExtractor struct {
	listingURL string
	launcher   Launcher
	timeout    time.Duration
}

// NewHTML creates an extractor for the listing page at listingURL.
func NewHTML(listingURL string, launcher Launcher, attemptTimeout time.Duration) (*HTMLExtractor, error) {
	u, err := url.Parse(listingURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid listing url %q", listingURL)
	}
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	return &HTMLExtractor{
		listingURL: listingURL,
		launcher:   launcher,
		timeout:    attemptTimeout,
	}, nil
}

// FetchListing returns up to MaxListingItems entries from the listing page.
func (e *HTMLExtractor) FetchListing(ctx context.Context) ([]model.RawItem, error) {
	ctx, span := tracer.Start(ctx, "html:FetchListing", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("url", e.listingURL))

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	items, err := WithSession(ctx, e.launcher, func(ctx context.Context, s Session) ([]model.RawItem, error) {
		body, err := s.Fetch(ctx, e.listingURL)
		if err != nil {
			return nil, err
		}
		return parseListing(body, e.listingURL)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch listing")
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	span.SetAttributes(attribute.Int("items", len(items)))
	return items, nil
}

// FetchDetail scrapes one product page.
func (e *HTMLExtractor) FetchDetail(ctx context.Context, productURL string) (model.RawDetail, error) {
	ctx, span := tracer.Start(ctx, "html:FetchDetail", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("url", productURL))

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	detail, err := WithSession(ctx, e.launcher, func(ctx context.Context, s Session) (model.RawDetail, error) {
		body, err := s.Fetch(ctx, productURL)
		if err != nil {
			return model.RawDetail{}, err
		}
		return parseDetail(body, productURL)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch detail")
		return model.RawDetail{}, fmt.Errorf("fetch detail %s: %w", productURL, err)
	}
	return detail, nil
}

func parseListing(body []byte, pageURL string) ([]model.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(pageURL)

	items := make([]model.RawItem, 0, MaxListingItems)
	doc.Find(cardSelector).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		name := firstText(card, cardNameSelector)
		if name == "" {
			return true
		}
		img := card.Find(cardImageSelector).First()
		if img.Length() == 0 {
			img = card.Find("img").First()
		}
		link := card.Find(cardLinkSelector).First()
		if link.Length() == 0 {
			link = card.Find("a[href]").First()
		}
		items = append(items, model.RawItem{
			Name:       name,
			Price:      firstText(card, cardPriceSelector),
			ImageURL:   resolve(base, imageSrc(img)),
			ProductURL: normalize(resolve(base, link.AttrOr("href", ""))),
			Status:     firstText(card, cardStatusSelector),
		})
		return len(items) < MaxListingItems
	})
	return items, nil
}

func parseDetail(body []byte, pageURL string) (model.RawDetail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.RawDetail{}, err
	}
	base, _ := url.Parse(pageURL)

	d := model.RawDetail{
		Name:        firstText(doc.Selection, titleSelector),
		Price:       firstText(doc.Selection, priceSelector),
		ImageURL:    resolve(base, imageSrc(doc.Find(heroImageSelector).First())),
		Status:      firstText(doc.Selection, badgeSelector),
		Description: firstText(doc.Selection, descriptionSelector),
		Colorway:    trimLabel(firstText(doc.Selection, colorwaySelector), "Colour Shown:", "Color Shown:"),
		Style:       trimLabel(firstText(doc.Selection, styleSelector), "Style:"),
		Sizes:       []model.Size{},
	}
	if d.Name == "" {
		return model.RawDetail{}, ErrNoProduct
	}

	doc.Find(sizeSelector).Each(func(_ int, b *goquery.Selection) {
		label := clean(b.Text())
		if label == "" {
			return
		}
		_, disabled := b.Attr("disabled")
		oos := disabled || b.AttrOr("aria-disabled", "") == "true" || b.HasClass("out-of-stock")
		d.Sizes = append(d.Sizes, model.Size{Size: label, Available: !oos, OutOfStock: oos})
		if !oos {
			d.IsLaunched = true
		}
	})

	if d.ImageURL != "" {
		d.ImageURLs = append(d.ImageURLs, d.ImageURL)
	}
	doc.Find(galleryImgSelector).Each(func(_ int, img *goquery.Selection) {
		if src := resolve(base, imageSrc(img)); src != "" {
			d.ImageURLs = append(d.ImageURLs, src)
		}
	})
	return d, nil
}

func firstText(s *goquery.Selection, selector string) string {
	return clean(s.Find(selector).First().Text())
}

// clean collapses whitespace runs.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimLabel(s string, labels ...string) string {
	for _, l := range labels {
		if rest, ok := strings.CutPrefix(s, l); ok {
			return strings.TrimSpace(rest)
		}
	}
	return s
}

func imageSrc(img *goquery.Selection) string {
	if src := img.AttrOr("src", ""); src != "" && !strings.HasPrefix(src, "data:") {
		return src
	}
	return img.AttrOr("data-src", "")
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// normalize canonicalizes product URLs so the same page always maps to
// the same string.
func normalize(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return purell.NormalizeURL(u,
		purell.FlagsSafe|
			purell.FlagRemoveFragment|
			purell.FlagRemoveDuplicateSlashes|
			purell.FlagSortQuery,
	)
}
