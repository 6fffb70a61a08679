package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bryan-buckman/dropwatch/internal/model"
)

// minNameSimilarity is the Jaro-Winkler score a resale product name needs
// before it is attached to a release.
const minNameSimilarity = 0.8

// ResaleProduct is one product as reported by the resale source.
type ResaleProduct struct {
	ID                string                        `json:"_id,omitempty"`
	Name              string                        `json:"shoeName"`
	Brand             string                        `json:"brand,omitempty"`
	StyleID           string                        `json:"styleID,omitempty"`
	Colorway          string                        `json:"colorway,omitempty"`
	Thumbnail         string                        `json:"thumbnail,omitempty"`
	RetailPrice       float64                       `json:"retailPrice,omitempty"`
	ReleaseDate       string                        `json:"releaseDate,omitempty"`
	LastSale          float64                       `json:"lastSale,omitempty"`
	Sales             int                           `json:"salesLast72Hours,omitempty"`
	LowestResellPrice map[string]float64            `json:"lowestResellPrice,omitempty"`
	ResellLinks       map[string]string             `json:"resellLinks,omitempty"`
	ResellPrices      map[string]map[string]float64 `json:"resellPrices,omitempty"`
}

// Resale looks up resale market data.
type Resale interface {
	Lookup(ctx context.Context, name string) (model.Resale, error)
	Search(ctx context.Context, query string, limit int) ([]ResaleProduct, error)
	Popular(ctx context.Context, limit int) ([]ResaleProduct, error)
	Prices(ctx context.Context, sneaker string) (ResaleProduct, error)
}

// ResaleClient talks to a JSON resale price service.
type ResaleClient struct {
	http *resty.Client
}

var _ Resale = (*ResaleClient)(nil)

// NewResaleClient creates a client for the service at baseURL.
func NewResaleClient(baseURL string, timeout time.Duration) *ResaleClient {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("accept", "application/json")
	return &ResaleClient{http: client}
}

func (c *ResaleClient) get(ctx context.Context, path string, params map[string]string, out any) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get(path)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("GET %s: %s", path, res.Status())
	}
	return nil
}

// Search returns up to limit products matching query.
func (c *ResaleClient) Search(ctx context.Context, query string, limit int) ([]ResaleProduct, error) {
	ctx, span := tracer.Start(ctx, "resale:Search", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	var out []ResaleProduct
	err := c.get(ctx, "/search", map[string]string{
		"q":     query,
		"limit": strconv.Itoa(limit),
	}, &out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to search")
		return nil, fmt.Errorf("resale search: %w", err)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Popular returns up to limit currently popular products.
func (c *ResaleClient) Popular(ctx context.Context, limit int) ([]ResaleProduct, error) {
	ctx, span := tracer.Start(ctx, "resale:Popular", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var out []ResaleProduct
	if err := c.get(ctx, "/popular", map[string]string{"limit": strconv.Itoa(limit)}, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list popular")
		return nil, fmt.Errorf("resale popular: %w", err)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Prices returns the closest product to sneaker with its per-size prices.
func (c *ResaleClient) Prices(ctx context.Context, sneaker string) (ResaleProduct, error) {
	ctx, span := tracer.Start(ctx, "resale:Prices")
	defer span.End()

	best, err := c.closest(ctx, sneaker)
	if err != nil {
		span.RecordError(err)
		return ResaleProduct{}, err
	}
	if best.StyleID == "" {
		return best, nil
	}
	var out ResaleProduct
	if err := c.get(ctx, "/products/"+url.PathEscape(best.StyleID)+"/prices", nil, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch prices")
		return ResaleProduct{}, fmt.Errorf("resale prices: %w", err)
	}
	return out, nil
}

// Lookup finds the resale product closest to name and returns its market
// data. ErrNoMatch means nothing was close enough.
func (c *ResaleClient) Lookup(ctx context.Context, name string) (model.Resale, error) {
	ctx, span := tracer.Start(ctx, "resale:Lookup")
	defer span.End()

	best, err := c.closest(ctx, name)
	if err != nil {
		span.RecordError(err)
		return model.Resale{}, err
	}
	return model.Resale{
		StockXURL:      best.ResellLinks["stockX"],
		StockXPrice:    best.LowestResellPrice["stockX"],
		StockXLastSale: best.LastSale,
		StockXSales:    best.Sales,
		StockXName:     best.Name,
		StockXSKU:      best.StyleID,
	}, nil
}

func (c *ResaleClient) closest(ctx context.Context, name string) (ResaleProduct, error) {
	candidates, err := c.Search(ctx, name, 5)
	if err != nil {
		return ResaleProduct{}, err
	}
	best, ok := closestProduct(name, candidates)
	if !ok {
		return ResaleProduct{}, fmt.Errorf("%w for %q", ErrNoMatch, name)
	}
	return best, nil
}

func closestProduct(name string, candidates []ResaleProduct) (ResaleProduct, bool) {
	target := strings.ToLower(clean(name))
	var best ResaleProduct
	bestScore := 0.0
	for _, p := range candidates {
		score := matchr.JaroWinkler(target, strings.ToLower(clean(p.Name)), false)
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	return best, bestScore >= minNameSimilarity
}
