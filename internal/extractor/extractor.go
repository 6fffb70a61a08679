// Package extractor fetches release listings and product pages from the
// retail site, and resale data from a resale price source.
package extractor

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/bryan-buckman/dropwatch/internal/model"
)

var tracer = otel.Tracer("dropwatch/extractor")

const (
	// MaxListingItems caps how many entries a listing scrape returns.
	MaxListingItems = 12
	// DefaultAttemptTimeout bounds a single fetch attempt.
	DefaultAttemptTimeout = 45 * time.Second
)

var (
	// ErrNoProduct is returned when a product page has no recognizable title.
	ErrNoProduct = errors.New("no product on page")
	// ErrNoMatch is returned when the resale source has nothing close to a name.
	ErrNoMatch = errors.New("no resale match")
)

// Extractor produces raw listing and detail records from a live source.
type Extractor interface {
	FetchListing(ctx context.Context) ([]model.RawItem, error)
	FetchDetail(ctx context.Context, productURL string) (model.RawDetail, error)
}

// Session is a live browsing context. It must be closed on every path.
type Session interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Close() error
}

// Launcher opens sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// WithSession opens a session, runs fn with it and closes it afterwards,
// whether fn succeeds, fails or panics.
func WithSession[T any](ctx context.Context, l Launcher, fn func(ctx context.Context, s Session) (T, error)) (T, error) {
	var zero T
	s, err := l.Launch(ctx)
	if err != nil {
		return zero, err
	}
	defer func() { _ = s.Close() }()
	return fn(ctx, s)
}
