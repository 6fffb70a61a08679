package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry is an exponential retry policy without jitter: the n-th wait is
// Base * Multiplier^(n-1).
type Retry struct {
	Base       time.Duration
	Multiplier float64
	Attempts   int
}

// DefaultRetry waits 2s then 4s between three attempts.
var DefaultRetry = Retry{Base: 2 * time.Second, Multiplier: 2, Attempts: 3}

func (r Retry) policy(ctx context.Context) backoff.BackOff {
	if r.Attempts < 1 {
		r.Attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.Base
	b.Multiplier = r.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.Attempts-1)), ctx)
}

// withRetry runs op until it succeeds, the attempts run out or ctx ends.
func withRetry[T any](ctx context.Context, r Retry, logger *slog.Logger, what string, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return op(ctx)
	}, r.policy(ctx), func(err error, wait time.Duration) {
		logger.Warn("attempt failed, retrying",
			"op", what,
			"attempt", attempt,
			"of", r.Attempts,
			"wait", wait,
			"err", err)
	})
}
