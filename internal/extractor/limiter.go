package extractor

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiter paces requests per host so a scrape never hammers one site.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    time.Duration
	burst    int
}

// newHostLimiter allows one request per every on each host. A zero
// interval disables pacing.
func newHostLimiter(every time.Duration, burst int) *hostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
		burst:    burst,
	}
}

// wait blocks until host has a free slot or ctx is done.
func (hl *hostLimiter) wait(ctx context.Context, host string) error {
	hl.mu.Lock()
	lim, ok := hl.limiters[host]
	if !ok {
		limit := rate.Inf
		if hl.every > 0 {
			limit = rate.Every(hl.every)
		}
		lim = rate.NewLimiter(limit, hl.burst)
		hl.limiters[host] = lim
	}
	hl.mu.Unlock()
	return lim.Wait(ctx)
}

// hostOf gets the host from a URL.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL // fallback to full URL
	}
	return u.Host
}
