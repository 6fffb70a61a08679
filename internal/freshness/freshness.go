// Package freshness decides when a stored detail record is due for a
// re-scrape.
package freshness

import "time"

// Window is how long a detail scrape stays fresh.
const Window = 24 * time.Hour

// IsStale reports whether a record last updated at lastUpdated needs a
// refresh at now. A record that was never updated is always stale.
func IsStale(lastUpdated *time.Time, now time.Time) bool {
	if lastUpdated == nil || lastUpdated.IsZero() {
		return true
	}
	return now.Sub(*lastUpdated) > Window
}

// Cutoff returns the instant before which a record counts as stale.
func Cutoff(now time.Time) time.Time {
	return now.Add(-Window)
}
