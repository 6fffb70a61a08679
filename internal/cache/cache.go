// Package cache holds recent listing snapshots in process memory so bursts
// of requests do not each trigger a scrape.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bryan-buckman/dropwatch/internal/model"
)

// ListingKey is the key the release listing is cached under.
const ListingKey = "nike-releases"

// DefaultTTL is how long a listing snapshot is served before a re-scrape.
const DefaultTTL = 3 * time.Hour

// maxListings bounds the number of distinct listing sources kept.
const maxListings = 64

// Listings is a time-expiring cache of listing snapshots keyed by source.
// Expired entries are dropped on read and by a background sweep.
// Returned slices are shared with the cache and must not be mutated.
type Listings struct {
	lru *expirable.LRU[string, []model.ReleaseSummary]
	ttl time.Duration
}

// New creates a cache whose entries expire ttl after they are written.
func New(ttl time.Duration) *Listings {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Listings{
		lru: expirable.NewLRU[string, []model.ReleaseSummary](maxListings, nil, ttl),
		ttl: ttl,
	}
}

// Get returns the unexpired listing stored under key.
func (c *Listings) Get(key string) ([]model.ReleaseSummary, bool) {
	v, ok := c.lru.Get(key)
	if !ok || len(v) == 0 {
		return nil, false
	}
	return v, true
}

// Set stores listing under key with a fresh TTL.
func (c *Listings) Set(key string, listing []model.ReleaseSummary) {
	c.lru.Add(key, listing)
}

// Delete drops key.
func (c *Listings) Delete(key string) {
	c.lru.Remove(key)
}

// TTL returns the configured entry lifetime.
func (c *Listings) TTL() time.Duration {
	return c.ttl
}

// Len returns the number of cached listings, including ones that expired
// but have not been swept yet.
func (c *Listings) Len() int {
	return c.lru.Len()
}
