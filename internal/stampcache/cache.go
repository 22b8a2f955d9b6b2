// Package stampcache holds the process-wide projected stamp list.
//
// DESIGN: One cache slot, owned by the gateway and injected into the stamp
// handler:
//   - Get():      serve fresh entries, refresh synchronously when stale
//   - refresh():  single-flight, so concurrent stale readers share one upstream call
//   - Snapshot(): read-only view for /stats
//
// A failed refresh never touches the cached state. With ServeStale enabled
// and a previous successful fetch, the old list is served instead of the error.
package stampcache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/stamppicker/stamp-gateway/internal/traq"
)

// Fetcher loads the upstream stamp list. *traq.Client implements it.
type Fetcher interface {
	GetStamps(ctx context.Context) ([]traq.StampSummary, error)
}

// Result describes how a Get call was served.
type Result int

const (
	// Hit means the cached list was fresh.
	Hit Result = iota
	// Miss means the list was refreshed for this call.
	Miss
	// Stale means the refresh failed and the previous list was served.
	Stale
)

func (r Result) String() string {
	switch r {
	case Hit:
		return "HIT"
	case Miss:
		return "MISS"
	case Stale:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

// Cache is the single stamp list slot.
type Cache struct {
	fetcher    Fetcher
	ttl        time.Duration
	serveStale bool
	now        func() time.Time

	mu        sync.RWMutex
	stamps    []traq.StampSummary
	fetchedAt time.Time

	group singleflight.Group

	onRefresh func(err error)
}

// Option configures the Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithServeStale serves the previous list when refresh fails.
func WithServeStale(enabled bool) Option {
	return func(c *Cache) {
		c.serveStale = enabled
	}
}

// WithRefreshHook is called after every upstream refresh attempt.
func WithRefreshHook(fn func(err error)) Option {
	return func(c *Cache) {
		c.onRefresh = fn
	}
}

// New creates an empty cache. The first Get always refreshes.
func New(fetcher Fetcher, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		stamps:  []traq.StampSummary{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the stamp list, refreshing first if the entry is stale.
// The returned slice is shared and must not be modified.
func (c *Cache) Get(ctx context.Context) ([]traq.StampSummary, Result, error) {
	c.mu.RLock()
	stamps, fetchedAt := c.stamps, c.fetchedAt
	c.mu.RUnlock()

	if !c.isStale(fetchedAt) {
		return stamps, Hit, nil
	}

	ch := c.group.DoChan("stamps", func() (interface{}, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, Miss, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return res.Val.([]traq.StampSummary), Miss, nil
		}
		if c.serveStale && !fetchedAt.IsZero() {
			log.Warn().Err(res.Err).
				Time("fetched_at", fetchedAt).
				Int("stamps", len(stamps)).
				Msg("stamp refresh failed, serving stale list")
			return stamps, Stale, nil
		}
		return nil, Miss, res.Err
	}
}

// isStale reports whether an entry fetched at fetchedAt must be refreshed.
// The boundary itself (exactly TTL old) is still fresh.
func (c *Cache) isStale(fetchedAt time.Time) bool {
	if fetchedAt.IsZero() {
		return true
	}
	return c.now().Sub(fetchedAt) > c.ttl
}

func (c *Cache) refresh(ctx context.Context) ([]traq.StampSummary, error) {
	// A caller may have finished a refresh between our read and this flight.
	c.mu.RLock()
	if !c.isStale(c.fetchedAt) {
		stamps := c.stamps
		c.mu.RUnlock()
		return stamps, nil
	}
	c.mu.RUnlock()

	start := c.now()
	stamps, err := c.fetcher.GetStamps(ctx)
	if c.onRefresh != nil {
		c.onRefresh(err)
	}
	if err != nil {
		return nil, err
	}

	now := c.now()
	c.mu.Lock()
	if now.After(c.fetchedAt) {
		c.stamps = stamps
		c.fetchedAt = now
	}
	stamps = c.stamps
	c.mu.Unlock()

	log.Info().
		Int("stamps", len(stamps)).
		Dur("duration", now.Sub(start)).
		Msg("stamp list refreshed")
	return stamps, nil
}

// Snapshot is a read-only view of the cache state.
type Snapshot struct {
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
	TTL       string    `json:"ttl"`
}

// Snapshot returns the current cache state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Count:     len(c.stamps),
		FetchedAt: c.fetchedAt,
		Stale:     c.isStale(c.fetchedAt),
		TTL:       c.ttl.String(),
	}
}
