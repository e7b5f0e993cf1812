package viewcache

import (
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
	"github.com/couchcryptid/covid-metrics-service/internal/observability"
)

// SnapshotSource provides the snapshot views are computed from.
type SnapshotSource interface {
	// Current returns the live snapshot, or nil before the first load.
	Current() *domain.Snapshot
}

// Cache computes views against the current snapshot and memoizes them in an
// in-memory LRU. Entries are keyed by snapshot ID, so a refresh never serves a
// view computed from an older table. Cached views are shared and must not be
// modified by callers.
type Cache struct {
	snapshots SnapshotSource
	cache     *lru.Cache[string, domain.View]
	metrics   *observability.Metrics
}

// New creates a view cache holding at most maxEntries views. A size of 0
// disables caching.
func New(snapshots SnapshotSource, maxEntries int, metrics *observability.Metrics) *Cache {
	c := &Cache{snapshots: snapshots, metrics: metrics}
	if maxEntries > 0 {
		// lru.New only fails for a non-positive size.
		c.cache, _ = lru.New[string, domain.View](maxEntries)
	}
	return c
}

// View returns the view for sel and the snapshot it was computed from.
func (c *Cache) View(sel domain.Selection) (domain.View, *domain.Snapshot, error) {
	sel = sel.WithDefaults()
	snap := c.snapshots.Current()
	if snap == nil {
		c.metrics.ViewRequests.WithLabelValues(modeLabel(sel), "not_ready").Inc()
		return domain.View{}, nil, domain.ErrNotReady
	}

	key := snap.ID + "|" + sel.Key()
	if c.cache != nil {
		if view, ok := c.cache.Get(key); ok {
			c.metrics.ViewCache.WithLabelValues("hit").Inc()
			c.metrics.ViewRequests.WithLabelValues(modeLabel(sel), "success").Inc()
			return view, snap, nil
		}
		c.metrics.ViewCache.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	view, err := domain.ComputeView(snap.Table, sel)
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrInvalidSelection) {
			outcome = "invalid"
		}
		c.metrics.ViewRequests.WithLabelValues(modeLabel(sel), outcome).Inc()
		return domain.View{}, snap, err
	}
	c.metrics.ViewDuration.Observe(time.Since(start).Seconds())
	c.metrics.ViewRequests.WithLabelValues(modeLabel(sel), "success").Inc()

	if c.cache != nil {
		c.cache.Add(key, view)
	}
	return view, snap, nil
}

// Len reports the number of cached views.
func (c *Cache) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

// modeLabel keeps the metric label set bounded when the mode is user input.
func modeLabel(sel domain.Selection) string {
	switch sel.Mode {
	case domain.ModeCumulative, domain.ModeIncremental, domain.ModeRatePerMillion, domain.ModeOtherRate:
		return string(sel.Mode)
	default:
		return "unknown"
	}
}
