// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests:  inbound totals split by outcome class
//   - upstream:  traQ calls (token exchange, image fetch, stamp refresh)
//   - cache:     stamp cache hit/miss/stale
//
// The same counters back GET /stats (JSON) and GET /metrics (Prometheus).
package monitoring

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "stamp_gateway"

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	// Request counters
	requests     atomic.Int64
	successes    atomic.Int64
	clientErrors atomic.Int64
	serverErrors atomic.Int64

	// Upstream counters
	tokenExchanges        atomic.Int64
	tokenExchangeFailures atomic.Int64
	imageFetches          atomic.Int64
	imageFetchFailures    atomic.Int64
	stampRefreshes        atomic.Int64
	stampRefreshFailures  atomic.Int64

	// Stamp cache counters
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	cacheStale  atomic.Int64

	registry *prometheus.Registry
}

// NewMetricsCollector creates a new metrics collector with its own
// Prometheus registry.
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		startedAt: time.Now(),
		registry:  prometheus.NewRegistry(),
	}
	mc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc.registerCounters()
	return mc
}

func (mc *MetricsCollector) registerCounters() {
	counter := func(subsystem, name, help string, v *atomic.Int64, labels prometheus.Labels) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(v.Load()) })
	}
	outcome := func(o string) prometheus.Labels { return prometheus.Labels{"outcome": o} }
	op := func(o string) prometheus.Labels { return prometheus.Labels{"op": o} }

	mc.registry.MustRegister(
		counter("http", "requests_total", "Inbound requests by outcome class.", &mc.successes, outcome("success")),
		counter("http", "requests_total", "Inbound requests by outcome class.", &mc.clientErrors, outcome("client_error")),
		counter("http", "requests_total", "Inbound requests by outcome class.", &mc.serverErrors, outcome("server_error")),
		counter("upstream", "calls_total", "Outbound traQ calls by operation.", &mc.tokenExchanges, op("token_exchange")),
		counter("upstream", "calls_total", "Outbound traQ calls by operation.", &mc.imageFetches, op("stamp_image")),
		counter("upstream", "calls_total", "Outbound traQ calls by operation.", &mc.stampRefreshes, op("stamp_list")),
		counter("upstream", "failures_total", "Failed outbound traQ calls by operation.", &mc.tokenExchangeFailures, op("token_exchange")),
		counter("upstream", "failures_total", "Failed outbound traQ calls by operation.", &mc.imageFetchFailures, op("stamp_image")),
		counter("upstream", "failures_total", "Failed outbound traQ calls by operation.", &mc.stampRefreshFailures, op("stamp_list")),
		counter("stamp_cache", "lookups_total", "Stamp cache lookups by result.", &mc.cacheHits, outcome("hit")),
		counter("stamp_cache", "lookups_total", "Stamp cache lookups by result.", &mc.cacheMisses, outcome("miss")),
		counter("stamp_cache", "lookups_total", "Stamp cache lookups by result.", &mc.cacheStale, outcome("stale")),
	)
}

// RecordRequest records a finished inbound request by status code.
func (mc *MetricsCollector) RecordRequest(status int, _ time.Duration) {
	mc.requests.Add(1)
	switch {
	case status >= 500:
		mc.serverErrors.Add(1)
	case status >= 400:
		mc.clientErrors.Add(1)
	default:
		mc.successes.Add(1)
	}
}

// RecordTokenExchange records an OAuth code exchange.
func (mc *MetricsCollector) RecordTokenExchange(success bool) {
	mc.tokenExchanges.Add(1)
	if !success {
		mc.tokenExchangeFailures.Add(1)
	}
}

// RecordImageFetch records a stamp image fetch.
func (mc *MetricsCollector) RecordImageFetch(success bool) {
	mc.imageFetches.Add(1)
	if !success {
		mc.imageFetchFailures.Add(1)
	}
}

// RecordStampRefresh records an upstream stamp list refresh.
func (mc *MetricsCollector) RecordStampRefresh(success bool) {
	mc.stampRefreshes.Add(1)
	if !success {
		mc.stampRefreshFailures.Add(1)
	}
}

// RecordCacheHit records a fresh stamp cache read.
func (mc *MetricsCollector) RecordCacheHit() { mc.cacheHits.Add(1) }

// RecordCacheMiss records a stamp cache read that refreshed.
func (mc *MetricsCollector) RecordCacheMiss() { mc.cacheMisses.Add(1) }

// RecordCacheStale records a stamp cache read served stale after a failed refresh.
func (mc *MetricsCollector) RecordCacheStale() { mc.cacheStale.Add(1) }

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (mc *MetricsCollector) FullStats() StatsResponse {
	uptime := time.Since(mc.startedAt)
	hits := mc.cacheHits.Load()
	misses := mc.cacheMisses.Load()
	stale := mc.cacheStale.Load()

	var hitRate float64
	if total := hits + misses + stale; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:        mc.requests.Load(),
			Successful:   mc.successes.Load(),
			ClientErrors: mc.clientErrors.Load(),
			ServerErrors: mc.serverErrors.Load(),
		},
		Upstream: UpstreamStats{
			TokenExchanges:        mc.tokenExchanges.Load(),
			TokenExchangeFailures: mc.tokenExchangeFailures.Load(),
			ImageFetches:          mc.imageFetches.Load(),
			ImageFetchFailures:    mc.imageFetchFailures.Load(),
			StampRefreshes:        mc.stampRefreshes.Load(),
			StampRefreshFailures:  mc.stampRefreshFailures.Load(),
		},
		Cache: CacheStats{
			Hits:    hits,
			Misses:  misses,
			Stale:   stale,
			HitRate: hitRate,
		},
	}
}

// Handler serves the Prometheus exposition for this collector's registry.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
