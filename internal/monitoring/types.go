// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Route:         Identifies which API endpoint handled a request
//   - RequestEvent:  Telemetry data for each request
//   - StatsResponse: Body of GET /stats
package monitoring

import "time"

// =============================================================================
// ROUTES - Used by middleware and telemetry
// =============================================================================

// Route identifies the endpoint that served a request.
type Route string

const (
	RouteMe       Route = "me"
	RouteStamps   Route = "stamps"
	RouteAuth     Route = "auth_callback"
	RouteImage    Route = "stamp_image"
	RouteStatic   Route = "static"
	RouteOps      Route = "ops"
	RouteNotFound Route = "not_found"
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// RequestEvent captures one request through the gateway.
// It never carries credentials, codes or user identifiers.
type RequestEvent struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Route        Route     `json:"route,omitempty"`
	ClientIP     string    `json:"client_ip"`
	StatusCode   int       `json:"status_code"`
	ResponseSize int       `json:"response_size"`
	Cache        string    `json:"cache,omitempty"`
	Success      bool      `json:"success"`
	LatencyMs    int64     `json:"latency_ms"`
}

// TelemetryConfig controls the JSONL request log.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string
	LogToStdout bool
}

// =============================================================================
// STATS RESPONSE - GET /stats
// =============================================================================

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string        `json:"uptime"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartedAt     string        `json:"started_at"`
	Requests      RequestStats  `json:"requests"`
	Upstream      UpstreamStats `json:"upstream"`
	Cache         CacheStats    `json:"cache"`
}

// RequestStats holds inbound request counts.
type RequestStats struct {
	Total        int64 `json:"total"`
	Successful   int64 `json:"successful"`
	ClientErrors int64 `json:"client_errors"`
	ServerErrors int64 `json:"server_errors"`
}

// UpstreamStats holds outbound traQ call counts.
type UpstreamStats struct {
	TokenExchanges        int64 `json:"token_exchanges"`
	TokenExchangeFailures int64 `json:"token_exchange_failures"`
	ImageFetches          int64 `json:"image_fetches"`
	ImageFetchFailures    int64 `json:"image_fetch_failures"`
	StampRefreshes        int64 `json:"stamp_refreshes"`
	StampRefreshFailures  int64 `json:"stamp_refresh_failures"`
}

// CacheStats holds stamp cache counters.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Stale   int64   `json:"stale"`
	HitRate float64 `json:"hit_rate"`
}
