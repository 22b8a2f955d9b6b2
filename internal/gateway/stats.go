// Package gateway - stats.go exposes operational metrics.
//
// GET /stats returns request, upstream and cache counters as JSON.
// GET /metrics serves the same counters in Prometheus format.
// Both are restricted to localhost.
package gateway

import (
	"net"
	"net/http"

	"github.com/stamppicker/stamp-gateway/internal/monitoring"
	"github.com/stamppicker/stamp-gateway/internal/stampcache"
)

// StatsResponse is the JSON response for GET /stats.
type StatsResponse struct {
	monitoring.StatsResponse
	StampCache stampcache.Snapshot `json:"stamp_cache"`
	Version    string              `json:"version"`
}

// handleStats returns aggregated metrics as JSON.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	resp := StatsResponse{
		StatsResponse: g.metrics.FullStats(),
		StampCache:    g.stamps.Snapshot(),
		Version:       Version,
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

// handleMetrics serves the Prometheus exposition.
func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	g.metrics.Handler().ServeHTTP(w, r)
}

// isLoopback reports whether remoteAddr is a loopback address.
// The raw connection address is used; forwarding headers are not trusted.
func isLoopback(remoteAddr string) bool {
	ip := net.ParseIP(clientIP(remoteAddr))
	return ip != nil && ip.IsLoopback()
}
