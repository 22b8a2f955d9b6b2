package gateway

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stamppicker/stamp-gateway/internal/monitoring"
)

const (
	headerRequestID    = "X-Request-ID"
	maxRequestIDLength = 128
)

// requestInfo is filled in by handlers and read back by accessLog.
type requestInfo struct {
	route monitoring.Route
	cache string
}

type requestInfoKey struct{}

func setRoute(r *http.Request, route monitoring.Route) {
	if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
		info.route = route
	}
}

func setCacheResult(r *http.Request, result string) {
	if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
		info.cache = result
	}
}

// routeByPattern maps chi route patterns to telemetry routes.
var routeByPattern = map[string]monitoring.Route{
	"/api/me":                     monitoring.RouteMe,
	"/api/stamps":                 monitoring.RouteStamps,
	"/api/auth/callback":          monitoring.RouteAuth,
	"/api/stamps/{stampId}/image": monitoring.RouteImage,
	"/healthz":                    monitoring.RouteOps,
	"/stats":                      monitoring.RouteOps,
	"/metrics":                    monitoring.RouteOps,
}

// =============================================================================
// REQUEST ID
// =============================================================================

// requestID honours a sane inbound X-Request-ID or generates one, echoes it,
// and binds it to the request-scoped logger.
func (g *Gateway) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		logger := log.With().Str("request_id", id).Logger()
		ctx := logger.WithContext(r.Context())
		ctx = monitoring.WithRequestID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// =============================================================================
// ACCESS LOG
// =============================================================================

// accessLog records one line and one metrics sample per request.
// Headers are never logged, so Authorization stays out of the logs.
func (g *Gateway) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info))

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		route := info.route
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if mapped, ok := routeByPattern[rctx.RoutePattern()]; ok {
				route = mapped
			}
		}

		g.metrics.RecordRequest(status, duration)
		g.tracker.RecordRequest(&monitoring.RequestEvent{
			RequestID:    monitoring.RequestIDFromContext(r.Context()),
			Timestamp:    start,
			Method:       r.Method,
			Path:         r.URL.Path,
			Route:        route,
			ClientIP:     clientIP(r.RemoteAddr),
			StatusCode:   status,
			ResponseSize: ww.BytesWritten(),
			Cache:        info.cache,
			Success:      status < http.StatusBadRequest,
			LatencyMs:    duration.Milliseconds(),
		})

		logger := zerolog.Ctx(r.Context())
		ev := logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			ev = logger.Warn()
		case route == monitoring.RouteOps || route == monitoring.RouteStatic:
			ev = logger.Debug()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", string(route)).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Str("cache", info.cache).
			Msg("request")
	})
}

// =============================================================================
// RECOVERY
// =============================================================================

// recoverer turns a handler panic into a JSON 500. The stack is logged only.
// If the handler already started its response, nothing more is written.
func (g *Gateway) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww, ok := w.(middleware.WrapResponseWriter)
		if !ok {
			ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			zerolog.Ctx(r.Context()).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
			if ww.Status() != 0 {
				return
			}
			writeClientError(ww, clientError{Status: http.StatusInternalServerError, Message: msgInternal})
		}()
		next.ServeHTTP(ww, r)
	})
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
