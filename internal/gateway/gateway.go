// Package gateway serves the stamp picker's HTTP surface.
//
// DESIGN: One process, one router:
//   - /api/*:         identity, stamp list, OAuth callback, image relay (CORS enabled)
//   - /healthz:       liveness
//   - /stats,/metrics: loopback-only operational views
//   - everything else: the built SPA with index.html fallback
//
// FILES:
//   - gateway.go:    Gateway lifecycle and routing
//   - handler.go:    /api handlers
//   - errors.go:     upstream error to client response mapping
//   - middleware.go: request id, access log, panic recovery
//   - spa.go:        static file serving
//   - stats.go:      /stats and /metrics
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/stamppicker/stamp-gateway/internal/config"
	"github.com/stamppicker/stamp-gateway/internal/monitoring"
	"github.com/stamppicker/stamp-gateway/internal/stampcache"
	"github.com/stamppicker/stamp-gateway/internal/traq"
	"github.com/stamppicker/stamp-gateway/internal/utils"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Gateway wires the traQ client and stamp cache into an HTTP server.
type Gateway struct {
	cfg     *config.Config
	traq    *traq.Client
	stamps  *stampcache.Cache
	metrics *monitoring.MetricsCollector
	tracker *monitoring.Tracker
	spa     *spaHandler
	server  *http.Server
}

// New builds a Gateway from cfg. It does not start listening.
func New(cfg *config.Config) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		metrics: monitoring.NewMetricsCollector(),
	}

	g.traq = traq.NewClient(cfg.Upstream.BaseURL,
		traq.WithTimeout(cfg.Upstream.Timeout),
		traq.WithBotToken(cfg.Upstream.BotToken),
	)
	g.stamps = stampcache.New(g.traq, cfg.Cache.TTL,
		stampcache.WithServeStale(cfg.Cache.StaleOnError()),
		stampcache.WithRefreshHook(func(err error) {
			g.metrics.RecordStampRefresh(err == nil)
		}),
	)

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.RequestLogPath != "" || cfg.Monitoring.RequestLogStdout,
		LogPath:     cfg.Monitoring.RequestLogPath,
		LogToStdout: cfg.Monitoring.RequestLogStdout,
	})
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Monitoring.RequestLogPath).Msg("request log disabled")
		tracker = nil
	}
	g.tracker = tracker

	g.spa = newSPAHandler(cfg.Static.Dir, cfg.Static.Index)

	g.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      g.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return g
}

// Handler returns the fully wired router.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(g.requestID)
	r.Use(g.accessLog)
	r.Use(g.recoverer)

	r.Get("/healthz", g.handleHealth)
	r.Get("/stats", g.handleStats)
	r.Get("/metrics", g.handleMetrics)

	r.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: g.cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Cache", "X-Request-ID"},
			MaxAge:         300,
		}))
		api.Get("/me", g.handleMe)
		api.Get("/stamps", g.handleStamps)
		api.Post("/auth/callback", g.handleAuthCallback)
		api.Get("/stamps/{stampId}/image", g.handleStampImage)
		api.NotFound(g.handleAPINotFound)
		api.MethodNotAllowed(g.handleAPIMethodNotAllowed)
	})

	r.NotFound(g.spa.ServeHTTP)
	r.MethodNotAllowed(g.spa.ServeHTTP)
	return r
}

// Start listens on the configured port and blocks until the server stops.
func (g *Gateway) Start() error {
	log.Info().
		Str("addr", g.server.Addr).
		Str("version", Version).
		Str("upstream", g.traq.BaseURL()).
		Str("client_id", utils.MaskKey(g.cfg.Upstream.ClientID)).
		Bool("bot_token", g.traq.HasBotToken()).
		Str("static_dir", g.cfg.Static.Dir).
		Dur("stamp_ttl", g.cfg.Cache.TTL).
		Msg("stamp gateway starting")

	if !g.cfg.HasClientID() {
		log.Warn().Msg("TRAQ_CLIENT_ID is not set; /api/auth/callback will fail")
	}

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the request log.
func (g *Gateway) Shutdown(ctx context.Context) error {
	log.Info().Msg("stamp gateway shutting down")
	err := g.server.Shutdown(ctx)
	if cerr := g.tracker.Close(); err == nil {
		err = cerr
	}
	return err
}
