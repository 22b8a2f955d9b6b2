// HTTP handlers for the /api surface.
//
// DESIGN: Handlers stay thin:
//   - handleMe():           trusted proxy header to {"userId"}
//   - handleStamps():       stamp cache read, X-Cache reports how it was served
//   - handleAuthCallback(): OAuth code exchange, upstream token relayed verbatim
//   - handleStampImage():   streamed image relay with the caller's bearer token
//
// Upstream failures go through upstreamErrorToClientError in errors.go.
package gateway

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/stamppicker/stamp-gateway/internal/config"
	"github.com/stamppicker/stamp-gateway/internal/monitoring"
	"github.com/stamppicker/stamp-gateway/internal/stampcache"
	"github.com/stamppicker/stamp-gateway/internal/utils"
)

// =============================================================================
// IDENTITY
// =============================================================================

// handleMe returns the user id the authenticating proxy injected, or guest.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := utils.FirstNonEmpty(
		strings.TrimSpace(r.Header.Get(g.cfg.Identity.UserHeader)),
		g.cfg.Identity.GuestUserID,
	)
	writeJSON(w, http.StatusOK, map[string]string{"userId": userID})
}

// =============================================================================
// STAMPS
// =============================================================================

func (g *Gateway) handleStamps(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	stamps, res, err := g.stamps.Get(r.Context())
	if err != nil {
		ce := upstreamErrorToClientError(err, clientError{Status: http.StatusBadGateway, Message: msgStampsFailed})
		logClientError(logger, err, ce)
		writeClientError(w, ce)
		return
	}

	switch res {
	case stampcache.Hit:
		g.metrics.RecordCacheHit()
	case stampcache.Miss:
		g.metrics.RecordCacheMiss()
	case stampcache.Stale:
		g.metrics.RecordCacheStale()
	}
	setCacheResult(r, res.String())

	w.Header().Set("X-Cache", res.String())
	writeJSON(w, http.StatusOK, stamps)
}

// =============================================================================
// OAUTH CALLBACK
// =============================================================================

// handleAuthCallback exchanges {"code"} for a token. The body is read leniently:
// a missing or malformed code is sent upstream as "" and rejected there.
func (g *Gateway) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	if !g.cfg.HasClientID() {
		ce := clientError{Status: http.StatusInternalServerError, Message: msgConfigError}
		logger.Error().Msg("auth callback rejected: TRAQ_CLIENT_ID is not set")
		writeClientError(w, ce)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize))
	if err != nil {
		ce := clientError{Status: http.StatusInternalServerError, Message: msgInternal, Details: err.Error()}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ce.Status = http.StatusRequestEntityTooLarge
		}
		logClientError(logger, err, ce)
		writeClientError(w, ce)
		return
	}
	code := gjson.GetBytes(body, "code").String()

	start := time.Now()
	payload, err := g.traq.ExchangeCode(r.Context(), g.cfg.Upstream.ClientID, code)
	g.metrics.RecordTokenExchange(err == nil)
	if err != nil {
		ce := upstreamErrorToClientError(err, clientError{Status: http.StatusInternalServerError, Message: msgInternal})
		logClientError(logger, err, ce)
		writeClientError(w, ce)
		return
	}

	logger.Info().Dur("upstream", time.Since(start)).Msg("token exchange succeeded")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// =============================================================================
// STAMP IMAGE
// =============================================================================

// handleStampImage relays one stamp image using the caller's own token.
func (g *Gateway) handleStampImage(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeClientError(w, clientError{Status: http.StatusUnauthorized, Message: msgUnauthorized})
		return
	}

	stampID := stampIDParam(r)
	if strings.TrimSpace(stampID) == "" {
		writeClientError(w, clientError{Status: http.StatusBadRequest, Message: msgInvalidStampID})
		return
	}
	img, err := g.traq.FetchStampImage(r.Context(), stampID, token)
	g.metrics.RecordImageFetch(err == nil)
	if err != nil {
		ce := upstreamErrorToClientError(err, clientError{Status: http.StatusBadGateway, Message: msgImageFailed})
		logClientError(logger, err, ce)
		writeClientError(w, ce)
		return
	}
	defer img.Body.Close()

	contentType := utils.FirstNonEmpty(img.ContentType, config.DefaultImageContentType)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", config.ImageCacheControl)
	if img.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(img.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, img.Body)
	if err != nil {
		// Headers are already sent; the client sees a truncated body.
		logger.Warn().Err(err).Str("stamp_id", stampID).Int64("bytes", n).Msg("stamp image stream interrupted")
	}
}

// stampIDParam returns the decoded {stampId} segment.
func stampIDParam(r *http.Request) string {
	id := chi.URLParam(r, "stampId")
	if r.URL.RawPath == "" {
		return id
	}
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

// bearerToken extracts the token from "Bearer <token>". The scheme is
// case-insensitive. Any other scheme yields "".
func bearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// =============================================================================
// MISC
// =============================================================================

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"version": Version,
	})
}

func (g *Gateway) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	setRoute(r, monitoring.RouteNotFound)
	writeClientError(w, clientError{Status: http.StatusNotFound, Message: msgNotFound})
}

func (g *Gateway) handleAPIMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeClientError(w, clientError{Status: http.StatusMethodNotAllowed, Message: msgMethodNotAllow})
}
