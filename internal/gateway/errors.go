package gateway

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"

	"github.com/stamppicker/stamp-gateway/internal/config"
	"github.com/stamppicker/stamp-gateway/internal/traq"
	"github.com/stamppicker/stamp-gateway/internal/utils"
)

// Client-facing error messages.
const (
	msgConfigError    = "Server environment configuration error"
	msgAuthFailed     = "traQ authentication failed"
	msgInternal       = "Internal server error"
	msgUnauthorized   = "Unauthorized"
	msgImageFailed    = "Failed to fetch stamp image"
	msgStampsFailed   = "Failed to fetch stamps from traQ"
	msgInvalidStampID = "Invalid stamp id"
	msgNotFound       = "Not found"
	msgMethodNotAllow = "Method not allowed"
)

// clientError is what a handler failure looks like on the wire.
// Details is omitted from the body when empty.
type clientError struct {
	Status  int
	Message string
	Details string
}

// upstreamErrorToClientError maps an error from the traQ client to a response.
// Upstream 4xx and 5xx codes pass through unchanged; any other non-2xx code
// becomes 502. Errors without a status use fallback, with the error text added
// as details.
func upstreamErrorToClientError(err error, fallback clientError) clientError {
	if errors.Is(err, traq.ErrMissingClientID) {
		return clientError{Status: http.StatusInternalServerError, Message: msgConfigError}
	}

	var authErr *traq.AuthError
	if errors.As(err, &authErr) {
		return clientError{Status: clientStatus(authErr.Status), Message: msgAuthFailed, Details: authErr.Body}
	}

	var fetchErr *traq.FetchError
	if errors.As(err, &fetchErr) {
		return clientError{Status: clientStatus(fetchErr.Status), Message: fallback.Message}
	}

	ce := fallback
	ce.Details = err.Error()
	return ce
}

// clientStatus keeps upstream error statuses. A 1xx or 3xx is not an error
// status a client can act on, so it is reported as a bad gateway.
func clientStatus(upstream int) int {
	if upstream < http.StatusBadRequest || upstream > 599 {
		return http.StatusBadGateway
	}
	return upstream
}

// writeClientError writes ce as {"error":...,"details":...}.
func writeClientError(w http.ResponseWriter, ce clientError) {
	body, _ := sjson.SetBytes([]byte(`{}`), "error", ce.Message)
	if ce.Details != "" {
		body, _ = sjson.SetBytes(body, "details", ce.Details)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ce.Status)
	_, _ = w.Write(body)
}

// logClientError records a failed request at a level matching its status.
// Upstream bodies are truncated; they never contain request credentials.
func logClientError(logger *zerolog.Logger, err error, ce clientError) {
	ev := logger.Warn()
	if ce.Status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	details := ce.Details
	if len(details) > config.MaxErrorBodyLogLen {
		details = details[:config.MaxErrorBodyLogLen] + "..."
	}
	ev.Err(err).Int("status", ce.Status).Str("details", details).Msg(ce.Message)
}

// writeJSON writes v with status. HTML characters are not escaped.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := utils.MarshalNoEscape(v)
	if err != nil {
		writeClientError(w, clientError{Status: http.StatusInternalServerError, Message: msgInternal, Details: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
