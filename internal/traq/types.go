package traq

import (
	"errors"
	"fmt"
	"io"
)

// =============================================================================
// STAMPS
// =============================================================================

// StampSummary is the reduced projection of an upstream stamp record.
// The short JSON keys keep the list small for the picker.
type StampSummary struct {
	Name string `json:"n"`
	ID   string `json:"i"`
}

// StampImage is a streamed stamp image. The caller must close Body.
type StampImage struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrMissingClientID is returned when an exchange is attempted without an
// OAuth client id configured.
var ErrMissingClientID = errors.New("traq: oauth client id is not configured")

// AuthError is returned when upstream rejects an authorization code.
// Body is upstream's raw response text.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("traq: token exchange rejected with status %d", e.Status)
}

// FetchError is returned when upstream rejects a data or image request.
type FetchError struct {
	Op     string
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("traq: %s failed with status %d", e.Op, e.Status)
}
