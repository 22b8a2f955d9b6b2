// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: Every default that the loader, the cache or the handlers fall back to
// lives here so the values can be audited in one place.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultPort is the listen port. The frontend dev server proxies /api here.
const DefaultPort = 8000

// DefaultReadTimeout bounds reading a full inbound request.
const DefaultReadTimeout = 15 * time.Second

// DefaultWriteTimeout bounds writing a response, including proxied images.
const DefaultWriteTimeout = 60 * time.Second

// DefaultShutdownTimeout is how long in-flight requests get on SIGTERM.
const DefaultShutdownTimeout = 10 * time.Second

// MaxRequestBodySize caps inbound JSON bodies (auth callback).
const MaxRequestBodySize = 64 * 1024

// =============================================================================
// UPSTREAM (traQ)
// =============================================================================

// DefaultUpstreamBaseURL is the traQ v3 REST API root.
const DefaultUpstreamBaseURL = "https://q.trap.jp/api/v3"

// DefaultUpstreamTimeout is the outbound HTTP client timeout.
const DefaultUpstreamTimeout = 30 * time.Second

// MaxErrorBodyLogLen limits upstream error bodies in logs.
const MaxErrorBodyLogLen = 500

// =============================================================================
// STAMP CACHE
// =============================================================================

// DefaultStampTTL is how long the projected stamp list is served before refresh.
const DefaultStampTTL = time.Hour

// DefaultServeStaleOnError serves the previous stamp list when a refresh fails.
const DefaultServeStaleOnError = true

// =============================================================================
// IMAGE PROXY
// =============================================================================

// DefaultImageContentType is used when upstream omits Content-Type.
const DefaultImageContentType = "image/png"

// ImageCacheControl is attached to every proxied stamp image.
const ImageCacheControl = "public, max-age=3600"

// =============================================================================
// IDENTITY AND STATIC
// =============================================================================

// DefaultUserHeader is set by the authenticating reverse proxy.
const DefaultUserHeader = "X-Forwarded-User"

// DefaultGuestUserID is reported when the user header is absent.
const DefaultGuestUserID = "guest"

// DefaultStaticDir holds the built SPA.
const DefaultStaticDir = "./dist"

// DefaultIndexFile is the SPA entry document.
const DefaultIndexFile = "index.html"

// =============================================================================
// MONITORING
// =============================================================================

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "auto"
	DefaultLogOutput = "stdout"
)
