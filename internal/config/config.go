// Package config holds the runtime configuration for the swipemail server.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Default values applied by cmd/serve when flags and environment are silent.
const (
	DefaultAddr            = ":8080"
	DefaultMetricsAddr     = ":9090"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultHTTPTimeout     = 30 * time.Second
)

// Config holds everything the serve command needs to build the server.
type Config struct {
	// Addr is the listen address for the API server (e.g., ":8080").
	Addr string

	// BaseURL is the public URL of the frontend. OAuth callback redirects
	// land here (e.g., "https://swipemail.example.com").
	BaseURL string

	// AuthBaseURL is the public URL of this server, used to build the
	// OAuth redirect URI. Defaults to BaseURL when empty.
	AuthBaseURL string

	// GoogleClientID and GoogleClientSecret are the OAuth client
	// credentials for the Google consent flow and token refresh.
	GoogleClientID     string
	GoogleClientSecret string

	// SessionSecret derives the AES-256 key that seals session cookies.
	SessionSecret string

	// Dev disables the Secure cookie attribute for plain-HTTP development.
	Dev bool

	// Debug enables debug logging.
	Debug bool

	// MetricsEnabled determines whether the dedicated metrics server starts.
	MetricsEnabled bool

	// MetricsAddr is the listen address for the metrics server.
	MetricsAddr string

	// ShutdownTimeout bounds graceful shutdown of the HTTP servers.
	ShutdownTimeout time.Duration

	// HTTPClientTimeout bounds outbound calls to Google APIs.
	HTTPClientTimeout time.Duration
}

// Validate checks that all required settings are present.
func (c *Config) Validate() error {
	var missing []string
	if c.GoogleClientID == "" {
		missing = append(missing, "google client ID (--google-client-id or GOOGLE_CLIENT_ID)")
	}
	if c.GoogleClientSecret == "" {
		missing = append(missing, "google client secret (--google-client-secret or GOOGLE_CLIENT_SECRET)")
	}
	if c.SessionSecret == "" {
		missing = append(missing, "session secret (--session-secret or SESSION_SECRET)")
	}
	if c.BaseURL == "" {
		missing = append(missing, "base URL (--base-url or APP_BASE_URL)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RedirectURI returns the OAuth callback URL registered with Google.
func (c *Config) RedirectURI() string {
	base := c.AuthBaseURL
	if base == "" {
		base = c.BaseURL
	}
	return strings.TrimRight(base, "/") + "/api/auth/callback"
}
