// Package auth owns the access-token lifecycle: deciding when a session's
// provider credential is stale, refreshing it, and folding the renewed
// credential back into a new session value.
package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/swipemail/swipemail/internal/apperr"
	"github.com/swipemail/swipemail/internal/google"
	"github.com/swipemail/swipemail/internal/logging"
	"github.com/swipemail/swipemail/internal/session"
)

const (
	// refreshMargin is the safety window: a token within one minute of
	// expiry is treated as already expired so in-flight provider calls
	// never ride a credential that lapses mid-request.
	refreshMargin = time.Minute

	// defaultExpirySeconds is assumed when the provider omits expires_in.
	defaultExpirySeconds = 3600
)

const expiredMessage = "Google session expired. Please sign in again."

// Refresher mints a new token pair from a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*google.TokenPair, error)
}

// Manager performs the per-request freshness check. Concurrent refreshes for
// the same user are collapsed into a single provider call, so a burst of
// requests after expiry never races the provider.
type Manager struct {
	refresher Refresher
	group     singleflight.Group
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithNow overrides the clock. Test hook.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager backed by the given refresher.
func NewManager(refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		refresher: refresher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureFresh returns a session whose access token is valid for at least the
// refresh margin. The bool reports whether a refresh happened, which tells
// the caller to overwrite the session cookie. On refresh failure the input
// session is left untouched and an AuthExpired error is returned; the caller
// must not clear the cookie, so the user can retry or re-consent.
func (m *Manager) EnsureFresh(ctx context.Context, s *session.Session) (*session.Session, bool, error) {
	if s == nil {
		return nil, false, apperr.AuthRequired("Authentication required")
	}
	if s.RefreshToken == "" {
		return nil, false, apperr.AuthExpired("Google session is incomplete. Please sign in again.", nil)
	}
	if !m.needsRefresh(s) {
		return s, false, nil
	}

	v, err, shared := m.group.Do(s.User.ID, func() (any, error) {
		return m.refresher.Refresh(ctx, s.RefreshToken)
	})
	if err != nil {
		m.logger.Warn("access token refresh failed",
			logging.Operation("auth.refresh"),
			logging.UserHash(s.User.Email),
			logging.Err(err))
		return nil, false, apperr.AuthExpired(expiredMessage, err)
	}
	pair := v.(*google.TokenPair)

	next := *s
	next.AccessToken = pair.AccessToken
	expiresIn := pair.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpirySeconds
	}
	next.AccessTokenExpiresAt = m.now().Add(time.Duration(expiresIn) * time.Second).UnixMilli()
	if pair.Scope != "" {
		next.Scope = pair.Scope
	}
	if pair.RefreshToken != "" {
		next.RefreshToken = pair.RefreshToken
	}

	m.logger.Debug("access token refreshed",
		logging.Operation("auth.refresh"),
		logging.UserHash(s.User.Email),
		slog.Bool("shared", shared))
	return &next, true, nil
}

// needsRefresh reports whether the token is inside the refresh margin. A
// missing or zero expiry counts as already expired.
func (m *Manager) needsRefresh(s *session.Session) bool {
	if s.AccessTokenExpiresAt == 0 {
		return true
	}
	return m.now().UnixMilli() >= s.AccessTokenExpiresAt-refreshMargin.Milliseconds()
}
