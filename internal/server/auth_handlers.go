package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/swipemail/swipemail/internal/logging"
	"github.com/swipemail/swipemail/internal/session"
)

// Reasons appended to the frontend redirect when the OAuth callback fails.
const (
	authErrorMissingCode    = "missing_code"
	authErrorStateMismatch  = "state_mismatch"
	authErrorOAuthError     = "oauth_error"
	authErrorCallbackFailed = "callback_failed"
)

const defaultTokenLifetime = 3600 * time.Second

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := newStateValue()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, session.StateCookie(state, s.secureCookies()))
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// State is single-use. Consume it on every exit path, success or not.
	http.SetCookie(w, session.ClearStateCookie(s.secureCookies()))

	if query.Get("error") != "" {
		s.logger.Warn("oauth consent denied",
			logging.Operation("auth.callback"),
			logging.Status(logging.StatusError),
		)
		s.redirectWithAuthError(w, r, authErrorOAuthError)
		return
	}

	code := query.Get("code")
	if code == "" {
		s.redirectWithAuthError(w, r, authErrorMissingCode)
		return
	}

	stateCookie, err := r.Cookie(session.StateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != query.Get("state") {
		s.redirectWithAuthError(w, r, authErrorStateMismatch)
		return
	}

	pair, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("token exchange failed",
			logging.Operation("auth.callback"),
			logging.Err(err),
		)
		s.redirectWithAuthError(w, r, authErrorCallbackFailed)
		return
	}
	if pair.RefreshToken == "" {
		// Without a refresh token the session would silently die within
		// the hour. Fail the login instead.
		s.logger.Error("token exchange returned no refresh token",
			logging.Operation("auth.callback"),
		)
		s.redirectWithAuthError(w, r, authErrorCallbackFailed)
		return
	}

	info, err := s.oauth.UserInfo(r.Context(), pair.AccessToken)
	if err != nil {
		s.logger.Error("userinfo fetch failed",
			logging.Operation("auth.callback"),
			logging.Err(err),
		)
		s.redirectWithAuthError(w, r, authErrorCallbackFailed)
		return
	}

	lifetime := defaultTokenLifetime
	if pair.ExpiresIn > 0 {
		lifetime = time.Duration(pair.ExpiresIn) * time.Second
	}

	name := info.Name
	if name == "" {
		name = info.GivenName
	}
	if name == "" {
		name = info.Email
	}

	sess := &session.Session{
		Version: session.CurrentVersion,
		User: session.User{
			ID:      info.Sub,
			Email:   info.Email,
			Name:    name,
			Picture: info.Picture,
		},
		Scope:                pair.Scope,
		AccessToken:          pair.AccessToken,
		RefreshToken:         pair.RefreshToken,
		AccessTokenExpiresAt: time.Now().Add(lifetime).UnixMilli(),
	}

	token, err := s.codec.Encode(sess)
	if err != nil {
		s.logger.Error("session encode failed",
			logging.Operation("auth.callback"),
			logging.UserHash(info.Email),
			logging.Err(err),
		)
		s.redirectWithAuthError(w, r, authErrorCallbackFailed)
		return
	}

	s.logger.Info("user signed in",
		logging.Operation("auth.callback"),
		logging.Status(logging.StatusSuccess),
		logging.UserHash(info.Email),
	)

	http.SetCookie(w, session.Cookie(token, s.secureCookies()))
	http.Redirect(w, r, s.cfg.BaseURL, http.StatusFound)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{
		"user":  sess.User,
		"scope": sess.Scope,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, session.ClearCookie(s.secureCookies()))
	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) redirectWithAuthError(w http.ResponseWriter, r *http.Request, reason string) {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	http.Redirect(w, r, base+"/?authError="+reason, http.StatusFound)
}

func newStateValue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
