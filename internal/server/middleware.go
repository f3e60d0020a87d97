package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/swipemail/swipemail/internal/apperr"
	"github.com/swipemail/swipemail/internal/instrumentation"
	"github.com/swipemail/swipemail/internal/logging"
	"github.com/swipemail/swipemail/internal/session"
)

// sessionHandler is an http handler that additionally receives the decoded,
// refreshed session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// requireSession decrypts the session cookie and ensures the access token is
// fresh before invoking the handler. When the refresh rotated the token the
// cookie is re-issued so the next request carries the new expiry.
func (s *Server) requireSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessionFromRequest(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		fresh, refreshed, err := s.auth.EnsureFresh(r.Context(), sess)
		if err != nil {
			// The cookie stays in place on failure. A refresh that failed
			// because the token endpoint was briefly unreachable must not
			// destroy the session; the next request simply retries.
			if e := apperr.From(err); e.Kind == apperr.KindAuthExpired {
				s.metrics.RecordTokenRefresh(r.Context(), instrumentation.ResultError)
			}
			s.writeError(w, r, err)
			return
		}

		if refreshed {
			s.metrics.RecordTokenRefresh(r.Context(), instrumentation.ResultSuccess)
			if token, encodeErr := s.codec.Encode(fresh); encodeErr == nil {
				http.SetCookie(w, session.Cookie(token, s.secureCookies()))
			} else {
				s.logger.Warn("failed to re-encode refreshed session",
					logging.UserHash(fresh.User.Email),
					logging.Err(encodeErr),
				)
			}
		}

		next(w, r, fresh)
	})
}

// sessionFromRequest decodes the session cookie. Absent or undecodable
// cookies both map to an auth-required error so stale cookies from a key
// rotation behave like a signed-out user.
func (s *Server) sessionFromRequest(r *http.Request) (*session.Session, error) {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, apperr.AuthRequired("Not authenticated")
	}
	sess, err := s.codec.Decode(cookie.Value)
	if err != nil {
		return nil, apperr.AuthRequired("Not authenticated")
	}
	return sess, nil
}

func (s *Server) secureCookies() bool {
	return !s.cfg.Dev
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observe wraps the mux with panic recovery, request logging and metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("panic in handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", p),
				)
				writeJSONStatus(rec, http.StatusInternalServerError,
					errorBody{Error: "Internal server error", Kind: apperr.KindInternal.String()})
			}
			s.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rec.status, time.Since(start))
		}()

		next.ServeHTTP(rec, r)

		s.logger.Debug("request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
