package server

import (
	"log/slog"
	"net/http"

	"github.com/swipemail/swipemail/internal/auth"
	"github.com/swipemail/swipemail/internal/config"
	"github.com/swipemail/swipemail/internal/gmail"
	"github.com/swipemail/swipemail/internal/google"
	"github.com/swipemail/swipemail/internal/instrumentation"
	"github.com/swipemail/swipemail/internal/session"
)

// Server wires the session codec, the OAuth service and the Gmail client
// factory into HTTP handlers.
type Server struct {
	cfg     *config.Config
	codec   *session.Codec
	oauth   *google.Service
	auth    *auth.Manager
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	health  *HealthChecker

	// gmailOpts is appended to every Gmail client construction. Tests use
	// it to point the client at a local endpoint.
	gmailOpts []gmail.Option
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithGmailOptions appends options passed to every Gmail client. Test hook.
func WithGmailOptions(opts ...gmail.Option) ServerOption {
	return func(s *Server) { s.gmailOpts = append(s.gmailOpts, opts...) }
}

// New creates a Server.
func New(cfg *config.Config, codec *session.Codec, oauthSvc *google.Service, authMgr *auth.Manager, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:     cfg,
		codec:   codec,
		oauth:   oauthSvc,
		auth:    authMgr,
		logger:  logger,
		metrics: &instrumentation.Metrics{},
		health:  NewHealthChecker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Health returns the server's health checker so the serve command can flip
// readiness during shutdown.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/callback", s.handleCallback)
	mux.HandleFunc("GET /api/auth/session", s.handleSession)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	mux.Handle("GET /api/gmail/messages", s.requireSession(s.handleListMessages))
	mux.Handle("GET /api/gmail/labels", s.requireSession(s.handleListLabels))
	mux.Handle("POST /api/gmail/messages/mark-read", s.requireSession(s.handleMarkRead))
	mux.Handle("POST /api/gmail/messages/archive", s.requireSession(s.handleArchive))
	mux.Handle("POST /api/gmail/messages/star", s.requireSession(s.handleStar))

	s.health.RegisterHealthEndpoints(mux)

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})

	return s.observe(mux)
}

// newGmailClient builds a Gmail client for the request's access token.
func (s *Server) newGmailClient(r *http.Request, accessToken string) (*gmail.Client, error) {
	opts := append([]gmail.Option{gmail.WithLogger(s.logger)}, s.gmailOpts...)
	return gmail.NewClient(r.Context(), accessToken, opts...)
}
