package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/swipemail/swipemail/internal/auth"
	"github.com/swipemail/swipemail/internal/config"
	"github.com/swipemail/swipemail/internal/google"
	"github.com/swipemail/swipemail/internal/instrumentation"
	"github.com/swipemail/swipemail/internal/logging"
	"github.com/swipemail/swipemail/internal/server"
	"github.com/swipemail/swipemail/internal/session"
)

func newServeCmd() *cobra.Command {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the swipemail API server",
		Long: `Start the swipemail API server.

The server handles the Google OAuth flow, stores tokens in an encrypted
session cookie, and proxies Gmail message and label operations for the
swipemail frontend.

Configuration:
  OAuth credentials (required):
    --google-client-id and --google-client-secret flags
    OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars

  Session secret (required):
    --session-secret flag OR SESSION_SECRET env var
    At least 16 characters; the AES-256 key is derived from it, so
    rotating the secret invalidates every existing session.

  Base URL (required):
    --base-url https://your-domain.com OR APP_BASE_URL env var
    Where users are redirected after the OAuth callback.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyEnvDefaults(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", config.DefaultAddr, "HTTP server address. Can also use ADDR env var.")
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "", "Public URL of the frontend, used for OAuth redirects. Can also use APP_BASE_URL env var.")
	cmd.Flags().StringVar(&cfg.AuthBaseURL, "auth-base-url", "", "Public URL of this server when it differs from the frontend. Defaults to --base-url. Can also use AUTH_BASE_URL env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&cfg.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().StringVar(&cfg.SessionSecret, "session-secret", "", "Secret the session cookie key is derived from (min 16 chars). Can also use SESSION_SECRET env var.")
	cmd.Flags().BoolVar(&cfg.Dev, "dev", false, "Development mode: session cookies are sent without the Secure attribute.")
	cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&cfg.MetricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// applyEnvDefaults fills settings that were not provided via flags from the
// environment.
func applyEnvDefaults(cfg *config.Config) {
	if cfg.Addr == config.DefaultAddr {
		if addr := os.Getenv("ADDR"); addr != "" {
			cfg.Addr = addr
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("APP_BASE_URL")
	}
	if cfg.AuthBaseURL == "" {
		cfg.AuthBaseURL = os.Getenv("AUTH_BASE_URL")
	}
	if cfg.GoogleClientID == "" {
		cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if cfg.GoogleClientSecret == "" {
		cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	}
	if cfg.MetricsEnabled && os.Getenv("METRICS_ENABLED") == "false" {
		cfg.MetricsEnabled = false
	}
	if cfg.MetricsAddr == config.DefaultMetricsAddr {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			cfg.MetricsAddr = addr
		}
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if cfg.HTTPClientTimeout == 0 {
		cfg.HTTPClientTimeout = config.DefaultHTTPTimeout
	}
}

func runServe(cfg *config.Config) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(cfg.Debug)
	slog.SetDefault(logger)

	crypto, err := session.NewCrypto(cfg.SessionSecret)
	if err != nil {
		return fmt.Errorf("invalid session secret: %w", err)
	}
	codec := session.NewCodec(crypto)

	oauthSvc, err := google.NewService(google.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURI(),
		HTTPClient:   &http.Client{Timeout: cfg.HTTPClientTimeout},
	})
	if err != nil {
		return fmt.Errorf("failed to create OAuth service: %w", err)
	}

	authMgr := auth.NewManager(oauthSvc, auth.WithLogger(logger))

	// Initialize instrumentation provider
	instrConfig := instrumentation.ConfigFromEnv("swipemail", version)
	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownTimeout); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	srv := server.New(cfg, codec, oauthSvc, authMgr, logger,
		server.WithMetrics(provider.Metrics()),
	)

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.Start(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.String("addr", cfg.Addr),
			slog.String("version", version),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-shutdownCtx.Done():
	}

	logger.Info("shutting down")
	srv.Health().SetShuttingDown()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer drainCancel()

	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error("server shutdown failed", logging.Err(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(drainCtx); err != nil {
			logger.Error("metrics server shutdown failed", logging.Err(err))
		}
	}
	return nil
}
