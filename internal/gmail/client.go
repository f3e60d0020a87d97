package gmail

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/swipemail/swipemail/internal/apperr"
)

// Client wraps the Gmail Users service for a single access token. It is
// built per request from the session's credential and discarded afterwards;
// it never caches responses.
type Client struct {
	svc    *gmail.UsersService
	logger *slog.Logger
}

type clientSettings struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*clientSettings)

// WithHTTPClient sets the base HTTP client used for provider calls. This is
// where transport-level timeouts belong; the client itself imposes none.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *clientSettings) { s.httpClient = hc }
}

// WithEndpoint overrides the Gmail API base URL. Test hook.
func WithEndpoint(url string) Option {
	return func(s *clientSettings) { s.endpoint = url }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *clientSettings) { s.logger = logger }
}

// NewClient creates a Gmail client that authorizes every call with the given
// access token.
func NewClient(ctx context.Context, accessToken string, opts ...Option) (*Client, error) {
	if accessToken == "" {
		return nil, apperr.AuthRequired("missing Gmail access token")
	}

	settings := clientSettings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, settings.httpClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	authed := oauth2.NewClient(ctx, ts)

	clientOpts := []option.ClientOption{option.WithHTTPClient(authed)}
	if settings.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(settings.endpoint))
	}

	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, apperr.Internal("failed to create Gmail service", err)
	}

	return &Client{svc: svc.Users, logger: settings.logger}, nil
}

// mapError translates Gmail API failures into the tagged error type. HTTP
// errors keep the provider's status and raw response body; anything else is
// an internal failure.
func mapError(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := strings.TrimSpace(apiErr.Body)
		if message == "" {
			message = apiErr.Message
		}
		if message == "" {
			message = "Gmail API error"
		}
		return apperr.ProviderAPI(apiErr.Code, message)
	}
	return apperr.Internal("Gmail API request failed", err)
}
