// Package google wraps the Google OAuth endpoints used by the auth flow:
// consent URL construction, authorization-code exchange, access-token
// refresh, and the userinfo profile fetch.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauth2google "golang.org/x/oauth2/google"
)

const userinfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// DefaultScopes are the Google OAuth scopes the triage flow needs: message
// reads, label mutations, and the basic identity claims for the session.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.modify",
	"openid",
	"email",
	"profile",
}

// Config carries the OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes defaults to DefaultScopes when empty.
	Scopes []string

	// HTTPClient overrides the client used for token and userinfo calls.
	// Tests point this (plus Endpoint below) at an httptest server.
	HTTPClient *http.Client

	// Endpoint overrides the Google OAuth endpoint. Leave zero for the
	// real provider.
	Endpoint oauth2.Endpoint
}

// TokenPair is the ephemeral result of a code exchange or refresh call. It
// is never persisted on its own; the auth manager folds it into a session.
type TokenPair struct {
	AccessToken string

	// RefreshToken is set only when the provider issued (or rotated) one.
	RefreshToken string

	// ExpiresIn is the access token lifetime in seconds; zero when the
	// provider omitted it.
	ExpiresIn int64

	// Scope is the granted scope string; empty when the provider omitted it.
	Scope string
}

// UserInfo is the profile returned by Google's userinfo endpoint.
type UserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	Picture       string `json:"picture"`
}

// Service performs OAuth operations against Google.
type Service struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	userinfo   string
}

// NewService validates the configuration and builds the OAuth service.
func NewService(cfg Config) (*Service, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("google client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("google client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("oauth redirect URL is required")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = oauth2google.Endpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		httpClient: httpClient,
		userinfo:   userinfoEndpoint,
	}, nil
}

// AuthCodeURL builds the consent-screen URL with offline access, so a
// refresh token is issued, and a forced consent prompt, so re-login after a
// revoked grant still returns one.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange trades an authorization code for a token pair.
func (s *Service) Exchange(ctx context.Context, code string) (*TokenPair, error) {
	tok, err := s.oauth.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return tokenPair(tok, ""), nil
}

// Refresh mints a new access token from a refresh token. The returned pair
// has RefreshToken set only when the provider rotated it.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}
	ts := s.oauth.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return tokenPair(tok, refreshToken), nil
}

// UserInfo fetches the authenticated user's profile.
func (s *Service) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userinfo, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Google profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("failed to fetch Google profile: status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse Google profile: %w", err)
	}
	return &info, nil
}

// SetUserinfoEndpoint overrides the userinfo URL. Test hook.
func (s *Service) SetUserinfoEndpoint(url string) {
	s.userinfo = url
}

func (s *Service) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func tokenPair(tok *oauth2.Token, previousRefreshToken string) *TokenPair {
	pair := &TokenPair{AccessToken: tok.AccessToken}
	if tok.RefreshToken != "" && tok.RefreshToken != previousRefreshToken {
		pair.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		if remaining := time.Until(tok.Expiry); remaining > 0 {
			pair.ExpiresIn = int64(remaining.Round(time.Second).Seconds())
		}
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		pair.Scope = scope
	}
	return pair
}
