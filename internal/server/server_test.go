package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/swipemail/swipemail/internal/auth"
	"github.com/swipemail/swipemail/internal/config"
	"github.com/swipemail/swipemail/internal/gmail"
	"github.com/swipemail/swipemail/internal/google"
	"github.com/swipemail/swipemail/internal/session"
)

const testBaseURL = "https://app.example.com"

// testBackend bundles the fake Google endpoints a server test needs.
type testBackend struct {
	server *Server
	codec  *session.Codec

	tokenResponse map[string]any
	tokenStatus   int
	refreshCalls  int
	userinfo      *google.UserInfo

	gmailMux *http.ServeMux
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()

	b := &testBackend{
		tokenResponse: map[string]any{
			"access_token": "refreshed-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		},
		gmailMux: http.NewServeMux(),
	}

	oauthTS := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/userinfo") {
			info := b.userinfo
			if info == nil {
				info = &google.UserInfo{
					Sub:   "user-1",
					Email: "user@example.com",
					Name:  "Test User",
				}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(info)
			return
		}
		b.refreshCalls++
		if b.tokenStatus != 0 {
			http.Error(w, `{"error":"invalid_grant"}`, b.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(b.tokenResponse)
	}))
	t.Cleanup(oauthTS.Close)

	gmailTS := httptest.NewServer(b.gmailMux)
	t.Cleanup(gmailTS.Close)

	crypto, err := session.NewCrypto("test-secret-at-least-16-chars")
	require.NoError(t, err)
	b.codec = session.NewCodec(crypto)

	oauthSvc, err := google.NewService(google.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  testBaseURL + "/api/auth/callback",
		HTTPClient:   oauthTS.Client(),
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: oauthTS.URL + "/token",
		},
	})
	require.NoError(t, err)
	oauthSvc.SetUserinfoEndpoint(oauthTS.URL + "/userinfo")

	logger := slog.New(slog.DiscardHandler)
	authMgr := auth.NewManager(oauthSvc, auth.WithLogger(logger))

	cfg := &config.Config{
		Addr:    ":8080",
		BaseURL: testBaseURL,
		Dev:     true,
	}

	b.server = New(cfg, b.codec, oauthSvc, authMgr, logger,
		WithGmailOptions(
			gmail.WithEndpoint(gmailTS.URL+"/"),
			gmail.WithHTTPClient(gmailTS.Client()),
		),
	)
	return b
}

func (b *testBackend) sessionCookie(t *testing.T, s *session.Session) *http.Cookie {
	t.Helper()
	token, err := b.codec.Encode(s)
	require.NoError(t, err)
	return session.Cookie(token, false)
}

func validSession() *session.Session {
	return &session.Session{
		Version:              session.CurrentVersion,
		User:                 session.User{ID: "user-1", Email: "user@example.com", Name: "Test User"},
		Scope:                "openid email",
		AccessToken:          "valid-access",
		RefreshToken:         "refresh-1",
		AccessTokenExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
	}
}

func expiredSession() *session.Session {
	s := validSession()
	s.AccessTokenExpiresAt = time.Now().Add(-time.Hour).UnixMilli()
	return s
}

func (b *testBackend) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	b.server.Routes().ServeHTTP(rec, req)
	return rec
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionEndpoint(t *testing.T) {
	b := newTestBackend(t)

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(b.sessionCookie(t, validSession()))

		rec := b.do(req)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			User  session.User `json:"user"`
			Scope string       `json:"scope"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "user@example.com", body.User.Email)
		assert.Equal(t, "openid email", body.Scope)
		// Tokens never appear in the session response.
		assert.NotContains(t, rec.Body.String(), "valid-access")
		assert.NotContains(t, rec.Body.String(), "refresh-1")
	})

	t.Run("no cookie", func(t *testing.T) {
		rec := b.do(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "garbage"})
		rec := b.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	b := newTestBackend(t)

	rec := b.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	cleared := findCookie(t, rec, session.CookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestLogin(t *testing.T) {
	b := newTestBackend(t)

	rec := b.do(httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	location := rec.Header().Get("Location")
	assert.Contains(t, location, "accounts.google.com")
	assert.Contains(t, location, "access_type=offline")
	assert.Contains(t, location, "prompt=consent")

	stateCookie := findCookie(t, rec, session.StateCookieName)
	require.NotNil(t, stateCookie)
	assert.NotEmpty(t, stateCookie.Value)
	assert.Contains(t, location, "state="+stateCookie.Value)
}

func TestCallbackErrors(t *testing.T) {
	b := newTestBackend(t)

	tests := []struct {
		name        string
		target      string
		stateCookie string
		reason      string
	}{
		{
			name:   "provider error",
			target: "/api/auth/callback?error=access_denied",
			reason: "oauth_error",
		},
		{
			name:   "missing code",
			target: "/api/auth/callback?state=abc",
			reason: "missing_code",
		},
		{
			name:        "state mismatch",
			target:      "/api/auth/callback?code=auth-code&state=forged",
			stateCookie: "expected",
			reason:      "state_mismatch",
		},
		{
			name:   "missing state cookie",
			target: "/api/auth/callback?code=auth-code&state=abc",
			reason: "state_mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.stateCookie != "" {
				req.AddCookie(&http.Cookie{Name: session.StateCookieName, Value: tt.stateCookie})
			}

			rec := b.do(req)
			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, testBaseURL+"/?authError="+tt.reason, rec.Header().Get("Location"))

			// The state cookie is consumed on failure redirects too.
			state := findCookie(t, rec, session.StateCookieName)
			require.NotNil(t, state)
			assert.Equal(t, -1, state.MaxAge)
		})
	}
}

func TestCallbackUserNameFallback(t *testing.T) {
	tests := []struct {
		name     string
		userinfo google.UserInfo
		expected string
	}{
		{
			name:     "given name when full name missing",
			userinfo: google.UserInfo{Sub: "user-1", Email: "user@example.com", GivenName: "Test"},
			expected: "Test",
		},
		{
			name:     "email when no name at all",
			userinfo: google.UserInfo{Sub: "user-1", Email: "user@example.com"},
			expected: "user@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t)
			b.tokenResponse = map[string]any{
				"access_token":  "fresh-access",
				"refresh_token": "fresh-refresh",
				"token_type":    "Bearer",
				"expires_in":    3600,
			}
			b.userinfo = &tt.userinfo

			req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=auth-code&state=state-1", nil)
			req.AddCookie(&http.Cookie{Name: session.StateCookieName, Value: "state-1"})

			rec := b.do(req)
			require.Equal(t, http.StatusFound, rec.Code)

			cookie := findCookie(t, rec, session.CookieName)
			require.NotNil(t, cookie)
			sess, err := b.codec.Decode(cookie.Value)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sess.User.Name)
		})
	}
}

func TestCallbackSuccess(t *testing.T) {
	b := newTestBackend(t)
	b.tokenResponse = map[string]any{
		"access_token":  "fresh-access",
		"refresh_token": "fresh-refresh",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"scope":         "openid email profile",
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=auth-code&state=state-1", nil)
	req.AddCookie(&http.Cookie{Name: session.StateCookieName, Value: "state-1"})

	rec := b.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testBaseURL, rec.Header().Get("Location"))

	// State cookie is consumed.
	state := findCookie(t, rec, session.StateCookieName)
	require.NotNil(t, state)
	assert.Equal(t, -1, state.MaxAge)

	cookie := findCookie(t, rec, session.CookieName)
	require.NotNil(t, cookie)
	sess, err := b.codec.Decode(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.User.ID)
	assert.Equal(t, "user@example.com", sess.User.Email)
	assert.Equal(t, "fresh-access", sess.AccessToken)
	assert.Equal(t, "fresh-refresh", sess.RefreshToken)
	assert.Equal(t, "openid email profile", sess.Scope)
	assert.Greater(t, sess.AccessTokenExpiresAt, time.Now().UnixMilli())
}

func TestCallbackWithoutRefreshTokenFails(t *testing.T) {
	b := newTestBackend(t)
	b.tokenResponse = map[string]any{
		"access_token": "fresh-access",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=auth-code&state=state-1", nil)
	req.AddCookie(&http.Cookie{Name: session.StateCookieName, Value: "state-1"})

	rec := b.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testBaseURL+"/?authError=callback_failed", rec.Header().Get("Location"))
	assert.Nil(t, findCookie(t, rec, session.CookieName))
}

func registerMessages(b *testBackend, msgs ...*gmailapi.Message) {
	list := &gmailapi.ListMessagesResponse{}
	for _, m := range msgs {
		list.Messages = append(list.Messages, &gmailapi.Message{Id: m.Id})
	}
	byID := make(map[string]*gmailapi.Message, len(msgs))
	for _, m := range msgs {
		byID[m.Id] = m
	}

	b.gmailMux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	})
	b.gmailMux.HandleFunc("/gmail/v1/users/me/messages/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
		if strings.HasSuffix(id, "/modify") {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(&gmailapi.Message{Id: strings.TrimSuffix(id, "/modify")})
			return
		}
		msg, ok := byID[id]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(msg)
	})
}

func testMessage(id string, internalDate int64, body string) *gmailapi.Message {
	return &gmailapi.Message{
		Id:           id,
		ThreadId:     "thread-" + id,
		Snippet:      "snippet " + id,
		InternalDate: internalDate,
		Payload: &gmailapi.MessagePart{
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "Subject", Value: "Subject " + id},
				{Name: "From", Value: "sender@example.com"},
			},
			Body: &gmailapi.MessagePartBody{
				Data: base64.RawURLEncoding.EncodeToString([]byte(body)),
			},
		},
	}
}

func TestListMessagesEndpoint(t *testing.T) {
	b := newTestBackend(t)
	registerMessages(b,
		testMessage("m1", 2000, "<p>Hello <script>x()</script>world</p>"),
		testMessage("m2", 1000, "plain body"),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/gmail/messages", nil)
	req.AddCookie(b.sessionCookie(t, validSession()))

	rec := b.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result gmail.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Emails, 2)
	assert.Equal(t, "m1", result.Emails[0].ID)

	// Display bodies are attached and sanitized.
	require.NotNil(t, result.Emails[0].DisplayBody)
	assert.NotContains(t, result.Emails[0].DisplayBody.HTML, "script")
	assert.Contains(t, result.Emails[0].DisplayBody.HTML, "Hello")
	require.NotNil(t, result.Emails[1].DisplayBody)
	assert.Equal(t, "<p>plain body</p>", result.Emails[1].DisplayBody.HTML)

	// No refresh for a fresh session, no cookie rewrite.
	assert.Zero(t, b.refreshCalls)
	assert.Nil(t, findCookie(t, rec, session.CookieName))
}

func TestListMessagesRefreshesExpiredToken(t *testing.T) {
	b := newTestBackend(t)
	registerMessages(b, testMessage("m1", 1000, "body"))

	req := httptest.NewRequest(http.MethodGet, "/api/gmail/messages", nil)
	req.AddCookie(b.sessionCookie(t, expiredSession()))

	rec := b.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, b.refreshCalls)

	// The refreshed session is re-issued as a cookie.
	cookie := findCookie(t, rec, session.CookieName)
	require.NotNil(t, cookie)
	sess, err := b.codec.Decode(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", sess.AccessToken)
	assert.Equal(t, "refresh-1", sess.RefreshToken)
	assert.Greater(t, sess.AccessTokenExpiresAt, time.Now().UnixMilli())
}

func TestListMessagesRefreshFailure(t *testing.T) {
	b := newTestBackend(t)
	b.tokenStatus = http.StatusBadRequest

	req := httptest.NewRequest(http.MethodGet, "/api/gmail/messages", nil)
	req.AddCookie(b.sessionCookie(t, expiredSession()))

	rec := b.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The cookie survives a failed refresh so the user can retry after a
	// transient token-endpoint outage.
	assert.Nil(t, findCookie(t, rec, session.CookieName))
}

func TestActionEndpoints(t *testing.T) {
	b := newTestBackend(t)
	registerMessages(b)

	paths := []string{
		"/api/gmail/messages/mark-read",
		"/api/gmail/messages/archive",
		"/api/gmail/messages/star",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path+"?messageId=m1", nil)
			req.AddCookie(b.sessionCookie(t, validSession()))

			rec := b.do(req)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"success":true}`, rec.Body.String())
		})
	}
}

func TestActionRequiresMessageID(t *testing.T) {
	b := newTestBackend(t)

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{name: "no param", target: "/api/gmail/messages/mark-read"},
		{name: "blank param", target: "/api/gmail/messages/mark-read?messageId="},
		{name: "body is not a substitute", target: "/api/gmail/messages/mark-read", body: `{"messageId":"m1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(http.MethodPost, tt.target, body)
			req.AddCookie(b.sessionCookie(t, validSession()))

			rec := b.do(req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "messageId is required")
		})
	}
}

func TestGmailRoutesRequireAuth(t *testing.T) {
	b := newTestBackend(t)

	targets := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/gmail/messages"},
		{http.MethodGet, "/api/gmail/labels"},
		{http.MethodPost, "/api/gmail/messages/mark-read"},
		{http.MethodPost, "/api/gmail/messages/archive"},
		{http.MethodPost, "/api/gmail/messages/star"},
	}

	for _, target := range targets {
		t.Run(target.path, func(t *testing.T) {
			rec := b.do(httptest.NewRequest(target.method, target.path, nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestListLabelsEndpoint(t *testing.T) {
	b := newTestBackend(t)
	b.gmailMux.HandleFunc("/gmail/v1/users/me/labels", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&gmailapi.ListLabelsResponse{
			Labels: []*gmailapi.Label{
				{Id: "IMPORTANT", Name: "IMPORTANT", Type: "system"},
				{Id: "Label_1", Name: "Receipts", Type: "user"},
				{Id: "SPAM", Name: "SPAM", Type: "system"},
			},
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/gmail/labels", nil)
	req.AddCookie(b.sessionCookie(t, validSession()))

	rec := b.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The response is the bare label array, not an envelope.
	var labels []gmail.Label
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &labels))
	require.Len(t, labels, 2)
	assert.Equal(t, "IMPORTANT", labels[0].ID)
	assert.Equal(t, "Label_1", labels[1].ID)
}

func TestNotFound(t *testing.T) {
	b := newTestBackend(t)

	rec := b.do(httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())
}

func TestHealthEndpoints(t *testing.T) {
	b := newTestBackend(t)

	rec := b.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = b.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	b.server.Health().SetShuttingDown()
	rec = b.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
