package session

import (
	"net/http"
	"time"
)

// Cookie names used by the auth flow.
const (
	// CookieName carries the encrypted session record.
	CookieName = "swipemail_session"

	// StateCookieName carries the short-lived anti-forgery value compared
	// against the OAuth provider's returned state parameter.
	StateCookieName = "swipemail_oauth_state"
)

const (
	sessionTTL = 30 * 24 * time.Hour
	stateTTL   = 10 * time.Minute
)

func baseCookie(name, value string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	}
}

// Cookie builds the session cookie holding an encoded token. secure should
// be false only for local development over plain HTTP.
func Cookie(token string, secure bool) *http.Cookie {
	c := baseCookie(CookieName, token, secure)
	c.MaxAge = int(sessionTTL.Seconds())
	return c
}

// ClearCookie builds a cookie that immediately expires the session.
func ClearCookie(secure bool) *http.Cookie {
	c := baseCookie(CookieName, "", secure)
	c.MaxAge = -1
	return c
}

// StateCookie builds the anti-forgery state cookie.
func StateCookie(value string, secure bool) *http.Cookie {
	c := baseCookie(StateCookieName, value, secure)
	c.MaxAge = int(stateTTL.Seconds())
	return c
}

// ClearStateCookie builds a cookie that immediately expires the state value.
func ClearStateCookie(secure bool) *http.Cookie {
	c := baseCookie(StateCookieName, "", secure)
	c.MaxAge = -1
	return c
}
