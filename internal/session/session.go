// Package session implements the encrypted session record that represents an
// authenticated user plus their cached Google credentials. The record only
// ever lives inside an AES-256-GCM sealed cookie value; the server holds no
// per-user state between requests.
package session

// CurrentVersion is the schema tag written into newly created sessions.
const CurrentVersion = 1

// User is an immutable snapshot of the identity-provider profile taken at
// sign-in time.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// Session is the server-issued record held by the client as an encrypted
// cookie. AccessToken and AccessTokenExpiresAt are always replaced together;
// RefreshToken is set at creation and survives until logout unless the
// provider explicitly rotates it.
type Session struct {
	Version              int    `json:"version"`
	User                 User   `json:"user"`
	Scope                string `json:"scope"`
	AccessToken          string `json:"accessToken"`
	RefreshToken         string `json:"refreshToken"`
	AccessTokenExpiresAt int64  `json:"accessTokenExpiresAt"`
}
