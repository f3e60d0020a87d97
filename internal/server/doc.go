// Package server implements the swipemail HTTP API.
//
// The server is a thin authenticated proxy in front of the Gmail API. Every
// /api/gmail route runs through the session middleware, which decrypts the
// session cookie, refreshes the Google access token when it is within a
// minute of expiry, and rewrites the cookie when the token changed. Handlers
// hold no per-user state between requests.
//
// Routes:
//
//	GET  /api/auth/login                - start the Google OAuth flow
//	GET  /api/auth/callback             - OAuth redirect target
//	GET  /api/auth/session              - current user, 401 when signed out
//	POST /api/auth/logout               - clear the session cookie
//	GET  /api/gmail/messages            - list normalized messages
//	GET  /api/gmail/labels              - list curated labels
//	POST /api/gmail/messages/mark-read  - remove the UNREAD label
//	POST /api/gmail/messages/archive    - remove the INBOX label
//	POST /api/gmail/messages/star       - add the STARRED label
//
// Health endpoints (/healthz, /readyz) are served unauthenticated for
// Kubernetes probes. Prometheus metrics live on a dedicated port, see
// MetricsServer.
package server
