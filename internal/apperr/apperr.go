// Package apperr defines the tagged error type shared across the request
// path. Handlers discriminate on the Kind enum rather than on dynamic error
// types, and map each kind to an HTTP response exactly once.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a request-path failure.
type Kind int

const (
	// KindInternal is the catch-all for unexpected failures. It always maps
	// to a generic 500 so internal detail never reaches the client.
	KindInternal Kind = iota

	// KindAuthRequired means no valid session accompanied the request.
	KindAuthRequired

	// KindAuthExpired means the session exists but its credentials cannot be
	// refreshed; the user must go through the consent flow again.
	KindAuthExpired

	// KindProviderAPI carries a non-success status from the mail provider.
	KindProviderAPI
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindAuthExpired:
		return "auth_expired"
	case KindProviderAPI:
		return "provider_api"
	default:
		return "internal"
	}
}

// Error is the tagged error carried across the core. Status is only
// meaningful for KindProviderAPI, where it holds the provider's HTTP status.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the status code the HTTP layer should answer with.
// Provider statuses are forwarded only when they are plausible HTTP errors;
// anything else becomes a generic 500.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthRequired, KindAuthExpired:
		return http.StatusUnauthorized
	case KindProviderAPI:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AuthRequired builds a KindAuthRequired error.
func AuthRequired(message string) *Error {
	return &Error{Kind: KindAuthRequired, Message: message}
}

// AuthExpired builds a KindAuthExpired error wrapping the refresh failure.
func AuthExpired(message string, cause error) *Error {
	return &Error{Kind: KindAuthExpired, Message: message, cause: cause}
}

// ProviderAPI builds a KindProviderAPI error with the provider's status.
func ProviderAPI(status int, message string) *Error {
	return &Error{Kind: KindProviderAPI, Status: status, Message: message}
}

// Internal builds a KindInternal error wrapping the underlying failure.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, cause: cause}
}

// From extracts the tagged error from err, wrapping unclassified errors as
// KindInternal so callers always have a kind to switch on.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: KindInternal, Message: "internal error", cause: err}
}
