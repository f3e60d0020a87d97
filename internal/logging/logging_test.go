package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeEmail(t *testing.T) {
	hashed := AnonymizeEmail("user@example.com")

	assert.True(t, strings.HasPrefix(hashed, "user:"))
	assert.NotContains(t, hashed, "example.com")
	assert.Len(t, hashed, len("user:")+16)

	// Deterministic for correlation, distinct across users.
	assert.Equal(t, hashed, AnonymizeEmail("user@example.com"))
	assert.NotEqual(t, hashed, AnonymizeEmail("other@example.com"))
}

func TestAnonymizeEmailEmpty(t *testing.T) {
	assert.Empty(t, AnonymizeEmail(""))
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))

	masked := SanitizeToken("ya29.super-secret-token")
	assert.Equal(t, "[token:23 chars]", masked)
	assert.NotContains(t, masked, "secret")
}

func TestErrNilYieldsEmptyGroup(t *testing.T) {
	attr := Err(nil)
	assert.Empty(t, attr.Key)
}
