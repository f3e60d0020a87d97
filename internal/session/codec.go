package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode classifies every session decode failure. Callers treat a token
// that fails to decode exactly like a missing session; the error never
// propagates past the handler boundary as anything but "no session".
var ErrDecode = errors.New("session decode failed")

// Codec serializes sessions to encrypted cookie values and back.
type Codec struct {
	crypto *Crypto
}

// NewCodec creates a codec backed by the given crypto.
func NewCodec(crypto *Crypto) *Codec {
	return &Codec{crypto: crypto}
}

// Encode serializes and encrypts a session into a cookie value.
func (c *Codec) Encode(s *Session) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to serialize session: %w", err)
	}
	token, err := c.crypto.Seal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt session: %w", err)
	}
	return token, nil
}

// Decode decrypts and parses a cookie value. All failure modes (bad
// encoding, failed authentication, malformed payload, unexpected structure)
// return an error wrapping ErrDecode.
func (c *Codec) Decode(token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrDecode)
	}
	payload, err := c.crypto.Open(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if s.Version == 0 {
		return nil, fmt.Errorf("%w: missing schema version", ErrDecode)
	}
	return &s, nil
}
