package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	nonceSize = 12
	tagSize   = 16

	// MinSecretLength is the minimum accepted length for the server secret.
	MinSecretLength = 16
)

// Crypto seals and opens session payloads with AES-256-GCM. The key is
// derived from the server secret with a one-way hash, so the raw secret
// never participates in encryption directly. Build it once at startup and
// pass it by reference; it is safe for concurrent use.
type Crypto struct {
	key [sha256.Size]byte
}

// NewCrypto derives an encryption key from the server secret.
func NewCrypto(secret string) (*Crypto, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d characters long", MinSecretLength)
	}
	return &Crypto{key: sha256.Sum256([]byte(secret))}, nil
}

func (c *Crypto) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext and returns the cookie-ready token:
// nonce(12) || tag(16) || ciphertext, base64url-encoded without padding.
// GCM appends the tag to the ciphertext, so the tag is moved ahead of the
// ciphertext to match the wire format.
func (c *Crypto) Seal(plaintext []byte) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts a token produced by Seal, verifying the authentication tag.
// Any tampering with the token fails here.
func (c *Crypto) Open(token string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid base64url token: %w", err)
	}
	if len(raw) < nonceSize+tagSize {
		return nil, fmt.Errorf("token too short: %d bytes", len(raw))
	}

	gcm, err := c.aead()
	if err != nil {
		return nil, err
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ciphertext := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
