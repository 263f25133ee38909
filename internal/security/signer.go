package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	signatureVersion = "v1"
	minKeyBytes      = 16
)

var ErrBadSignature = errors.New("invalid signature")

// Signer authenticates short values such as cookie payloads with
// HMAC-SHA256. Signed values look like v1.<payload>.<mac>, base64url encoded.
type Signer struct {
	key []byte
}

func NewSigner(key []byte) (*Signer, error) {
	if len(key) < minKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes", minKeyBytes)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k}, nil
}

// GenerateKey returns a random key encoded for storage in a .env file.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}

// DecodeKey accepts a GenerateKey value, or any other string used as raw bytes.
func DecodeKey(encoded string) []byte {
	encoded = strings.TrimSpace(encoded)
	if raw, err := base64.RawURLEncoding.DecodeString(encoded); err == nil && len(raw) >= minKeyBytes {
		return raw
	}
	return []byte(encoded)
}

func (s *Signer) Sign(payload []byte) string {
	body := base64.RawURLEncoding.EncodeToString(payload)
	return signatureVersion + "." + body + "." + s.mac(body)
}

func (s *Signer) Verify(signed string) ([]byte, error) {
	parts := strings.Split(signed, ".")
	if len(parts) != 3 || parts[0] != signatureVersion {
		return nil, ErrBadSignature
	}
	expected := s.mac(parts[1])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return nil, ErrBadSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrBadSignature
	}
	return payload, nil
}

func (s *Signer) mac(body string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(signatureVersion + "." + body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Derive returns a 32-byte subkey for purpose, so one configured secret can
// key several independent uses.
func (s *Signer) Derive(purpose string) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte("derive:" + purpose))
	return h.Sum(nil)
}
