// Package signing implements the request authentication scheme used by the
// storefront bot endpoints: an HMAC-SHA256 over a canonical request string.
package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrEmptySecret indicates the signer was constructed without a secret.
// This is a fatal configuration error, never a runtime retry case.
var ErrEmptySecret = errors.New("signing: secret must not be empty")

// Signer produces signatures over the canonical request string
//
//	METHOD \n PATH \n timestamp \n nonce \n sha256hex(body)
//
// It is a pure function of its inputs; timestamp and nonce are supplied by
// the caller so fixed test vectors work.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer for the given shared secret
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical string
func (s *Signer) Sign(method, path, timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(CanonicalString(method, path, timestamp, nonce, body)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the canonical string in constant
// time. Used for inbound webhook verification on the WhatsApp channel.
func (s *Signer) Verify(method, path, timestamp, nonce string, body []byte, signature string) bool {
	expected := s.Sign(method, path, timestamp, nonce, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignRaw returns the lowercase hex HMAC-SHA256 of the raw body. WhatsApp
// webhook deliveries are signed this way (X-Hub-Signature-256, without the
// canonical string).
func (s *Signer) SignRaw(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyRaw reports whether signature matches the raw-body HMAC in constant
// time
func (s *Signer) VerifyRaw(body []byte, signature string) bool {
	expected := s.SignRaw(body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CanonicalString builds the exact byte sequence that gets signed
func CanonicalString(method, path, timestamp, nonce string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		method, path, timestamp, nonce, hex.EncodeToString(bodyHash[:]))
}

// Nonce generates a random lowercase hex nonce for one signed attempt
func Nonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
