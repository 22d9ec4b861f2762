// Package signature verifies webhook payload signatures.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HeaderName carries the GitHub HMAC signature.
const HeaderName = "X-Hub-Signature-256"

const prefix = "sha256="

// Sign returns the header value for body under secret.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header is the sha256 HMAC of the raw body under
// secret. The digest must be lowercase hex, exactly as Sign renders it, so
// any byte change in the header fails. It returns false for a missing or
// malformed header or an empty secret and never panics.
func Verify(body []byte, header string, secret []byte) bool {
	if len(secret) == 0 || !strings.HasPrefix(header, prefix) {
		return false
	}
	return hmac.Equal([]byte(header), []byte(Sign(body, secret)))
}

// VerifyToken compares a shared-token header in constant time.
func VerifyToken(header string, token []byte) bool {
	if len(token) == 0 || header == "" {
		return false
	}
	return hmac.Equal([]byte(header), token)
}
