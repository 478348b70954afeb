// Package crypto provides webhook signature verification and outcome payload
// signing for the verdictd oracle.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// WebhookVerifier validates inbound webhook payloads signed with a shared
// secret. The hosting platform computes HMAC-SHA256 over the raw request body
// and sends the hex digest in the X-Oracle-Signature header, optionally
// prefixed with "sha256=".
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier creates a verifier for the given shared secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Sign computes the hex-encoded HMAC-SHA256 digest of body. Exposed so tests
// and the client side of the contract can produce valid signatures.
func (v *WebhookVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the HMAC-SHA256 digest of body.
// Comparison is constant-time.
func (v *WebhookVerifier) Verify(body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")

	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
