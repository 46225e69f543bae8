// Package webhook authenticates GitHub webhook deliveries.
package webhook

import (
	"strings"

	"github.com/google/go-github/v55/github"
)

// SignatureHeader carries the HMAC-SHA256 signature of the raw body.
const (
	SignatureHeader = "X-Hub-Signature-256"
	EventHeader     = "X-GitHub-Event"
	DeliveryHeader  = "X-GitHub-Delivery"
)

const signaturePrefix = "sha256="

// Verifier checks webhook signatures against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify reports whether signature is exactly "sha256=" followed by the
// lower-case hex HMAC-SHA256 of body under the shared secret. The digest
// comparison is constant time.
func (v *Verifier) Verify(body []byte, signature string) bool {
	if v == nil || len(v.secret) == 0 {
		return false
	}
	if !strings.HasPrefix(signature, signaturePrefix) || len(signature) == len(signaturePrefix) {
		return false
	}
	// ValidateSignature decodes the hex, so upper-case hex letters would otherwise pass.
	if signature != strings.ToLower(signature) {
		return false
	}
	return github.ValidateSignature(signature, body, v.secret) == nil
}
