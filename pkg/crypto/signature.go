package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer produces and verifies HMAC-SHA256 signatures over raw request
// bodies using a pre-shared secret. This is the authentication mechanism
// of the bridge protocol: the orchestrator signs, the bridge verifies.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer for the given shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex-encoded HMAC-SHA256 of body.
func (s *Signer) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the HMAC of body. The
// comparison is constant-time.
func (s *Signer) Verify(body []byte, signature string) bool {
	expected := s.Sign(body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
