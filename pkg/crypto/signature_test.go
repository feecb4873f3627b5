package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignerVerify(t *testing.T) {
	signer := NewSigner("shared-secret")
	body := []byte(`{"tool":"PostgresInsert","params":{}}`)

	sig := signer.Sign(body)
	assert.Len(t, sig, 64) // hex-encoded SHA-256
	assert.True(t, signer.Verify(body, sig))
}

func TestSignerVerifyRejectsTamperedBody(t *testing.T) {
	signer := NewSigner("shared-secret")
	sig := signer.Sign([]byte(`{"tool":"DataValidator"}`))

	assert.False(t, signer.Verify([]byte(`{"tool":"PostgresInsert"}`), sig))
}

func TestSignerVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"tool":"DataValidator"}`)
	sig := NewSigner("secret-a").Sign(body)

	assert.False(t, NewSigner("secret-b").Verify(body, sig))
}

func TestSignerVerifyRejectsMalformedSignature(t *testing.T) {
	signer := NewSigner("shared-secret")
	body := []byte("payload")

	assert.False(t, signer.Verify(body, ""))
	assert.False(t, signer.Verify(body, "not-hex"))
}

func TestSignerDeterministic(t *testing.T) {
	signer := NewSigner("shared-secret")
	body := []byte("payload")

	assert.Equal(t, signer.Sign(body), signer.Sign(body))
}
