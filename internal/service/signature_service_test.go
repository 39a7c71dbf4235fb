package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()
	secret := "webhook-secret"
	payload := `{"operation":"update","module":"Accounts","data":[{"id":"acc-1"}]}`

	signature := svc.Sign(secret, payload)

	// Should be lowercase hex
	assert.Regexp(t, `^[0-9a-f]{64}$`, signature, "signature should be 64-char lowercase hex (SHA-256)")

	// Verify with correct key
	assert.True(t, svc.Verify(secret, payload, signature))
}

func TestHMACSignatureService_VerifyFails_WrongKey(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := "test payload"

	signature := svc.Sign("correct-key", payload)
	assert.False(t, svc.Verify("wrong-key", payload, signature))
}

func TestHMACSignatureService_VerifyFails_WrongPayload(t *testing.T) {
	svc := NewHMACSignatureService()
	secret := "my-key"

	signature := svc.Sign(secret, "original payload")
	assert.False(t, svc.Verify(secret, "tampered payload", signature))
}

func TestHMACSignatureService_VerifyFails_WrongSignature(t *testing.T) {
	svc := NewHMACSignatureService()
	assert.False(t, svc.Verify("key", "payload", "invalidsignature"))
}

func TestHMACSignatureService_DeterministicSign(t *testing.T) {
	svc := NewHMACSignatureService()

	sig1 := svc.Sign("key", "data")
	sig2 := svc.Sign("key", "data")

	assert.Equal(t, sig1, sig2, "same key+payload should produce same signature")
}

func TestHMACSignatureService_GenerateSecret(t *testing.T) {
	svc := NewHMACSignatureService()

	s1, err := svc.GenerateSecret()
	require.NoError(t, err)
	s2, err := svc.GenerateSecret()
	require.NoError(t, err)

	assert.Regexp(t, `^[0-9a-f]{64}$`, s1, "secret should be 256 bits hex-encoded")
	assert.NotEqual(t, s1, s2, "secrets must be random")
}
