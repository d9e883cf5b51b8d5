package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test_secret"

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"invoice.payment_succeeded"}`)

	sig := Sign(testSecret, body)
	assert.NotEmpty(t, sig)
	assert.True(t, Verify(testSecret, body, sig))
}

func TestVerify_WrongSecret(t *testing.T) {
	body := []byte(`{"id":"evt_123"}`)
	sig := Sign(testSecret, body)

	assert.False(t, Verify("whsec_other", body, sig))
}

func TestVerify_TamperedBody(t *testing.T) {
	body := []byte(`{"id":"evt_123","credits":100}`)
	sig := Sign(testSecret, body)

	tampered := []byte(`{"id":"evt_123","credits":10000}`)
	assert.False(t, Verify(testSecret, tampered, sig))
}

func TestVerify_MalformedSignature(t *testing.T) {
	body := []byte(`{}`)

	assert.False(t, Verify(testSecret, body, "not-hex!!"))
	assert.False(t, Verify(testSecret, body, ""))
}
