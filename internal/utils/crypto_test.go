package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHMAC(t *testing.T) {
	paidAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	sig := EventHMAC(1, 2, 52000, paidAt, "secret")

	assert.True(t, VerifyEventHMAC(sig, 1, 2, 52000, paidAt, "secret"))
	assert.False(t, VerifyEventHMAC(sig, 1, 2, 52001, paidAt, "secret"), "amount tampered")
	assert.False(t, VerifyEventHMAC(sig, 1, 3, 52000, paidAt, "secret"), "schedule tampered")
	assert.False(t, VerifyEventHMAC(sig, 1, 2, 52000, paidAt, "other"), "wrong secret")
	assert.False(t, VerifyEventHMAC(sig, 1, 2, 52000, paidAt.Add(time.Second), "secret"), "time tampered")
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef") // 32 bytes

	for _, plain := range []string{"x", "TRX-2026-000123", "a bank reference longer than one aes block size"} {
		enc, err := Encrypt(plain, key)
		require.NoError(t, err)
		assert.NotEqual(t, plain, enc)

		dec, err := Decrypt(enc, key)
		require.NoError(t, err)
		assert.Equal(t, plain, dec)
	}
}

func TestEncryptRejectsBadKey(t *testing.T) {
	_, err := Encrypt("data", []byte("short"))
	assert.Error(t, err)

	_, err = Encrypt("", []byte("0123456789abcdef"))
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	key := []byte("0123456789abcdef")

	_, err := Decrypt("not-hex", key)
	assert.Error(t, err)

	_, err = Decrypt("abcd", key)
	assert.Error(t, err, "shorter than one block")
}

func TestEncryptUniqueIVs(t *testing.T) {
	key := []byte("0123456789abcdef")
	a, err := Encrypt("same input", key)
	require.NoError(t, err)
	b, err := Encrypt("same input", key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
