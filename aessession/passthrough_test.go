package aessession

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptPassthroughRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range iv {
		iv[i] = byte(i + 1)
	}

	plaintext := `{"error_code":0,"result":{"token":"abc"}}`
	cipherB64, err := encryptPassthrough(key, iv, plaintext)
	require.NoError(t, err)

	got, err := decryptPassthrough(key, iv, cipherB64)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptPassthroughFallsBackToPlainJSON(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)

	plain := `{"error_code":9999,"msg":"some firmwares skip encryption on error frames"}`
	got, err := decryptPassthrough(key, iv, plain)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestDecryptPassthroughRejectsGarbage(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	_, err := decryptPassthrough(key, iv, base64.StdEncoding.EncodeToString([]byte("not 16-aligned")))
	assert.Error(t, err)
}
