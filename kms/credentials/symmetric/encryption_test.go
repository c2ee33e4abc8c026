package symmetric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}
	return key
}

func TestNewEncryption_KeyChecks(t *testing.T) {
	_, err := NewEncryption(make([]byte, 16))
	assert.ErrorContains(t, err, "at least 32 bytes")

	_, err = NewEncryption(make([]byte, 32))
	assert.ErrorContains(t, err, "insufficient entropy")

	enc, err := NewEncryption(append(testKey(), 0xff, 0xfe))
	require.NoError(t, err)
	assert.NotNil(t, enc)
}

func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewEncryption(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("vault-token")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(ciphertext))
	assert.NotContains(t, ciphertext, "vault-token")

	again, err := enc.Encrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, ciphertext, again, "encrypted values are not encrypted twice")

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "vault-token", plaintext)

	passthrough, err := enc.Decrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", passthrough)
}

func TestDecrypt_Errors(t *testing.T) {
	enc, err := NewEncryption(testKey())
	require.NoError(t, err)

	_, err = enc.Decrypt("")
	assert.Error(t, err)

	_, err = enc.Decrypt("ENC[***]")
	assert.ErrorContains(t, err, "decode base64")

	_, err = enc.Decrypt("ENC[AAAA]")
	assert.ErrorContains(t, err, "too short")

	ciphertext, err := enc.Encrypt("secret")
	require.NoError(t, err)

	other := testKey()
	other[0] ^= 0xff
	otherEnc, err := NewEncryption(other)
	require.NoError(t, err)
	_, err = otherEnc.Decrypt(ciphertext)
	assert.ErrorContains(t, err, "failed to decrypt")

	b := []byte(ciphertext)
	if b[10] == 'A' {
		b[10] = 'B'
	} else {
		b[10] = 'A'
	}
	_, err = enc.Decrypt(string(b))
	assert.Error(t, err)
}
