// Package symmetric encrypts individual configuration values with AES-256-GCM
package symmetric

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/interfaces"
)

const (
	// encryptionPrefix and encryptionSuffix delimit encrypted values, ENC[...]
	encryptionPrefix = "ENC["
	encryptionSuffix = "]"

	keySize           = 32
	minUniqueKeyBytes = 16
)

// encryption implements the interfaces.SymmetricEncryptor interface
type encryption struct {
	aead cipher.AEAD
}

// NewEncryption creates an AES-256-GCM encryptor from the first 32 bytes of key
func NewEncryption(key []byte) (interfaces.SymmetricEncryptor, error) {
	if len(key) < keySize {
		return nil, fmt.Errorf("encryption key must be at least %d bytes", keySize)
	}
	key = append([]byte(nil), key[:keySize]...)

	if !hasEntropy(key) {
		return nil, fmt.Errorf("key has insufficient entropy")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher block: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &encryption{aead: aead}, nil
}

// hasEntropy rejects keys with fewer than 16 distinct byte values
func hasEntropy(key []byte) bool {
	seen := make(map[byte]struct{}, len(key))
	for _, b := range key {
		seen[b] = struct{}{}
	}
	return len(seen) >= minUniqueKeyBytes
}

// IsEncrypted reports whether s carries the ENC[...] marker
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, encryptionPrefix) && strings.HasSuffix(s, encryptionSuffix)
}

// Encrypt encrypts plaintext; values that are already encrypted pass through unchanged
func (e *encryption) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}
	if IsEncrypted(plaintext) {
		return plaintext, nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptionPrefix + base64.URLEncoding.EncodeToString(sealed) + encryptionSuffix, nil
}

// Decrypt decrypts an ENC[...] value; plain values pass through unchanged
func (e *encryption) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("ciphertext cannot be empty")
	}
	if !IsEncrypted(ciphertext) {
		return ciphertext, nil
	}

	encoded := strings.TrimSuffix(strings.TrimPrefix(ciphertext, encryptionPrefix), encryptionSuffix)
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(decoded) < nonceSize+e.aead.Overhead() {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.aead.Open(nil, decoded[:nonceSize], decoded[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
