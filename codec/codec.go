// Package codec seals and opens protected values with an AEAD bound to the
// purpose and id of the key used. It never looks at the legal status of the
// document a value belongs to.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

const (
	// TagSize is the authentication tag length of both supported AEADs
	TagSize = 16

	subkeyInfoPrefix = "clinical-records/v1/"
)

// Seal errors. Open failures are always *types.DecryptionError.
var (
	ErrKeyNotActive     = errors.New("key is not active")
	ErrInvalidKey       = errors.New("invalid key")
	ErrInvalidPlaintext = errors.New("invalid plaintext")
)

// Codec is stateless apart from its randomness source and safe for concurrent use
type Codec struct {
	random io.Reader
}

// Option configures a Codec
type Option func(*Codec)

// WithRandom replaces the nonce source, intended for tests
func WithRandom(r io.Reader) Option {
	return func(c *Codec) {
		c.random = r
	}
}

// New creates a Codec reading nonces from crypto/rand
func New(opts ...Option) *Codec {
	c := &Codec{random: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seal encrypts binary plaintext under an active key
func (c *Codec) Seal(plaintext []byte, key types.Key) (types.SealedEnvelope, error) {
	return c.SealAs(plaintext, types.ContentTypeBinary, key)
}

// SealText encrypts narrative text, which must be valid UTF-8
func (c *Codec) SealText(plaintext string, key types.Key) (types.SealedEnvelope, error) {
	if !utf8.ValidString(plaintext) {
		return types.SealedEnvelope{}, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidPlaintext)
	}
	return c.SealAs([]byte(plaintext), types.ContentTypeText, key)
}

// SealAs encrypts plaintext tagged with contentType. It does not check that
// the plaintext matches the content type.
func (c *Codec) SealAs(plaintext []byte, contentType types.ContentType, key types.Key) (types.SealedEnvelope, error) {
	if !key.CanEncrypt() {
		return types.SealedEnvelope{}, fmt.Errorf("%w: key %s is %s", ErrKeyNotActive, key.ID, key.Status)
	}
	if !contentType.Valid() {
		return types.SealedEnvelope{}, fmt.Errorf("unsupported content type %q", contentType)
	}

	aead, err := newAEAD(key.Algorithm, key)
	if err != nil {
		return types.SealedEnvelope{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return types.SealedEnvelope{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	env := types.SealedEnvelope{
		Version:     types.EnvelopeVersion,
		Algorithm:   key.Algorithm,
		ContentType: contentType,
		Purpose:     key.Purpose,
		KeyID:       key.ID,
		Nonce:       nonce,
	}

	ad, err := associatedData(env.Version, env.Algorithm, contentType, key)
	if err != nil {
		return types.SealedEnvelope{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, ad)
	split := len(sealed) - TagSize
	env.Ciphertext = sealed[:split:split]
	env.Tag = sealed[split:]
	return env, nil
}

// Open verifies and decrypts an envelope. The key's own purpose and id are
// authenticated, so an envelope never opens under a key of another purpose,
// and the envelope must name that same purpose and id.
func (c *Codec) Open(env types.SealedEnvelope, key types.Key) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := checkStructure(env); err != nil {
		return nil, err
	}
	if env.Purpose != key.Purpose || env.KeyID != key.ID {
		return nil, types.NewDecryptionError(types.ReasonAuthTagMismatch, key.ID,
			fmt.Sprintf("envelope names key %s/%s", env.Purpose, env.KeyID))
	}

	aead, err := newAEAD(env.Algorithm, key)
	if err != nil {
		return nil, types.NewDecryptionError(types.ReasonInvalidCiphertext, key.ID, err.Error())
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, types.NewDecryptionError(types.ReasonInvalidCiphertext, key.ID,
			fmt.Sprintf("nonce must be %d bytes, got %d", aead.NonceSize(), len(env.Nonce)))
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	ad, err := associatedData(env.Version, env.Algorithm, env.ContentType, key)
	if err != nil {
		return nil, types.NewDecryptionError(types.ReasonInvalidCiphertext, key.ID, err.Error())
	}
	plaintext, err := aead.Open(nil, env.Nonce, sealed, ad)
	if err != nil {
		return nil, types.NewDecryptionError(types.ReasonAuthTagMismatch, key.ID, "authentication failed")
	}

	if env.ContentType == types.ContentTypeText && !utf8.Valid(plaintext) {
		wipe(plaintext)
		return nil, types.NewDecryptionError(types.ReasonCorruptedData, key.ID, "decrypted text is not valid UTF-8")
	}
	return plaintext, nil
}

// OpenText opens an envelope holding narrative text
func (c *Codec) OpenText(env types.SealedEnvelope, key types.Key) (string, error) {
	plaintext, err := c.Open(env, key)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		wipe(plaintext)
		return "", types.NewDecryptionError(types.ReasonCorruptedData, key.ID, "decrypted value is not text")
	}
	return string(plaintext), nil
}

func checkKey(key types.Key) error {
	switch {
	case key.Status == types.KeyStatusRevoked:
		return types.NewDecryptionError(types.ReasonKeyRevoked, key.ID, "key has been revoked")
	case !key.CanDecrypt():
		return types.NewDecryptionError(types.ReasonKeyExpired, key.ID, fmt.Sprintf("key status %s forbids decryption", key.Status))
	case !key.HasMaterial():
		return types.NewDecryptionError(types.ReasonKeyNotFound, key.ID, "key material unavailable")
	}
	return nil
}

func checkStructure(env types.SealedEnvelope) error {
	switch {
	case env.Version != types.EnvelopeVersion:
		return types.NewDecryptionError(types.ReasonInvalidCiphertext, env.KeyID, fmt.Sprintf("unsupported envelope version %d", env.Version))
	case !env.Algorithm.Valid():
		return types.NewDecryptionError(types.ReasonInvalidCiphertext, env.KeyID, fmt.Sprintf("unsupported algorithm %q", env.Algorithm))
	case !env.ContentType.Valid():
		return types.NewDecryptionError(types.ReasonInvalidCiphertext, env.KeyID, fmt.Sprintf("unsupported content type %q", env.ContentType))
	case env.KeyID == "":
		return types.NewDecryptionError(types.ReasonInvalidCiphertext, env.KeyID, "missing key id")
	case len(env.Tag) != TagSize:
		return types.NewDecryptionError(types.ReasonInvalidCiphertext, env.KeyID, fmt.Sprintf("tag must be %d bytes, got %d", TagSize, len(env.Tag)))
	}
	return nil
}

func newAEAD(alg types.Algorithm, key types.Key) (cipher.AEAD, error) {
	if !key.HasMaterial() {
		return nil, fmt.Errorf("%w: key %s has no material", ErrInvalidKey, key.ID)
	}
	subkey, err := deriveSubkey(key)
	if err != nil {
		return nil, err
	}
	defer wipe(subkey)

	switch alg {
	case types.AlgorithmAES256GCM:
		block, err := aes.NewCipher(subkey)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher block: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
		}
		return gcm, nil
	case types.AlgorithmXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(subkey)
		if err != nil {
			return nil, fmt.Errorf("failed to create XChaCha20-Poly1305 cipher: %w", err)
		}
		return aead, nil
	}
	return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidKey, alg)
}

// deriveSubkey expands the key material into a purpose and key specific AEAD key
func deriveSubkey(key types.Key) ([]byte, error) {
	material := key.Material()
	defer wipe(material)

	info := []byte(subkeyInfoPrefix + string(key.Purpose) + "/" + key.ID)
	subkey := make([]byte, types.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, info), subkey); err != nil {
		return nil, fmt.Errorf("failed to derive subkey: %w", err)
	}
	return subkey, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
