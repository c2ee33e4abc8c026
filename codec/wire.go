package codec

import (
	"encoding/base64"

	"golang.org/x/crypto/cryptobyte"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// Marshal encodes an envelope into its compact binary form:
//
//	version(1) | alg | content type | purpose | key id | nonce | tag   (uint8 length prefixed)
//	ciphertext                                                        (uint32 length prefixed)
func Marshal(env types.SealedEnvelope) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint8(env.Version)
	for _, field := range [][]byte{
		[]byte(env.Algorithm),
		[]byte(env.ContentType),
		[]byte(env.Purpose),
		[]byte(env.KeyID),
		env.Nonce,
		env.Tag,
	} {
		field := field
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(field)
		})
	}
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(env.Ciphertext)
	})
	return b.Bytes()
}

// Unmarshal decodes the binary form. Malformed input yields a
// *types.DecryptionError with reason INVALID_CIPHERTEXT.
func Unmarshal(data []byte) (types.SealedEnvelope, error) {
	s := cryptobyte.String(data)

	var (
		version                 uint8
		alg, ct, purpose, keyID cryptobyte.String
		nonce, tag              cryptobyte.String
		ciphertextLen           uint32
		ciphertext              []byte
	)
	if !s.ReadUint8(&version) ||
		!s.ReadUint8LengthPrefixed(&alg) ||
		!s.ReadUint8LengthPrefixed(&ct) ||
		!s.ReadUint8LengthPrefixed(&purpose) ||
		!s.ReadUint8LengthPrefixed(&keyID) ||
		!s.ReadUint8LengthPrefixed(&nonce) ||
		!s.ReadUint8LengthPrefixed(&tag) ||
		!s.ReadUint32(&ciphertextLen) ||
		!s.ReadBytes(&ciphertext, int(ciphertextLen)) {
		return types.SealedEnvelope{}, types.NewDecryptionError(types.ReasonInvalidCiphertext, "", "truncated envelope")
	}
	if !s.Empty() {
		return types.SealedEnvelope{}, types.NewDecryptionError(types.ReasonInvalidCiphertext, string(keyID), "trailing bytes after envelope")
	}
	if version != types.EnvelopeVersion {
		return types.SealedEnvelope{}, types.NewDecryptionError(types.ReasonInvalidCiphertext, string(keyID), "unsupported envelope version")
	}

	return types.SealedEnvelope{
		Version:     version,
		Algorithm:   types.Algorithm(alg),
		ContentType: types.ContentType(ct),
		Purpose:     types.KeyPurpose(purpose),
		KeyID:       string(keyID),
		Nonce:       append([]byte(nil), nonce...),
		Ciphertext:  append([]byte(nil), ciphertext...),
		Tag:         append([]byte(nil), tag...),
	}, nil
}

// EncodeString returns the base64 form used when envelopes are stored as text
func EncodeString(env types.SealedEnvelope) (string, error) {
	raw, err := Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeString parses the base64 form produced by EncodeString
func DecodeString(s string) (types.SealedEnvelope, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return types.SealedEnvelope{}, types.NewDecryptionError(types.ReasonInvalidCiphertext, "", "envelope is not valid base64")
	}
	return Unmarshal(raw)
}
