package types

import (
	"fmt"
	"time"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
)

// KeyPurpose scopes a key to one class of protected data.
// Keys of one purpose never decrypt data of another.
type KeyPurpose string

const (
	PurposeClinicalNotes KeyPurpose = "CLINICAL_NOTES"
	PurposeShadowNotes   KeyPurpose = "SHADOW_NOTES"
	PurposeUserPersonal  KeyPurpose = "USER_PERSONAL"
)

// AllKeyPurposes returns every known purpose
func AllKeyPurposes() []KeyPurpose {
	return []KeyPurpose{PurposeClinicalNotes, PurposeShadowNotes, PurposeUserPersonal}
}

// Valid reports whether p is a known purpose
func (p KeyPurpose) Valid() bool {
	switch p {
	case PurposeClinicalNotes, PurposeShadowNotes, PurposeUserPersonal:
		return true
	}
	return false
}

// ParseKeyPurpose converts a stored or user supplied value into a KeyPurpose
func ParseKeyPurpose(v string) (KeyPurpose, error) {
	p := KeyPurpose(v)
	if !p.Valid() {
		return "", fmt.Errorf("unknown key purpose: %q", v)
	}
	return p, nil
}

// KeyStatus is the lifecycle state of a key
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "ACTIVE"
	KeyStatusExpired KeyStatus = "EXPIRED"
	KeyStatusRevoked KeyStatus = "REVOKED"
)

// Algorithm identifies the AEAD construction used with a key
type Algorithm string

const (
	AlgorithmAES256GCM         Algorithm = "AES-256-GCM"
	AlgorithmXChaCha20Poly1305 Algorithm = "XCHACHA20-POLY1305"
)

// Valid reports whether a is a supported algorithm
func (a Algorithm) Valid() bool {
	return a == AlgorithmAES256GCM || a == AlgorithmXChaCha20Poly1305
}

// KeySize is the length of raw key material in bytes
const KeySize = 32

// Key is a symmetric key scoped to a purpose. Material never leaves the
// process in plaintext; the persisted form is KeyRecord.
type Key struct {
	ID        string
	Purpose   KeyPurpose
	Status    KeyStatus
	Algorithm Algorithm
	CreatedAt time.Time
	// ExpiresAt is when scheduled rotation is due, zero if never
	ExpiresAt time.Time
	// RetiredAt is when the key stopped being active
	RetiredAt time.Time
	RevokedAt time.Time

	material *SecureBytes
}

// NewKey builds an active key around a copy of material
func NewKey(id string, purpose KeyPurpose, alg Algorithm, material []byte, createdAt time.Time) Key {
	return Key{
		ID:        id,
		Purpose:   purpose,
		Status:    KeyStatusActive,
		Algorithm: alg,
		CreatedAt: createdAt,
		material:  NewSecureBytes(material),
	}
}

// Material returns a copy of the raw key bytes, nil once wiped
func (k Key) Material() []byte {
	if k.material == nil {
		return nil
	}
	return k.material.Get()
}

// HasMaterial reports whether the key still carries usable material
func (k Key) HasMaterial() bool {
	return k.material != nil && k.material.Len() == KeySize
}

// CanEncrypt reports whether the key may seal new data
func (k Key) CanEncrypt() bool {
	return k.Status == KeyStatusActive
}

// CanDecrypt reports whether the key may open existing envelopes
func (k Key) CanDecrypt() bool {
	return k.Status == KeyStatusActive || k.Status == KeyStatusExpired
}

// KeyRecord is the persisted form of a Key. The material is wrapped by
// the configured KMS and can only be recovered with the same wrap context.
type KeyRecord struct {
	ID          string             `json:"id" bson:"_id"`
	Purpose     KeyPurpose         `json:"purpose" bson:"purpose"`
	Status      KeyStatus          `json:"status" bson:"status"`
	Algorithm   Algorithm          `json:"algorithm" bson:"algorithm"`
	BlobInfo    *wrapping.BlobInfo `json:"blobInfo,omitempty" bson:"blobInfo,omitempty"`
	WrapContext []byte             `json:"-" bson:"wrapContext,omitempty"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	ExpiresAt   time.Time          `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
	RetiredAt   time.Time          `json:"retiredAt,omitempty" bson:"retiredAt,omitempty"`
	RevokedAt   time.Time          `json:"revokedAt,omitempty" bson:"revokedAt,omitempty"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// GetKMSKeyID returns the id of the KMS key that wrapped the material
func (r *KeyRecord) GetKMSKeyID() string {
	if r.BlobInfo == nil || r.BlobInfo.KeyInfo == nil {
		return ""
	}
	return r.BlobInfo.KeyInfo.KeyId
}

// Metadata returns a material-less Key view of the record
func (r *KeyRecord) Metadata() Key {
	return Key{
		ID:        r.ID,
		Purpose:   r.Purpose,
		Status:    r.Status,
		Algorithm: r.Algorithm,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		RetiredAt: r.RetiredAt,
		RevokedAt: r.RevokedAt,
	}
}

// WithoutMaterial returns a copy of k that carries no key bytes
func (k Key) WithoutMaterial() Key {
	k.material = nil
	return k
}
