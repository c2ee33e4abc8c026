package types

// EnvelopeVersion is the current sealed envelope format version
const EnvelopeVersion uint8 = 1

// ContentType tells Open which structural check to apply after decryption
type ContentType string

const (
	ContentTypeText   ContentType = "text"
	ContentTypeBinary ContentType = "binary"
)

// Valid reports whether c is a known content type
func (c ContentType) Valid() bool {
	return c == ContentTypeText || c == ContentTypeBinary
}

// SealedEnvelope is the self-describing output of a seal operation.
// An envelope is never modified; updating a field produces a new one.
type SealedEnvelope struct {
	Version     uint8       `json:"v" bson:"v"`
	Algorithm   Algorithm   `json:"alg" bson:"alg"`
	ContentType ContentType `json:"ct" bson:"ct"`
	Purpose     KeyPurpose  `json:"purpose" bson:"purpose"`
	KeyID       string      `json:"kid" bson:"kid"`
	Nonce       []byte      `json:"nonce" bson:"nonce"`
	Ciphertext  []byte      `json:"ciphertext" bson:"ciphertext"`
	Tag         []byte      `json:"tag" bson:"tag"`
}

// IsZero reports whether the envelope is unset
func (e SealedEnvelope) IsZero() bool {
	return e.Version == 0 && e.KeyID == "" && len(e.Ciphertext) == 0 && len(e.Tag) == 0
}
