package types

import "fmt"

// LegalStatus is the legal lifecycle state of a clinical document
type LegalStatus string

const (
	StatusDraft         LegalStatus = "DRAFT"
	StatusPendingReview LegalStatus = "PENDING_REVIEW"
	StatusSigned        LegalStatus = "SIGNED"
	StatusAmended       LegalStatus = "AMENDED"
	StatusVoided        LegalStatus = "VOIDED"
)

// AllLegalStatuses returns every status in transition-graph order
func AllLegalStatuses() []LegalStatus {
	return []LegalStatus{StatusDraft, StatusPendingReview, StatusSigned, StatusAmended, StatusVoided}
}

// Valid reports whether s is one of the known statuses
func (s LegalStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusSigned, StatusAmended, StatusVoided:
		return true
	}
	return false
}

// ParseLegalStatus converts a stored value into a LegalStatus
func ParseLegalStatus(v string) (LegalStatus, error) {
	s := LegalStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown legal status: %q", v)
	}
	return s, nil
}

// Intent is what a collaborator wants to do with a document
type Intent string

const (
	IntentRead   Intent = "read"
	IntentUpdate Intent = "update"
	IntentDelete Intent = "delete"
	IntentAmend  Intent = "amend"
	IntentVoid   Intent = "void"
)

// ProtectedField is an encrypted narrative field of a document.
// Purpose is fixed by the schema the field belongs to.
type ProtectedField struct {
	Purpose  KeyPurpose     `json:"purpose" bson:"purpose"`
	Envelope SealedEnvelope `json:"envelope" bson:"envelope"`

	// Fallbacks hold the same content sealed under other retained keys
	Fallbacks []SealedEnvelope `json:"fallbacks,omitempty" bson:"fallbacks,omitempty"`
}

// Document is the handle a persistence collaborator supplies for one session record
type Document struct {
	ID           string                    `json:"id" bson:"_id"`
	Status       LegalStatus               `json:"status" bson:"status"`
	IsLocked     bool                      `json:"isLocked" bson:"isLocked"`
	HasLegalHold bool                      `json:"hasLegalHold" bson:"hasLegalHold"`
	AmendsID     string                    `json:"amendsId,omitempty" bson:"amendsId,omitempty"`
	Fields       map[string]ProtectedField `json:"fields,omitempty" bson:"fields,omitempty"`
}

// Field returns the protected field with the given name
func (d *Document) Field(name string) (ProtectedField, bool) {
	if d == nil || d.Fields == nil {
		return ProtectedField{}, false
	}
	f, ok := d.Fields[name]
	return f, ok
}
