package types

import (
	"time"
)

// AuditEvent represents a lifecycle or key-management audit event
type AuditEvent struct {
	ID         string                 `json:"id" bson:"_id"`
	Timestamp  time.Time              `json:"timestamp" bson:"timestamp"`
	Category   string                 `json:"category" bson:"category"`
	EventType  string                 `json:"event_type" bson:"event_type"`
	Operation  string                 `json:"operation" bson:"operation"`
	Status     string                 `json:"status" bson:"status"`
	KeyID      string                 `json:"key_id,omitempty" bson:"key_id,omitempty"`
	DocumentID string                 `json:"document_id,omitempty" bson:"document_id,omitempty"`
	Context    map[string]string      `json:"context" bson:"context"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// SecurityAlert is raised for integrity incidents such as a failed
// authentication tag. Alerts go to a separate sink from audit events.
type SecurityAlert struct {
	ID         string                  `json:"id" bson:"_id"`
	Timestamp  time.Time               `json:"timestamp" bson:"timestamp"`
	Reason     DecryptionFailureReason `json:"reason" bson:"reason"`
	KeyID      string                  `json:"key_id" bson:"key_id"`
	Purpose    KeyPurpose              `json:"purpose" bson:"purpose"`
	DocumentID string                  `json:"document_id" bson:"document_id"`
	FieldName  string                  `json:"field_name" bson:"field_name"`
	Actor      string                  `json:"actor,omitempty" bson:"actor,omitempty"`
	Message    string                  `json:"message" bson:"message"`
}
