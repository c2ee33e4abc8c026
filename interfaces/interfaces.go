// Package interfaces defines all service interfaces for the module.
// IMPORTANT: This is the single source of truth for service interfaces.
// Do not define interfaces in other files.
package interfaces

import (
	"context"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// Key Interfaces
// KeyRegistry owns the key lifecycle table for every purpose
type KeyRegistry interface {
	// GetActiveKey returns the key used for new seals under purpose
	GetActiveKey(purpose types.KeyPurpose) (types.Key, error)

	// ResolveKey returns the key an envelope was sealed under
	ResolveKey(purpose types.KeyPurpose, keyID string) (types.Key, error)

	// Rotate expires the active key of purpose and activates a new one
	Rotate(ctx context.Context, purpose types.KeyPurpose) (types.Key, error)

	// Revoke marks a key revoked; irreversible
	Revoke(ctx context.Context, keyID string) error

	// NoteSeal counts a seal under keyID and reports whether its budget is spent
	NoteSeal(keyID string) bool

	// RotateExhausted rotates the purpose of keyID if keyID is still its active key
	RotateExhausted(ctx context.Context, keyID string) error
}

// Codec seals and opens protected values
type Codec interface {
	Seal(plaintext []byte, key types.Key) (types.SealedEnvelope, error)
	SealText(plaintext string, key types.Key) (types.SealedEnvelope, error)
	Open(envelope types.SealedEnvelope, key types.Key) ([]byte, error)
	OpenText(envelope types.SealedEnvelope, key types.Key) (string, error)
}

// Store Interfaces
// KeyStore persists wrapped key records
type KeyStore interface {
	// SaveKey inserts or replaces a key record
	SaveKey(ctx context.Context, record *types.KeyRecord) error

	// SaveKeys persists several records together, used by rotation
	SaveKeys(ctx context.Context, records ...*types.KeyRecord) error

	// GetKey retrieves a key record by id, nil if absent
	GetKey(ctx context.Context, id string) (*types.KeyRecord, error)

	// ListKeys lists records of a purpose, all records when purpose is empty
	ListKeys(ctx context.Context, purpose types.KeyPurpose) ([]*types.KeyRecord, error)
}

// Collaborator Interfaces
// RecordRepository is the persistence collaborator for clinical documents
type RecordRepository interface {
	// CreateAmendment stores a new draft linked to the document it amends
	CreateAmendment(ctx context.Context, amendment *types.Document) error

	// SoftDelete marks a document deleted
	SoftDelete(ctx context.Context, documentID string) error
}

// AlertSink receives integrity incidents
type AlertSink interface {
	RaiseAlert(ctx context.Context, alert *types.SecurityAlert) error
}

// KMS Interfaces
// KMSProvider defines the interface for KMS providers
type KMSProvider interface {
	// GetWrapper returns the underlying KMS wrapper
	GetWrapper() wrapping.Wrapper

	// Test performs a test encryption/decryption
	Test(ctx context.Context) error

	// HealthCheck performs a comprehensive health check
	HealthCheck(ctx context.Context) error

	// GetLastHealthCheckError returns the last health check error
	GetLastHealthCheckError() error
}

// SymmetricEncryptor defines the interface for encrypting KMS credential values
type SymmetricEncryptor interface {
	// Encrypt encrypts a KMS credential value
	Encrypt(data string) (string, error)
	// Decrypt decrypts a KMS credential value
	Decrypt(data string) (string, error)
}

// CredentialsManager defines the interface for managing KMS provider credentials
type CredentialsManager interface {
	// EncryptCredentials encrypts all sensitive fields in KMS provider credentials
	EncryptCredentials(config *types.EncryptionConfig) error
	// DecryptCredentials decrypts all sensitive fields in KMS provider credentials
	DecryptCredentials(config *types.EncryptionConfig) error
}

// Audit Interfaces
// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	// Printf provides basic logging functionality
	Printf(format string, v ...interface{})

	// LogEvent logs an audit event
	LogEvent(ctx context.Context, event *types.AuditEvent) error

	// GetEvents retrieves audit events based on filters
	GetEvents(ctx context.Context, filters map[string]interface{}) ([]*types.AuditEvent, error)
}
