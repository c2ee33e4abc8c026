package types

import (
	"time"
)

// ProviderType represents the type of KMS provider
type ProviderType string

const (
	ProviderAWS   ProviderType = "aws"
	ProviderAzure ProviderType = "azure"
	ProviderGCP   ProviderType = "gcp"
	ProviderVault ProviderType = "vault"
	// ProviderAead wraps key material with a local AES key; development and tests only
	ProviderAead ProviderType = "aead"
)

// KMSCredentials represents KMS provider credentials
type KMSCredentials struct {
	// AWS credentials
	AccessKeyID     string `json:"accessKeyId,omitempty" bson:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty" bson:"secretAccessKey,omitempty"`
	SessionToken    string `json:"sessionToken,omitempty" bson:"sessionToken,omitempty"`

	// Azure credentials
	TenantID     string `json:"tenantId,omitempty" bson:"tenantId,omitempty"`
	ClientID     string `json:"clientId,omitempty" bson:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty" bson:"clientSecret,omitempty"`

	// GCP credentials
	CredentialsJSON string `json:"credentialsJson,omitempty" bson:"credentialsJson,omitempty"`

	// Vault credentials
	Token string `json:"token,omitempty" bson:"token,omitempty"`
}

// KeyringConfig holds key lifecycle settings
type KeyringConfig struct {
	// Algorithm used for newly created keys
	Algorithm Algorithm `json:"algorithm" bson:"algorithm" validate:"omitempty,oneof=AES-256-GCM XCHACHA20-POLY1305"`

	// RotateAfter schedules rotation of an active key, zero disables it
	RotateAfter time.Duration `json:"rotateAfter" bson:"rotateAfter" validate:"gte=0"`

	// Retention is how long an expired key may still open data, zero keeps it forever
	Retention time.Duration `json:"retention" bson:"retention" validate:"gte=0"`

	// MaxSealsPerKey forces rotation once an AES-GCM key sealed this many values
	MaxSealsPerKey int64 `json:"maxSealsPerKey" bson:"maxSealsPerKey" validate:"gte=0"`

	// AutoReplaceRevoked creates a new active key when the active one is revoked
	AutoReplaceRevoked bool `json:"autoReplaceRevoked" bson:"autoReplaceRevoked"`

	// CreateMissing creates a first key for purposes without one on startup
	CreateMissing bool `json:"createMissing" bson:"createMissing"`
}

// EncryptionConfig represents the encryption service configuration
type EncryptionConfig struct {
	Provider      ProviderType    `json:"provider" bson:"provider" validate:"required,oneof=aws azure gcp vault aead"`
	KeyID         string          `json:"keyId" bson:"keyId" validate:"required_unless=Provider aead"`
	Region        string          `json:"region,omitempty" bson:"region,omitempty" validate:"required_if=Provider aws"`
	VaultAddress  string          `json:"vaultAddress,omitempty" bson:"vaultAddress,omitempty" validate:"omitempty,url"`
	VaultMount    string          `json:"vaultMount,omitempty" bson:"vaultMount,omitempty"`
	AeadKeyBase64 string          `json:"-" bson:"-" validate:"required_if=Provider aead,omitempty,base64"`
	AeadKeyID     string          `json:"aeadKeyId,omitempty" bson:"aeadKeyId,omitempty"`
	Credentials   *KMSCredentials `json:"credentials,omitempty" bson:"credentials,omitempty"`
	Keyring       KeyringConfig   `json:"keyring" bson:"keyring"`
	AuditLog      AuditLogConfig  `json:"auditLog" bson:"auditLog"`
	MongoURI      string          `json:"-" bson:"-"`
	MongoDatabase string          `json:"mongoDatabase,omitempty" bson:"mongoDatabase,omitempty"`
	CreatedAt     time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// AuditLogConfig represents the audit log configuration
type AuditLogConfig struct {
	Enabled bool   `json:"enabled" bson:"enabled"`
	Type    string `json:"type" bson:"type" validate:"omitempty,oneof=stdout none"`
}
