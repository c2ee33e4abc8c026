package kms

import (
	"context"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// Provider represents a KMS provider that wraps key material at rest
type Provider interface {
	// GetWrapper returns the underlying KMS wrapper
	GetWrapper() wrapping.Wrapper

	// Test performs a test encryption/decryption
	Test(ctx context.Context) error

	// HealthCheck performs a comprehensive health check
	HealthCheck(ctx context.Context) error

	// GetLastHealthCheckError returns the last health check error
	GetLastHealthCheckError() error
}

// Config represents the internal KMS provider configuration.
// Exactly one of the provider sections is read, selected by Type.
type Config struct {
	Type  types.ProviderType `json:"type" bson:"type"`
	AWS   *AWSConfig         `json:"aws,omitempty" bson:"aws,omitempty"`
	Azure *AzureConfig       `json:"azure,omitempty" bson:"azure,omitempty"`
	GCP   *GCPConfig         `json:"gcp,omitempty" bson:"gcp,omitempty"`
	Vault *VaultConfig       `json:"vault,omitempty" bson:"vault,omitempty"`

	// Local AEAD wrapping, development and tests only
	AeadKeyBase64 string `json:"-" bson:"-"`
	AeadKeyID     string `json:"aeadKeyId,omitempty" bson:"aeadKeyId,omitempty"`
}

// AWSConfig configures the AWS KMS wrapper
type AWSConfig struct {
	KeyID       string                 `json:"keyId" bson:"keyId"`
	Region      string                 `json:"region" bson:"region"`
	Credentials map[string]interface{} `json:"credentials,omitempty" bson:"credentials,omitempty"`
}

// AzureConfig configures the Azure Key Vault wrapper
type AzureConfig struct {
	KeyID        string                 `json:"keyId" bson:"keyId"`
	VaultAddress string                 `json:"vaultAddress" bson:"vaultAddress"`
	Credentials  map[string]interface{} `json:"credentials,omitempty" bson:"credentials,omitempty"`
}

// GCPConfig configures the Google Cloud KMS wrapper
type GCPConfig struct {
	// ResourceName is projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{cryptoKey}
	ResourceName string                 `json:"resourceName" bson:"resourceName"`
	Credentials  map[string]interface{} `json:"credentials,omitempty" bson:"credentials,omitempty"`
}

// VaultConfig configures the Vault transit wrapper
type VaultConfig struct {
	KeyID        string                 `json:"keyId" bson:"keyId"`
	VaultAddress string                 `json:"vaultAddress" bson:"vaultAddress"`
	VaultMount   string                 `json:"vaultMount,omitempty" bson:"vaultMount,omitempty"`
	Credentials  map[string]interface{} `json:"credentials,omitempty" bson:"credentials,omitempty"`
}
