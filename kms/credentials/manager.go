// Package credentials protects KMS credentials held in configuration
package credentials

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/kms"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/kms/credentials/symmetric"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// MaskedValue replaces secrets when a configuration is displayed
const MaskedValue = "[MASKED]"

type credentialField struct {
	label string
	key   string
	ref   func(c *types.KMSCredentials) *string
}

var providerFields = map[types.ProviderType][]credentialField{
	types.ProviderAWS: {
		{label: "AWS access key", key: "accessKeyId", ref: func(c *types.KMSCredentials) *string { return &c.AccessKeyID }},
		{label: "AWS secret key", key: "secretAccessKey", ref: func(c *types.KMSCredentials) *string { return &c.SecretAccessKey }},
		{label: "AWS session token", key: "sessionToken", ref: func(c *types.KMSCredentials) *string { return &c.SessionToken }},
	},
	types.ProviderAzure: {
		{label: "Azure tenant ID", key: "tenantId", ref: func(c *types.KMSCredentials) *string { return &c.TenantID }},
		{label: "Azure client ID", key: "clientId", ref: func(c *types.KMSCredentials) *string { return &c.ClientID }},
		{label: "Azure client secret", key: "clientSecret", ref: func(c *types.KMSCredentials) *string { return &c.ClientSecret }},
	},
	types.ProviderGCP: {
		{label: "GCP credentials JSON", key: "credentialsJson", ref: func(c *types.KMSCredentials) *string { return &c.CredentialsJSON }},
	},
	types.ProviderVault: {
		{label: "Vault token", key: "token", ref: func(c *types.KMSCredentials) *string { return &c.Token }},
	},
	types.ProviderAead: {},
}

// credentialManager implements the CredentialsManager interface for credential encryption
type credentialManager struct {
	encryptor interfaces.SymmetricEncryptor
}

// NewManager creates a credential manager using a 32 byte encryption key
func NewManager(encryptionKey []byte) (interfaces.CredentialsManager, error) {
	encryptor, err := symmetric.NewEncryption(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	return &credentialManager{encryptor: encryptor}, nil
}

// EncryptCredentials encrypts the credentials of the configured provider in place.
// Credentials of other providers are dropped.
func (m *credentialManager) EncryptCredentials(config *types.EncryptionConfig) error {
	return m.transform(config, "encrypt", m.encryptor.Encrypt)
}

// DecryptCredentials decrypts the credentials of the configured provider in place
func (m *credentialManager) DecryptCredentials(config *types.EncryptionConfig) error {
	if config != nil && config.Credentials != nil && config.Provider == "" {
		return fmt.Errorf("provider type is required for decryption")
	}
	return m.transform(config, "decrypt", m.encryptor.Decrypt)
}

func (m *credentialManager) transform(config *types.EncryptionConfig, op string, fn func(string) (string, error)) error {
	if config == nil || config.Credentials == nil {
		return nil
	}
	fields, ok := providerFields[config.Provider]
	if !ok {
		return fmt.Errorf("unsupported provider type: %s", config.Provider)
	}

	out := &types.KMSCredentials{}
	for _, f := range fields {
		value := *f.ref(config.Credentials)
		if value == "" || value == MaskedValue {
			continue
		}
		result, err := fn(value)
		if err != nil {
			log.Error().Err(err).Str("field", f.label).Msgf("Failed to %s credential field", op)
			return fmt.Errorf("failed to %s %s: %w", op, f.label, err)
		}
		*f.ref(out) = result
	}
	config.Credentials = out

	log.Debug().
		Str("provider", string(config.Provider)).
		Int("fields", len(fields)).
		Msgf("Credentials %sed", op)
	return nil
}

// Mask returns a copy of creds with every non-empty secret replaced by MaskedValue
func Mask(creds *types.KMSCredentials) *types.KMSCredentials {
	if creds == nil {
		return nil
	}
	masked := *creds
	for _, fields := range providerFields {
		for _, f := range fields {
			if *f.ref(&masked) != "" {
				*f.ref(&masked) = MaskedValue
			}
		}
	}
	return &masked
}

// ToMap converts KMS credentials to the map form read by the KMS wrappers
func ToMap(creds *types.KMSCredentials) map[string]interface{} {
	if creds == nil {
		return nil
	}
	result := make(map[string]interface{})
	for _, fields := range providerFields {
		for _, f := range fields {
			if v := *f.ref(creds); v != "" {
				result[f.key] = v
			}
		}
	}
	return result
}

// ToKMSConfig converts the service configuration into a KMS provider configuration
func ToKMSConfig(config *types.EncryptionConfig) kms.Config {
	if config == nil {
		log.Warn().Msg("ToKMSConfig called with nil EncryptionConfig")
		return kms.Config{}
	}

	cfg := kms.Config{Type: config.Provider}
	creds := ToMap(config.Credentials)
	if creds == nil {
		creds = make(map[string]interface{})
	}

	switch config.Provider {
	case types.ProviderAWS:
		cfg.AWS = &kms.AWSConfig{KeyID: config.KeyID, Region: config.Region, Credentials: creds}
	case types.ProviderAzure:
		cfg.Azure = &kms.AzureConfig{KeyID: config.KeyID, VaultAddress: config.VaultAddress, Credentials: creds}
	case types.ProviderGCP:
		// KeyID carries the full GCP resource name
		cfg.GCP = &kms.GCPConfig{ResourceName: config.KeyID, Credentials: creds}
	case types.ProviderVault:
		cfg.Vault = &kms.VaultConfig{KeyID: config.KeyID, VaultAddress: config.VaultAddress, VaultMount: config.VaultMount, Credentials: creds}
	case types.ProviderAead:
		cfg.AeadKeyBase64 = config.AeadKeyBase64
		cfg.AeadKeyID = config.AeadKeyID
	default:
		log.Error().Str("provider", string(config.Provider)).Msg("Unsupported provider type encountered in ToKMSConfig")
	}
	return cfg
}
