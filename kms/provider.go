// Package kms wraps and unwraps key material with an external or local KMS
package kms

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	kmsaead "github.com/hashicorp/go-kms-wrapping/v2/aead"
	zlog "github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

var log = zlog.With().Str("component", "kms").Logger()

// wrapTimeout bounds a single KMS round trip
const wrapTimeout = 5 * time.Second

// provider implements the Provider interface
type provider struct {
	wrapper wrapping.Wrapper

	mu              sync.RWMutex
	lastHealthCheck error
}

// NewProvider creates a new KMS provider based on the configuration
func NewProvider(config Config) (Provider, error) {
	var (
		wrapper  wrapping.Wrapper
		err      error
		keyID    string
		location string
	)

	log.Debug().Str("provider", string(config.Type)).Msg("Initializing KMS provider")

	switch config.Type {
	case types.ProviderAWS:
		if config.AWS == nil {
			return nil, fmt.Errorf("AWS configuration is missing for provider type %s", config.Type)
		}
		if err = validateAWSConfig(*config.AWS); err != nil {
			return nil, fmt.Errorf("invalid AWS KMS configuration: %w", err)
		}
		keyID, location = config.AWS.KeyID, config.AWS.Region
		wrapper, err = createAWSWrapper(*config.AWS)
	case types.ProviderAzure:
		if config.Azure == nil {
			return nil, fmt.Errorf("azure configuration is missing for provider type %s", config.Type)
		}
		if err = validateAzureConfig(*config.Azure); err != nil {
			return nil, fmt.Errorf("invalid Azure Key Vault configuration: %w", err)
		}
		keyID, location = config.Azure.KeyID, config.Azure.VaultAddress
		wrapper, err = createAzureWrapper(*config.Azure)
	case types.ProviderGCP:
		if config.GCP == nil {
			return nil, fmt.Errorf("GCP configuration is missing for provider type %s", config.Type)
		}
		if err = validateGCPConfig(*config.GCP); err != nil {
			return nil, fmt.Errorf("invalid GCP KMS configuration: %w", err)
		}
		keyID, location = config.GCP.ResourceName, strings.Split(config.GCP.ResourceName, "/")[3]
		wrapper, err = createGCPWrapper(*config.GCP)
	case types.ProviderVault:
		if config.Vault == nil {
			return nil, fmt.Errorf("vault configuration is missing for provider type %s", config.Type)
		}
		if err = validateVaultConfig(*config.Vault); err != nil {
			return nil, fmt.Errorf("invalid Vault configuration: %w", err)
		}
		keyID, location = config.Vault.KeyID, config.Vault.VaultAddress
		wrapper, err = createVaultWrapper(*config.Vault)
	case types.ProviderAead:
		keyID, location = config.AeadKeyID, "local"
		wrapper, err = createAeadWrapper(config.AeadKeyBase64, config.AeadKeyID)
	default:
		return nil, fmt.Errorf("unsupported KMS provider type: %s", config.Type)
	}

	if err != nil {
		log.Error().Err(err).Str("provider", string(config.Type)).Msg("Failed to create KMS provider wrapper")
		return nil, fmt.Errorf("failed to create wrapper: %w", err)
	}

	log.Info().
		Str("provider", string(config.Type)).
		Str("keyIdentifier", keyID).
		Str("locationContext", location).
		Msg("KMS provider initialized")

	return &provider{wrapper: wrapper}, nil
}

// NewProviderFromWrapper adapts an already configured wrapper
func NewProviderFromWrapper(wrapper wrapping.Wrapper) (Provider, error) {
	if wrapper == nil {
		return nil, fmt.Errorf("wrapper is required")
	}
	return &provider{wrapper: wrapper}, nil
}

// GetWrapper returns the underlying KMS wrapper
func (p *provider) GetWrapper() wrapping.Wrapper {
	return p.wrapper
}

// Test performs a wrap and unwrap of a probe value
func (p *provider) Test(ctx context.Context) error {
	probe := []byte("clinical-records-kms-probe")
	aad := []byte("health-check")

	blob, err := WrapKey(ctx, p, probe, aad)
	if err != nil {
		return fmt.Errorf("encryption test failed: %w", err)
	}
	out, err := UnwrapKey(ctx, p, blob, aad)
	if err != nil {
		return fmt.Errorf("decryption test failed: %w", err)
	}
	if !bytes.Equal(out, probe) {
		return fmt.Errorf("decrypted data does not match original")
	}
	return nil
}

// HealthCheck runs Test and remembers its outcome
func (p *provider) HealthCheck(ctx context.Context) error {
	if p.wrapper == nil {
		return fmt.Errorf("KMS provider not properly initialized: wrapper is nil")
	}

	err := p.Test(ctx)
	if err != nil {
		err = fmt.Errorf("KMS provider health check failed: %w", err)
	}

	p.mu.Lock()
	p.lastHealthCheck = err
	p.mu.Unlock()
	return err
}

// GetLastHealthCheckError returns the last health check error if any
func (p *provider) GetLastHealthCheckError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastHealthCheck
}

// WrapKey encrypts material with the provider's wrapper, bound to aad, and
// verifies that the result unwraps to the same bytes before returning it.
func WrapKey(ctx context.Context, p Provider, material, aad []byte) (*wrapping.BlobInfo, error) {
	if p == nil || p.GetWrapper() == nil {
		return nil, fmt.Errorf("KMS wrapper not available")
	}
	if len(material) == 0 {
		return nil, fmt.Errorf("key material is required")
	}
	wrapper := p.GetWrapper()

	wrapCtx, cancel := context.WithTimeout(ctx, wrapTimeout)
	defer cancel()

	blob, err := wrapper.Encrypt(wrapCtx, material, wrapping.WithAad(aad))
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key: %w", err)
	}
	if blob == nil {
		return nil, fmt.Errorf("wrapped key info is nil")
	}

	verify, err := wrapper.Decrypt(wrapCtx, blob, wrapping.WithAad(aad))
	if err != nil {
		return nil, fmt.Errorf("failed to verify wrapped key: %w", err)
	}
	defer wipe(verify)
	if !bytes.Equal(verify, material) {
		return nil, fmt.Errorf("unwrapped key does not match original")
	}
	return blob, nil
}

// UnwrapKey recovers material wrapped by WrapKey with the same aad
func UnwrapKey(ctx context.Context, p Provider, blob *wrapping.BlobInfo, aad []byte) ([]byte, error) {
	if p == nil || p.GetWrapper() == nil {
		return nil, fmt.Errorf("KMS wrapper not available")
	}
	if blob == nil {
		return nil, fmt.Errorf("wrapped key is required")
	}
	if len(aad) == 0 {
		return nil, fmt.Errorf("missing wrap context, cannot determine AAD for unwrapping")
	}

	unwrapCtx, cancel := context.WithTimeout(ctx, wrapTimeout)
	defer cancel()

	material, err := p.GetWrapper().Decrypt(unwrapCtx, blob, wrapping.WithAad(aad))
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key: %w", err)
	}
	return material, nil
}

func createAeadWrapper(keyBase64, keyID string) (wrapping.Wrapper, error) {
	if keyBase64 == "" {
		return nil, fmt.Errorf("AEAD provider requires AeadKeyBase64")
	}
	if keyID == "" {
		log.Warn().Msg("AeadKeyID is empty for AEAD provider, wrapped blobs will carry no key id")
	}

	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode AeadKeyBase64: %w", err)
	}
	if len(key) != types.KeySize {
		return nil, fmt.Errorf("decoded AEAD key must be %d bytes for AES-256-GCM, got %d", types.KeySize, len(key))
	}

	wrapper := kmsaead.NewWrapper()
	opts := []wrapping.Option{kmsaead.WithKey(key)}
	if keyID != "" {
		opts = append(opts, wrapping.WithKeyId(keyID))
	}
	if _, err := wrapper.SetConfig(context.Background(), opts...); err != nil {
		return nil, fmt.Errorf("failed to configure AEAD wrapper: %w", err)
	}
	return wrapper, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
