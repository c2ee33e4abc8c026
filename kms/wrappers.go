package kms

import (
	"context"
	"fmt"
	"os"
	"strings"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	awskms "github.com/hashicorp/go-kms-wrapping/wrappers/awskms/v2"
	azurekeyvault "github.com/hashicorp/go-kms-wrapping/wrappers/azurekeyvault/v2"
	gcpckms "github.com/hashicorp/go-kms-wrapping/wrappers/gcpckms/v2"
	transit "github.com/hashicorp/go-kms-wrapping/wrappers/transit/v2"
)

// credential returns a non-empty string credential
func credential(creds map[string]interface{}, name string) (string, bool) {
	v, ok := creds[name].(string)
	return v, ok && v != ""
}

func validateAWSConfig(cfg AWSConfig) error {
	if cfg.KeyID == "" {
		return fmt.Errorf("key ID (ARN) is required")
	}
	if cfg.Region == "" {
		return fmt.Errorf("region is required")
	}
	if cfg.Credentials == nil {
		log.Info().Msg("AWS credentials not provided in config, assuming environment variables or default credentials")
		return nil
	}
	_, hasAccess := credential(cfg.Credentials, "accessKeyId")
	_, hasSecret := credential(cfg.Credentials, "secretAccessKey")
	if hasAccess != hasSecret {
		return fmt.Errorf("both accessKeyId and secretAccessKey must be provided if using credentials")
	}
	return nil
}

func validateAzureConfig(cfg AzureConfig) error {
	if cfg.KeyID == "" {
		return fmt.Errorf("key ID (URL) is required")
	}
	if !strings.HasPrefix(cfg.VaultAddress, "https://") || !strings.Contains(cfg.VaultAddress, ".vault.azure.net") {
		return fmt.Errorf("vault address must be a valid Azure Key Vault URL (e.g., https://myvault.vault.azure.net)")
	}
	if cfg.Credentials == nil {
		log.Info().Msg("Azure credentials not provided, assuming Managed Identity")
		return nil
	}
	for _, field := range []string{"tenantId", "clientId", "clientSecret"} {
		if _, ok := credential(cfg.Credentials, field); !ok {
			return fmt.Errorf("%s is required in credentials and cannot be empty", field)
		}
	}
	return nil
}

// parseGCPResourceName splits projects/{p}/locations/{l}/keyRings/{r}/cryptoKeys/{k}
func parseGCPResourceName(name string) (project, location, keyRing, cryptoKey string, err error) {
	parts := strings.Split(name, "/")
	if len(parts) != 8 || parts[0] != "projects" || parts[2] != "locations" || parts[4] != "keyRings" || parts[6] != "cryptoKeys" {
		return "", "", "", "", fmt.Errorf("invalid resource name format. Expected: projects/{project}/locations/{location}/keyRings/{keyRing}/cryptoKeys/{cryptoKey}")
	}
	if parts[1] == "" || parts[3] == "" || parts[5] == "" || parts[7] == "" {
		return "", "", "", "", fmt.Errorf("project, location, keyRing, and cryptoKey components in resource name cannot be empty")
	}
	return parts[1], parts[3], parts[5], parts[7], nil
}

func validateGCPConfig(cfg GCPConfig) error {
	if cfg.ResourceName == "" {
		return fmt.Errorf("resource name is required")
	}
	if _, _, _, _, err := parseGCPResourceName(cfg.ResourceName); err != nil {
		return err
	}
	if cfg.Credentials == nil {
		log.Info().Msg("GCP credentials map not provided in config, assuming Application Default Credentials")
		return nil
	}
	if _, ok := credential(cfg.Credentials, "credentialsJson"); !ok {
		return fmt.Errorf("credentialsJson is required in credentials map and cannot be empty")
	}
	return nil
}

func validateVaultConfig(cfg VaultConfig) error {
	if cfg.KeyID == "" {
		return fmt.Errorf("key ID (key name) is required")
	}
	if cfg.VaultAddress == "" {
		return fmt.Errorf("vault address is required")
	}
	if cfg.Credentials == nil {
		log.Info().Msg("Vault token not provided in config, assuming VAULT_TOKEN environment variable")
		return nil
	}
	if _, ok := credential(cfg.Credentials, "token"); !ok {
		return fmt.Errorf("token is required in credentials map and cannot be empty")
	}
	return nil
}

func configure(w wrapping.Wrapper, name string, configMap map[string]string) (wrapping.Wrapper, error) {
	if _, err := w.SetConfig(context.Background(), wrapping.WithConfigMap(configMap)); err != nil {
		return nil, fmt.Errorf("failed to configure %s wrapper: %w", name, err)
	}
	return w, nil
}

func createAWSWrapper(cfg AWSConfig) (wrapping.Wrapper, error) {
	configMap := map[string]string{
		"kms_key_id": cfg.KeyID,
		"region":     cfg.Region,
	}
	if v, ok := credential(cfg.Credentials, "accessKeyId"); ok {
		configMap["access_key"] = v
	}
	if v, ok := credential(cfg.Credentials, "secretAccessKey"); ok {
		configMap["secret_key"] = v
	}
	if v, ok := credential(cfg.Credentials, "sessionToken"); ok {
		configMap["session_token"] = v
	}
	return configure(awskms.NewWrapper(), "AWS KMS", configMap)
}

func createAzureWrapper(cfg AzureConfig) (wrapping.Wrapper, error) {
	// https://{vault}.vault.azure.net/keys/{name}/{version}
	keyName, keyVersion := cfg.KeyID, ""
	if parts := strings.Split(cfg.KeyID, "/"); len(parts) >= 5 && parts[3] == "keys" {
		keyName = parts[4]
		if len(parts) >= 6 {
			keyVersion = parts[5]
		}
	} else {
		log.Warn().Str("keyId", cfg.KeyID).Msg("Azure KeyID is not a key identifier URL, using it as key_name")
	}
	vaultName := strings.Split(strings.TrimPrefix(cfg.VaultAddress, "https://"), ".")[0]

	configMap := map[string]string{
		"key_name":   keyName,
		"vault_name": vaultName,
		"vault_url":  cfg.VaultAddress,
	}
	if keyVersion != "" {
		configMap["key_version"] = keyVersion
	}
	for field, option := range map[string]string{"tenantId": "tenant_id", "clientId": "client_id", "clientSecret": "client_secret"} {
		if v, ok := credential(cfg.Credentials, field); ok {
			configMap[option] = v
		}
	}
	return configure(azurekeyvault.NewWrapper(), "Azure Key Vault", configMap)
}

func createGCPWrapper(cfg GCPConfig) (wrapping.Wrapper, error) {
	project, location, keyRing, cryptoKey, err := parseGCPResourceName(cfg.ResourceName)
	if err != nil {
		return nil, err
	}
	configMap := map[string]string{
		"project":    project,
		"region":     location,
		"key_ring":   keyRing,
		"crypto_key": cryptoKey,
	}

	// the wrapper only reads credentials from a file path
	if credsJSON, ok := credential(cfg.Credentials, "credentialsJson"); ok {
		f, err := os.CreateTemp("", "gcp-creds-*.json")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary credentials file: %w", err)
		}
		defer func() {
			if err := os.Remove(f.Name()); err != nil {
				log.Error().Err(err).Str("filePath", f.Name()).Msg("Failed to remove temporary credentials file")
			}
		}()
		if _, err := f.WriteString(credsJSON); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write credentials to temporary file: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to close temporary credentials file: %w", err)
		}
		configMap["credentials"] = f.Name()
	}
	return configure(gcpckms.NewWrapper(), "GCP KMS", configMap)
}

func createVaultWrapper(cfg VaultConfig) (wrapping.Wrapper, error) {
	configMap := map[string]string{
		"address":  cfg.VaultAddress,
		"key_name": cfg.KeyID,
	}
	if cfg.VaultMount != "" {
		configMap["mount_path"] = cfg.VaultMount
	}
	if token, ok := credential(cfg.Credentials, "token"); ok {
		configMap["token"] = token
	}
	return configure(transit.NewWrapper(), "Vault Transit", configMap)
}
