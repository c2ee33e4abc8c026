// Package config builds the module configuration from the environment.
//
// Every variable carries the CLINICAL_ENC_ prefix. Values found in the process
// environment win over values read from .env files. Credential values may be
// stored as ENC[...] and are decrypted with CLINICAL_ENC_CREDENTIALS_KEY.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/kms/credentials"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/kms/credentials/symmetric"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// EnvPrefix is prepended to every variable name
const EnvPrefix = "CLINICAL_ENC_"

// DefaultMongoDatabase is used when CLINICAL_ENC_MONGO_DATABASE is unset
const DefaultMongoDatabase = "clinical_records"

var validate = validator.New()

// LookupFunc reads one variable, reporting whether it is set
type LookupFunc func(name string) (string, bool)

// Load reads the given .env files, or ./.env when none are given, and then the
// process environment. A missing ./.env is not an error; a missing named file is.
func Load(files ...string) (*types.EncryptionConfig, error) {
	fileValues, err := readEnvFiles(files)
	if err != nil {
		return nil, err
	}

	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := fileValues[name]
		return v, ok
	}
	return FromLookup(lookup)
}

func readEnvFiles(files []string) (map[string]string, error) {
	if len(files) > 0 {
		values, err := godotenv.Read(files...)
		if err != nil {
			return nil, fmt.Errorf("failed to read env files: %w", err)
		}
		return values, nil
	}

	values, err := godotenv.Read()
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Msg("No .env file found, using process environment only")
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return values, nil
}

// FromLookup builds, decrypts and validates a configuration from lookup
func FromLookup(lookup LookupFunc) (*types.EncryptionConfig, error) {
	r := &reader{lookup: lookup}

	now := time.Now().UTC()
	cfg := &types.EncryptionConfig{
		Provider:      types.ProviderType(strings.ToLower(r.str("PROVIDER"))),
		KeyID:         r.str("KEY_ID"),
		Region:        r.str("REGION"),
		VaultAddress:  r.str("VAULT_ADDRESS"),
		VaultMount:    r.str("VAULT_MOUNT"),
		AeadKeyBase64: r.str("AEAD_KEY"),
		AeadKeyID:     r.str("AEAD_KEY_ID"),
		MongoURI:      r.str("MONGO_URI"),
		MongoDatabase: r.strOr("MONGO_DATABASE", DefaultMongoDatabase),
		Keyring: types.KeyringConfig{
			Algorithm:          types.Algorithm(strings.ToUpper(r.strOr("ALGORITHM", string(types.AlgorithmAES256GCM)))),
			RotateAfter:        r.duration("ROTATE_AFTER"),
			Retention:          r.duration("RETENTION"),
			MaxSealsPerKey:     r.int64("MAX_SEALS_PER_KEY"),
			AutoReplaceRevoked: r.boolOr("AUTO_REPLACE_REVOKED", true),
			CreateMissing:      r.boolOr("CREATE_MISSING", true),
		},
		AuditLog: types.AuditLogConfig{
			Enabled: r.boolOr("AUDIT_LOG_ENABLED", true),
			Type:    r.strOr("AUDIT_LOG_TYPE", "stdout"),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	creds := &types.KMSCredentials{
		AccessKeyID:     r.str("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: r.str("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    r.str("AWS_SESSION_TOKEN"),
		TenantID:        r.str("AZURE_TENANT_ID"),
		ClientID:        r.str("AZURE_CLIENT_ID"),
		ClientSecret:    r.str("AZURE_CLIENT_SECRET"),
		CredentialsJSON: r.str("GCP_CREDENTIALS_JSON"),
		Token:           r.str("VAULT_TOKEN"),
	}
	if *creds != (types.KMSCredentials{}) {
		cfg.Credentials = creds
	}

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %w", errors.Join(r.errs...))
	}

	if err := decryptCredentials(cfg, r.str("CREDENTIALS_KEY")); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	log.Info().
		Str("provider", string(cfg.Provider)).
		Str("algorithm", string(cfg.Keyring.Algorithm)).
		Bool("mongo", cfg.MongoURI != "").
		Msg("Encryption configuration loaded")
	return cfg, nil
}

// Validate checks a configuration against its struct rules
func Validate(cfg *types.EncryptionConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is required")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func decryptCredentials(cfg *types.EncryptionConfig, encodedKey string) error {
	if cfg.Credentials == nil {
		return nil
	}
	if encodedKey == "" {
		if hasEncrypted(cfg.Credentials) {
			return fmt.Errorf("encrypted credentials require %sCREDENTIALS_KEY", EnvPrefix)
		}
		return nil
	}

	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return fmt.Errorf("failed to decode %sCREDENTIALS_KEY: %w", EnvPrefix, err)
	}
	manager, err := credentials.NewManager(key)
	if err != nil {
		return err
	}
	return manager.DecryptCredentials(cfg)
}

func hasEncrypted(c *types.KMSCredentials) bool {
	for _, v := range []string{c.AccessKeyID, c.SecretAccessKey, c.SessionToken, c.TenantID, c.ClientID, c.ClientSecret, c.CredentialsJSON, c.Token} {
		if symmetric.IsEncrypted(v) {
			return true
		}
	}
	return false
}

// reader collects parse errors so every bad variable is reported at once
type reader struct {
	lookup LookupFunc
	errs   []error
}

func (r *reader) str(name string) string {
	v, _ := r.lookup(EnvPrefix + name)
	return strings.TrimSpace(v)
}

func (r *reader) strOr(name, def string) string {
	if v := r.str(name); v != "" {
		return v
	}
	return def
}

func (r *reader) duration(name string) time.Duration {
	v := r.str(name)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
	}
	return d
}

func (r *reader) int64(name string) int64 {
	v := r.str(name)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
	}
	return n
}

func (r *reader) boolOr(name string, def bool) bool {
	v := r.str(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		return def
	}
	return b
}
