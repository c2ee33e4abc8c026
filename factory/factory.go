// Package factory wires the module's components from an EncryptionConfig
package factory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/audit"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/codec"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/coordinator"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/keyring"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/keyring/store"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/kms"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/kms/credentials"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/legal"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/metrics"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// MaxScheduleInterval caps how often the rotation schedule checks for due keys
const MaxScheduleInterval = time.Hour

// Keyring holds the key subsystem built from configuration
type Keyring struct {
	Config      *types.EncryptionConfig
	Provider    kms.Provider
	Store       interfaces.KeyStore
	Registry    *keyring.Registry
	AuditLogger interfaces.AuditLogger
	Metrics     *metrics.Metrics

	client *mongo.Client
	cancel context.CancelFunc
}

// Module is the complete set of components offered to feature modules
type Module struct {
	*Keyring
	Codec       *codec.Codec
	Machine     *legal.StateMachine
	Coordinator *coordinator.Coordinator
}

type settings struct {
	registerer  prometheus.Registerer
	auditLogger interfaces.AuditLogger
	alertSink   interfaces.AlertSink
	keyStore    interfaces.KeyStore
	schedule    bool
}

// Option configures what the factory builds
type Option func(*settings)

// WithRegisterer registers the module metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = reg }
}

// WithAuditLogger overrides the audit logger selected by configuration
func WithAuditLogger(logger interfaces.AuditLogger) Option {
	return func(s *settings) { s.auditLogger = logger }
}

// WithAlertSink overrides the default log-based alert sink
func WithAlertSink(sink interfaces.AlertSink) Option {
	return func(s *settings) { s.alertSink = sink }
}

// WithKeyStore uses keyStore instead of the store selected by configuration
func WithKeyStore(keyStore interfaces.KeyStore) Option {
	return func(s *settings) { s.keyStore = keyStore }
}

// WithoutSchedule leaves scheduled rotation to the caller
func WithoutSchedule() Option {
	return func(s *settings) { s.schedule = false }
}

// NewKeyring connects the KMS provider and key store and loads the registry
func NewKeyring(ctx context.Context, cfg *types.EncryptionConfig, opts ...Option) (*Keyring, error) {
	if cfg == nil {
		return nil, fmt.Errorf("encryption config is required")
	}
	s := settings{schedule: true}
	for _, opt := range opts {
		opt(&s)
	}

	k := &Keyring{Config: cfg}
	if s.registerer != nil {
		k.Metrics = metrics.New(s.registerer)
	}

	auditLogger, err := createAuditLogger(ctx, cfg, s.auditLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}
	k.AuditLogger = auditLogger

	if k.Provider, err = createKMSProvider(ctx, cfg); err != nil {
		return nil, err
	}

	k.Store = s.keyStore
	if k.Store == nil {
		if k.Store, k.client, err = createKeyStore(ctx, cfg); err != nil {
			return nil, err
		}
	}

	registry, err := keyring.NewRegistry(k.Provider, k.Store, auditLogger, cfg.Keyring,
		keyring.WithMetrics(k.Metrics),
		keyring.WithLogger(log.With().Str("component", "keyring").Logger()),
	)
	if err != nil {
		k.disconnect(ctx)
		return nil, fmt.Errorf("failed to create key registry: %w", err)
	}
	if err := registry.Initialize(ctx); err != nil {
		k.disconnect(ctx)
		return nil, fmt.Errorf("failed to initialize key registry: %w", err)
	}
	k.Registry = registry

	if s.schedule && cfg.Keyring.RotateAfter > 0 {
		interval := cfg.Keyring.RotateAfter
		if interval > MaxScheduleInterval {
			interval = MaxScheduleInterval
		}
		scheduleCtx, cancel := context.WithCancel(context.Background())
		if err := registry.StartRotationSchedule(scheduleCtx, interval); err != nil {
			cancel()
			k.disconnect(ctx)
			return nil, err
		}
		k.cancel = cancel
	}

	log.Info().
		Str("provider", string(cfg.Provider)).
		Bool("mongo", k.client != nil).
		Msg("Keyring ready")
	return k, nil
}

// New builds the keyring and the lifecycle coordinator on top of it
func New(ctx context.Context, cfg *types.EncryptionConfig, records interfaces.RecordRepository, opts ...Option) (*Module, error) {
	k, err := NewKeyring(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	sink := s.alertSink
	if sink == nil {
		sink = audit.NewStdoutAlertSink()
	}

	m := &Module{
		Keyring: k,
		Codec:   codec.New(),
		Machine: legal.New(),
	}
	m.Coordinator, err = coordinator.New(m.Machine, k.Registry, m.Codec, records,
		coordinator.WithAuditLogger(k.AuditLogger),
		coordinator.WithAlertSink(sink),
		coordinator.WithMetrics(k.Metrics),
	)
	if err != nil {
		_ = k.Close(ctx)
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	return m, nil
}

// Close stops the rotation schedule and disconnects from MongoDB
func (k *Keyring) Close(ctx context.Context) error {
	if k.cancel != nil {
		k.cancel()
	}
	return k.disconnect(ctx)
}

// Close releases document leases, then the keyring
func (m *Module) Close(ctx context.Context) error {
	var errs []error
	if err := m.Coordinator.Locks().Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to release document locks: %w", err))
	}
	if err := m.Keyring.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (k *Keyring) disconnect(ctx context.Context) error {
	if k.client == nil {
		return nil
	}
	client := k.client
	k.client = nil
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}

func createAuditLogger(ctx context.Context, cfg *types.EncryptionConfig, override interfaces.AuditLogger) (interfaces.AuditLogger, error) {
	if override != nil {
		return override, nil
	}
	if !cfg.AuditLog.Enabled || cfg.AuditLog.Type == "none" {
		return audit.NopLogger{}, nil
	}

	logger := audit.NewStdoutAuditLogger()
	event := audit.NewEvent(audit.CategoryOperations, "initialization", "create_logger", audit.StatusSuccess)
	event.Context["provider"] = string(cfg.Provider)
	if err := logger.LogEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to log initial audit event: %w", err)
	}
	return logger, nil
}

func createKMSProvider(ctx context.Context, cfg *types.EncryptionConfig) (kms.Provider, error) {
	provider, err := kms.NewProvider(credentials.ToKMSConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS provider: %w", err)
	}
	if err := provider.Test(ctx); err != nil {
		return nil, fmt.Errorf("KMS provider self-test failed: %w", err)
	}
	return provider, nil
}

// createKeyStore uses MongoDB when a URI is configured and memory otherwise
func createKeyStore(ctx context.Context, cfg *types.EncryptionConfig) (interfaces.KeyStore, *mongo.Client, error) {
	if cfg.MongoURI == "" {
		log.Warn().Msg("No MongoDB URI configured, key records are kept in memory only")
		return store.NewMemoryStore(), nil, nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to reach MongoDB: %w", err)
	}

	keyStore := store.NewMongoDBStore(client.Database(cfg.MongoDatabase), store.DefaultCollection)
	if indexed, ok := keyStore.(*store.MongoDBStore); ok {
		if err := indexed.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, fmt.Errorf("failed to create key indexes: %w", err)
		}
	}
	return keyStore, client, nil
}
