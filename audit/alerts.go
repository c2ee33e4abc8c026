package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// LogAlertSink writes security alerts to a dedicated logger at error level
type LogAlertSink struct {
	logger zerolog.Logger
}

// NewLogAlertSink creates an alert sink on logger
func NewLogAlertSink(logger zerolog.Logger) *LogAlertSink {
	return &LogAlertSink{logger: logger.With().Str("component", "security-alerts").Logger()}
}

// NewStdoutAlertSink creates an alert sink on the global zerolog logger
func NewStdoutAlertSink() *LogAlertSink {
	return NewLogAlertSink(log.Logger)
}

var _ interfaces.AlertSink = (*LogAlertSink)(nil)

// RaiseAlert logs alert. Plaintext never reaches an alert; only identifiers do.
func (s *LogAlertSink) RaiseAlert(ctx context.Context, alert *types.SecurityAlert) error {
	if alert == nil {
		return fmt.Errorf("alert cannot be nil")
	}
	normalizeAlert(ctx, alert)

	s.logger.Error().
		Str("alertId", alert.ID).
		Time("timestamp", alert.Timestamp).
		Str("reason", string(alert.Reason)).
		Str("keyId", alert.KeyID).
		Str("purpose", string(alert.Purpose)).
		Str("documentId", alert.DocumentID).
		Str("fieldName", alert.FieldName).
		Str("actor", alert.Actor).
		Msg(alert.Message)
	return nil
}

// MemoryAlertSink keeps alerts in memory
type MemoryAlertSink struct {
	mu     sync.Mutex
	alerts []types.SecurityAlert
}

var _ interfaces.AlertSink = (*MemoryAlertSink)(nil)

// RaiseAlert stores a copy of alert
func (s *MemoryAlertSink) RaiseAlert(ctx context.Context, alert *types.SecurityAlert) error {
	if alert == nil {
		return fmt.Errorf("alert cannot be nil")
	}
	normalizeAlert(ctx, alert)
	s.mu.Lock()
	s.alerts = append(s.alerts, *alert)
	s.mu.Unlock()
	return nil
}

// Alerts returns the alerts raised so far
func (s *MemoryAlertSink) Alerts() []types.SecurityAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.SecurityAlert(nil), s.alerts...)
}

func normalizeAlert(ctx context.Context, alert *types.SecurityAlert) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	if alert.Actor == "" {
		alert.Actor = ActorFrom(ctx)
	}
	if alert.Message == "" {
		alert.Message = fmt.Sprintf("integrity incident: %s", alert.Reason)
	}
}
