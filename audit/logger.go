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

const (
	// Categories
	CategoryCompliance = "compliance"
	CategorySecurity   = "security"
	CategoryOperations = "operations"

	// Event types
	EventTypeDecision   = "lifecycle.decision"
	EventTypeTransition = "lifecycle.transition"
	EventTypeAmendment  = "lifecycle.amendment"
	EventTypeDelete     = "lifecycle.delete"
	EventTypeFieldWrite = "field.write"
	EventTypeFieldRead  = "field.read"
	EventTypeKeyCreate  = "key.create"
	EventTypeKeyRotate  = "key.rotate"
	EventTypeKeyRevoke  = "key.revoke"
	EventTypeKeyLoad    = "key.load"

	// Statuses
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDenied  = "denied"
)

// NewEvent creates an audit event with id and timestamp set
func NewEvent(category, eventType, operation, status string) *types.AuditEvent {
	return &types.AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Category:  category,
		EventType: eventType,
		Operation: operation,
		Status:    status,
		Context:   make(map[string]string),
	}
}

// Record sends event to logger. A failing or missing logger never fails the
// operation being audited; the event is written to the operational log instead.
func Record(ctx context.Context, logger interfaces.AuditLogger, event *types.AuditEvent) {
	if event == nil {
		return
	}
	if logger == nil {
		log.Warn().Str("eventType", event.EventType).Msg("Audit logger not configured, event dropped")
		return
	}
	if err := logger.LogEvent(ctx, event); err != nil {
		log.Error().Err(err).
			Str("eventType", event.EventType).
			Str("operation", event.Operation).
			Msg("Failed to log audit event")
	}
}

// normalize fills the defaults every stored event carries
func normalize(ctx context.Context, event *types.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Context == nil {
		event.Context = make(map[string]string)
	}
	if actor := ActorFrom(ctx); actor != "" {
		if _, set := event.Context[string(KeyActor)]; !set {
			event.Context[string(KeyActor)] = actor
		}
	}
}

// StdoutAuditLogger writes audit events as structured log lines
type StdoutAuditLogger struct {
	logger zerolog.Logger
}

// NewStdoutAuditLogger creates an audit logger on the global zerolog logger
func NewStdoutAuditLogger() *StdoutAuditLogger {
	return NewZerologAuditLogger(log.Logger)
}

// NewZerologAuditLogger creates an audit logger writing to logger
func NewZerologAuditLogger(logger zerolog.Logger) *StdoutAuditLogger {
	return &StdoutAuditLogger{logger: logger.With().Str("component", "audit").Logger()}
}

var _ interfaces.AuditLogger = (*StdoutAuditLogger)(nil)

// Printf writes a free-form audit line
func (l *StdoutAuditLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

// LogEvent logs an audit event with its context fields
func (l *StdoutAuditLogger) LogEvent(ctx context.Context, event *types.AuditEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	normalize(ctx, event)

	entry := l.logger.Info().
		Str("auditId", event.ID).
		Time("timestamp", event.Timestamp).
		Str("category", event.Category).
		Str("eventType", event.EventType).
		Str("operation", event.Operation).
		Str("status", event.Status)

	if event.KeyID != "" {
		entry = entry.Str("keyId", event.KeyID)
	}
	if event.DocumentID != "" {
		entry = entry.Str("documentId", event.DocumentID)
	}
	for _, key := range []ContextKey{KeyActor, KeyFieldName, KeyPurpose, KeyIntent, KeyTrigger, KeyError} {
		if v := event.Context[string(key)]; v != "" {
			entry = entry.Str(string(key), v)
		}
	}
	if len(event.Metadata) > 0 {
		entry = entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("Audit event")
	return nil
}

// GetEvents is not supported by a log-only sink
func (l *StdoutAuditLogger) GetEvents(ctx context.Context, filter map[string]interface{}) ([]*types.AuditEvent, error) {
	return nil, fmt.Errorf("getting events not supported for stdout logger")
}

// NopLogger discards every event
type NopLogger struct{}

var _ interfaces.AuditLogger = NopLogger{}

// Printf discards the line
func (NopLogger) Printf(string, ...interface{}) {}

// LogEvent discards the event
func (NopLogger) LogEvent(context.Context, *types.AuditEvent) error {
	return nil
}

// GetEvents always returns no events
func (NopLogger) GetEvents(context.Context, map[string]interface{}) ([]*types.AuditEvent, error) {
	return nil, nil
}

// MemoryAuditLogger keeps events in memory and supports filtered reads
type MemoryAuditLogger struct {
	mu     sync.RWMutex
	events []*types.AuditEvent
}

// NewMemoryAuditLogger creates an empty in-memory audit logger
func NewMemoryAuditLogger() *MemoryAuditLogger {
	return &MemoryAuditLogger{}
}

var _ interfaces.AuditLogger = (*MemoryAuditLogger)(nil)

// Printf is ignored; only structured events are kept
func (l *MemoryAuditLogger) Printf(string, ...interface{}) {}

// LogEvent stores a copy of event
func (l *MemoryAuditLogger) LogEvent(ctx context.Context, event *types.AuditEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	normalize(ctx, event)

	stored := *event
	stored.Context = make(map[string]string, len(event.Context))
	for k, v := range event.Context {
		stored.Context[k] = v
	}

	l.mu.Lock()
	l.events = append(l.events, &stored)
	l.mu.Unlock()
	return nil
}

// GetEvents returns the events matching every filter, in logging order.
// Supported filters: category, eventType, operation, status, keyId, documentId
// and any context key.
func (l *MemoryAuditLogger) GetEvents(_ context.Context, filters map[string]interface{}) ([]*types.AuditEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*types.AuditEvent
	for _, event := range l.events {
		if matches(event, filters) {
			out = append(out, event)
		}
	}
	return out, nil
}

func matches(event *types.AuditEvent, filters map[string]interface{}) bool {
	for name, want := range filters {
		var got string
		switch name {
		case "category":
			got = event.Category
		case "eventType":
			got = event.EventType
		case "operation":
			got = event.Operation
		case "status":
			got = event.Status
		case "keyId":
			got = event.KeyID
		case "documentId":
			got = event.DocumentID
		default:
			got = event.Context[name]
		}
		if got != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
