// Package coordinator composes the legal state machine with the key registry
// and codec for single document operations. It is the only package that
// knows about both subsystems.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/audit"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/legal"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/metrics"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

var (
	// ErrFieldNotFound is returned when a document has no such protected field
	ErrFieldNotFound = errors.New("protected field not found")

	// ErrPurposeMismatch is returned when a write names a purpose other than the field's
	ErrPurposeMismatch = errors.New("field purpose mismatch")
)

// TransitionResult is the outcome of an approved status transition
type TransitionResult struct {
	From types.LegalStatus
	To   types.LegalStatus

	// Amendment is the new draft created by SIGNED -> AMENDED, nil otherwise
	Amendment *types.Document
}

// Coordinator implements the lifecycle operations offered to feature modules
type Coordinator struct {
	machine     *legal.StateMachine
	registry    interfaces.KeyRegistry
	codec       interfaces.Codec
	records     interfaces.RecordRepository
	alerts      interfaces.AlertSink
	auditLogger interfaces.AuditLogger
	metrics     *metrics.Metrics
	locks       *LockTable
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithAlertSink routes integrity incidents to sink
func WithAlertSink(sink interfaces.AlertSink) Option {
	return func(c *Coordinator) { c.alerts = sink }
}

// WithAuditLogger records decisions, transitions and field access
func WithAuditLogger(logger interfaces.AuditLogger) Option {
	return func(c *Coordinator) { c.auditLogger = logger }
}

// WithMetrics counts seals, opens, decisions and alerts
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a coordinator
func New(machine *legal.StateMachine, registry interfaces.KeyRegistry, codec interfaces.Codec, records interfaces.RecordRepository, opts ...Option) (*Coordinator, error) {
	if machine == nil {
		return nil, fmt.Errorf("state machine is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("key registry is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}

	c := &Coordinator{
		machine:     machine,
		registry:    registry,
		codec:       codec,
		records:     records,
		auditLogger: audit.NopLogger{},
		alerts:      audit.NewStdoutAlertSink(),
		locks:       NewLockTable(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Locks returns the per-document lock table
func (c *Coordinator) Locks() *LockTable {
	return c.locks
}

// Authorize answers whether intent is allowed on doc in its current state
func (c *Coordinator) Authorize(ctx context.Context, intent types.Intent, doc types.Document) legal.Decision {
	decision := c.machine.Authorize(intent, doc)
	c.metrics.IncrementDecision(string(intent), decision.Allowed)

	status := audit.StatusSuccess
	if !decision.Allowed {
		status = audit.StatusDenied
	}
	event := c.documentEvent(audit.EventTypeDecision, string(intent), status, doc)
	if !decision.Allowed {
		event.Context[string(audit.KeyError)] = decision.Reason()
	}
	audit.Record(ctx, c.auditLogger, event)
	return decision
}

// ReadProtectedField opens a field of doc. Reads are never gated by legal
// status. When the primary envelope's key is unavailable the field's
// fallback envelopes are tried in order; integrity failures are never
// retried and are raised as security alerts.
func (c *Coordinator) ReadProtectedField(ctx context.Context, doc types.Document, fieldName string) (string, error) {
	field, ok := doc.Field(fieldName)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", ErrFieldNotFound, doc.ID, fieldName)
	}

	plaintext, usedKeyID, err := c.openField(ctx, doc, fieldName, field)
	event := c.documentEvent(audit.EventTypeFieldRead, "read", audit.StatusSuccess, doc)
	event.Context[string(audit.KeyFieldName)] = fieldName
	event.Context[string(audit.KeyPurpose)] = string(field.Purpose)
	if err != nil {
		event.Status = audit.StatusFailed
		event.Context[string(audit.KeyError)] = err.Error()
		audit.Record(ctx, c.auditLogger, event)
		return "", err
	}
	event.KeyID = usedKeyID
	audit.Record(ctx, c.auditLogger, event)
	return string(plaintext), nil
}

// openField returns the plaintext and the id of the key that opened it
func (c *Coordinator) openField(ctx context.Context, doc types.Document, fieldName string, field types.ProtectedField) ([]byte, string, error) {
	candidates := make([]types.SealedEnvelope, 0, 1+len(field.Fallbacks))
	candidates = append(candidates, field.Envelope)
	candidates = append(candidates, field.Fallbacks...)

	var firstErr error
	for _, env := range candidates {
		plaintext, err := c.openEnvelope(field.Purpose, env)
		if err == nil {
			c.metrics.IncrementOpen(string(field.Purpose), "ok")
			return plaintext, env.KeyID, nil
		}

		de, ok := types.AsDecryptionError(err)
		if !ok {
			return nil, "", err
		}
		de = de.WithResource(doc.ID)
		c.metrics.IncrementOpen(string(field.Purpose), string(de.Reason))

		if de.Reason.IsIntegrityIncident() {
			c.raiseAlert(ctx, doc, fieldName, field.Purpose, de)
			return nil, "", de
		}
		if !de.Reason.IsKeyUnavailable() {
			return nil, "", de
		}
		if firstErr == nil {
			firstErr = de
		}
	}
	return nil, "", firstErr
}

func (c *Coordinator) openEnvelope(purpose types.KeyPurpose, env types.SealedEnvelope) ([]byte, error) {
	if env.Purpose != purpose {
		return nil, types.NewDecryptionError(types.ReasonAuthTagMismatch, env.KeyID,
			fmt.Sprintf("envelope purpose %s does not match field purpose %s", env.Purpose, purpose))
	}
	key, err := c.registry.ResolveKey(purpose, env.KeyID)
	if err != nil {
		return nil, err
	}
	return c.codec.Open(env, key)
}

func (c *Coordinator) raiseAlert(ctx context.Context, doc types.Document, fieldName string, purpose types.KeyPurpose, de *types.DecryptionError) {
	c.metrics.IncrementIntegrityAlert(string(de.Reason))
	if c.alerts == nil {
		return
	}
	alert := &types.SecurityAlert{
		Reason:     de.Reason,
		KeyID:      de.KeyID,
		Purpose:    purpose,
		DocumentID: doc.ID,
		FieldName:  fieldName,
		Actor:      audit.ActorFrom(ctx),
		Message:    de.Message,
	}
	if err := c.alerts.RaiseAlert(ctx, alert); err != nil {
		event := c.documentEvent(audit.EventTypeFieldRead, "alert", audit.StatusFailed, doc)
		event.Category = audit.CategorySecurity
		event.KeyID = de.KeyID
		event.Context[string(audit.KeyError)] = fmt.Sprintf("alert not delivered: %v", err)
		audit.Record(ctx, c.auditLogger, event)
	}
}

// WriteProtectedField seals plaintext for a field of doc. The legal check
// runs first; a rejected write never touches the key subsystem.
func (c *Coordinator) WriteProtectedField(ctx context.Context, doc types.Document, fieldName string, purpose types.KeyPurpose, plaintext string) (types.SealedEnvelope, error) {
	if err := c.machine.ValidateCanUpdate(doc.Status, doc.IsLocked, doc.ID); err != nil {
		c.metrics.IncrementDecision(string(types.IntentUpdate), false)
		event := c.documentEvent(audit.EventTypeFieldWrite, "write", audit.StatusDenied, doc)
		event.Context[string(audit.KeyFieldName)] = fieldName
		event.Context[string(audit.KeyError)] = err.Error()
		audit.Record(ctx, c.auditLogger, event)
		return types.SealedEnvelope{}, err
	}
	c.metrics.IncrementDecision(string(types.IntentUpdate), true)

	if !purpose.Valid() {
		return types.SealedEnvelope{}, fmt.Errorf("invalid key purpose: %s", purpose)
	}
	if existing, ok := doc.Field(fieldName); ok && existing.Purpose != purpose {
		return types.SealedEnvelope{}, fmt.Errorf("%w: %s.%s is %s, not %s", ErrPurposeMismatch, doc.ID, fieldName, existing.Purpose, purpose)
	}

	key, err := c.registry.GetActiveKey(purpose)
	if err != nil {
		return types.SealedEnvelope{}, err
	}
	env, err := c.codec.SealText(plaintext, key)
	if err != nil {
		return types.SealedEnvelope{}, fmt.Errorf("failed to seal %s.%s: %w", doc.ID, fieldName, err)
	}
	c.afterSeal(ctx, key)

	event := c.documentEvent(audit.EventTypeFieldWrite, "write", audit.StatusSuccess, doc)
	event.KeyID = key.ID
	event.Context[string(audit.KeyFieldName)] = fieldName
	event.Context[string(audit.KeyPurpose)] = string(purpose)
	audit.Record(ctx, c.auditLogger, event)
	return env, nil
}

// afterSeal counts the seal and rotates the key once its nonce budget is
// spent. A failed rotation does not fail the write that triggered it.
func (c *Coordinator) afterSeal(ctx context.Context, key types.Key) {
	c.metrics.IncrementSeal(string(key.Purpose), string(key.Algorithm))
	if !c.registry.NoteSeal(key.ID) {
		return
	}
	if err := c.registry.RotateExhausted(ctx, key.ID); err != nil {
		event := audit.NewEvent(audit.CategorySecurity, audit.EventTypeKeyRotate, "rotate", audit.StatusFailed)
		event.KeyID = key.ID
		event.Context[string(audit.KeyTrigger)] = "budget"
		event.Context[string(audit.KeyError)] = err.Error()
		audit.Record(ctx, c.auditLogger, event)
	}
}

// TransitionStatus validates moving doc to target. SIGNED -> AMENDED also
// creates an amendment: a new DRAFT linked to doc whose fields are re-sealed
// under the current active keys. doc itself is never modified; persisting
// the new status is left to the caller.
func (c *Coordinator) TransitionStatus(ctx context.Context, doc types.Document, target types.LegalStatus) (TransitionResult, error) {
	operation := fmt.Sprintf("%s->%s", doc.Status, target)

	if err := c.machine.ValidateTransition(doc.Status, target, doc.ID); err != nil {
		c.metrics.IncrementDecision("transition", false)
		event := c.documentEvent(audit.EventTypeTransition, operation, audit.StatusDenied, doc)
		event.Context[string(audit.KeyError)] = err.Error()
		audit.Record(ctx, c.auditLogger, event)
		return TransitionResult{}, err
	}
	c.metrics.IncrementDecision("transition", true)

	result := TransitionResult{From: doc.Status, To: target}
	if doc.Status == types.StatusSigned && target == types.StatusAmended {
		amendment, err := c.createAmendment(ctx, doc)
		if err != nil {
			event := c.documentEvent(audit.EventTypeAmendment, "create", audit.StatusFailed, doc)
			event.Context[string(audit.KeyError)] = err.Error()
			audit.Record(ctx, c.auditLogger, event)
			return TransitionResult{}, err
		}
		result.Amendment = amendment

		event := c.documentEvent(audit.EventTypeAmendment, "create", audit.StatusSuccess, doc)
		event.Metadata = map[string]interface{}{"amendmentId": amendment.ID, "fields": len(amendment.Fields)}
		audit.Record(ctx, c.auditLogger, event)
	}

	audit.Record(ctx, c.auditLogger, c.documentEvent(audit.EventTypeTransition, operation, audit.StatusSuccess, doc))
	return result, nil
}

func (c *Coordinator) createAmendment(ctx context.Context, doc types.Document) (*types.Document, error) {
	amendment := &types.Document{
		ID:       uuid.New().String(),
		Status:   types.StatusDraft,
		AmendsID: doc.ID,
		Fields:   make(map[string]types.ProtectedField, len(doc.Fields)),
	}

	names := make([]string, 0, len(doc.Fields))
	for name := range doc.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	activeKeys := make(map[types.KeyPurpose]types.Key)
	for _, name := range names {
		field := doc.Fields[name]
		plaintext, _, err := c.openField(ctx, doc, name, field)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s for amendment: %w", name, err)
		}

		key, ok := activeKeys[field.Purpose]
		if !ok {
			key, err = c.registry.GetActiveKey(field.Purpose)
			if err != nil {
				wipe(plaintext)
				return nil, err
			}
			activeKeys[field.Purpose] = key
		}

		var env types.SealedEnvelope
		if field.Envelope.ContentType == types.ContentTypeBinary {
			env, err = c.codec.Seal(plaintext, key)
		} else {
			env, err = c.codec.SealText(string(plaintext), key)
		}
		wipe(plaintext)
		if err != nil {
			return nil, fmt.Errorf("failed to seal %s for amendment: %w", name, err)
		}
		c.afterSeal(ctx, key)

		amendment.Fields[name] = types.ProtectedField{Purpose: field.Purpose, Envelope: env}
	}

	if err := c.records.CreateAmendment(ctx, amendment); err != nil {
		return nil, fmt.Errorf("failed to store amendment of %s: %w", doc.ID, err)
	}
	return amendment, nil
}

// RequestDelete checks the legal hold and asks the repository to soft-delete doc
func (c *Coordinator) RequestDelete(ctx context.Context, doc types.Document) error {
	if err := c.machine.ValidateCanDelete(doc.HasLegalHold, doc.ID); err != nil {
		c.metrics.IncrementDecision(string(types.IntentDelete), false)
		event := c.documentEvent(audit.EventTypeDelete, "delete", audit.StatusDenied, doc)
		event.Context[string(audit.KeyError)] = err.Error()
		audit.Record(ctx, c.auditLogger, event)
		return err
	}
	c.metrics.IncrementDecision(string(types.IntentDelete), true)

	if err := c.records.SoftDelete(ctx, doc.ID); err != nil {
		event := c.documentEvent(audit.EventTypeDelete, "delete", audit.StatusFailed, doc)
		event.Context[string(audit.KeyError)] = err.Error()
		audit.Record(ctx, c.auditLogger, event)
		return fmt.Errorf("failed to delete %s: %w", doc.ID, err)
	}

	audit.Record(ctx, c.auditLogger, c.documentEvent(audit.EventTypeDelete, "delete", audit.StatusSuccess, doc))
	return nil
}

func (c *Coordinator) documentEvent(eventType, operation, status string, doc types.Document) *types.AuditEvent {
	event := audit.NewEvent(audit.CategoryCompliance, eventType, operation, status)
	event.DocumentID = doc.ID
	event.Context["legalStatus"] = string(doc.Status)
	return event
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
