package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/audit"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/codec"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/keyring"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/keyring/store"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/kms"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/legal"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/metrics"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

type fakeRepository struct {
	mu         sync.Mutex
	amendments []types.Document
	deleted    []string
	err        error
}

func (r *fakeRepository) CreateAmendment(_ context.Context, amendment *types.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.amendments = append(r.amendments, *amendment)
	return nil
}

func (r *fakeRepository) SoftDelete(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.deleted = append(r.deleted, documentID)
	return nil
}

// spyRegistry counts calls into the key subsystem
type spyRegistry struct {
	*keyring.Registry
	mu    sync.Mutex
	calls int
}

func (s *spyRegistry) touch() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *spyRegistry) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *spyRegistry) GetActiveKey(purpose types.KeyPurpose) (types.Key, error) {
	s.touch()
	return s.Registry.GetActiveKey(purpose)
}

func (s *spyRegistry) ResolveKey(purpose types.KeyPurpose, keyID string) (types.Key, error) {
	s.touch()
	return s.Registry.ResolveKey(purpose, keyID)
}

func (s *spyRegistry) NoteSeal(keyID string) bool {
	s.touch()
	return s.Registry.NoteSeal(keyID)
}

type harness struct {
	ctx      context.Context
	registry *spyRegistry
	codec    *codec.Codec
	repo     *fakeRepository
	audit    *audit.MemoryAuditLogger
	alerts   *audit.MemoryAlertSink
	metrics  *metrics.Metrics
	coord    *Coordinator
}

func newHarness(t *testing.T, cfg types.KeyringConfig) *harness {
	t.Helper()

	material := make([]byte, 32)
	_, err := rand.Read(material)
	require.NoError(t, err)
	provider, err := kms.NewProvider(kms.Config{
		Type:          types.ProviderAead,
		AeadKeyBase64: base64.StdEncoding.EncodeToString(material),
		AeadKeyID:     "coordinator-test",
	})
	require.NoError(t, err)

	cfg.CreateMissing = true
	h := &harness{
		ctx:     audit.WithActor(context.Background(), "dr.osei"),
		codec:   codec.New(),
		repo:    &fakeRepository{},
		audit:   audit.NewMemoryAuditLogger(),
		alerts:  &audit.MemoryAlertSink{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}

	reg, err := keyring.NewRegistry(provider, store.NewMemoryStore(), h.audit, cfg, keyring.WithMetrics(h.metrics))
	require.NoError(t, err)
	require.NoError(t, reg.Initialize(context.Background()))
	h.registry = &spyRegistry{Registry: reg}

	h.coord, err = New(legal.New(), h.registry, h.codec, h.repo,
		WithAuditLogger(h.audit),
		WithAlertSink(h.alerts),
		WithMetrics(h.metrics),
	)
	require.NoError(t, err)
	return h
}

// sealedDocument writes fields while the document is a draft and then moves it to status
func (h *harness) sealedDocument(t *testing.T, status types.LegalStatus, fields map[string]types.KeyPurpose, text string) types.Document {
	t.Helper()
	doc := types.Document{ID: "session-42", Status: types.StatusDraft, Fields: map[string]types.ProtectedField{}}
	for name, purpose := range fields {
		env, err := h.coord.WriteProtectedField(h.ctx, doc, name, purpose, text+" ("+name+")")
		require.NoError(t, err)
		doc.Fields[name] = types.ProtectedField{Purpose: purpose, Envelope: env}
	}
	doc.Status = status
	return doc
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(legal.New(), nil, codec.New(), &fakeRepository{})
	assert.ErrorContains(t, err, "key registry")
}

func TestWriteAndReadProtectedField(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	doc := types.Document{ID: "session-1", Status: types.StatusDraft}

	env, err := h.coord.WriteProtectedField(h.ctx, doc, "narrative", types.PurposeClinicalNotes, "Patient reports improved sleep.")
	require.NoError(t, err)
	assert.Equal(t, types.PurposeClinicalNotes, env.Purpose)
	assert.Equal(t, types.ContentTypeText, env.ContentType)

	active, err := h.registry.GetActiveKey(types.PurposeClinicalNotes)
	require.NoError(t, err)
	assert.Equal(t, active.ID, env.KeyID)

	doc.Fields = map[string]types.ProtectedField{"narrative": {Purpose: types.PurposeClinicalNotes, Envelope: env}}
	text, err := h.coord.ReadProtectedField(h.ctx, doc, "narrative")
	require.NoError(t, err)
	assert.Equal(t, "Patient reports improved sleep.", text)

	writes, err := h.audit.GetEvents(h.ctx, map[string]interface{}{"eventType": audit.EventTypeFieldWrite, "status": audit.StatusSuccess})
	require.NoError(t, err)
	require.Len(t, writes, 1)
	assert.Equal(t, "dr.osei", writes[0].Context[string(audit.KeyActor)])
	assert.Equal(t, "session-1", writes[0].DocumentID)

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Seals.WithLabelValues("CLINICAL_NOTES", "AES-256-GCM")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Opens.WithLabelValues("CLINICAL_NOTES", "ok")))
}

func TestWriteProtectedField_RejectedWithoutCryptoWork(t *testing.T) {
	tests := []struct {
		name      string
		doc       types.Document
		violation legal.Violation
	}{
		{name: "signed", doc: types.Document{ID: "d1", Status: types.StatusSigned}, violation: legal.ViolationRecordImmutable},
		{name: "amended", doc: types.Document{ID: "d2", Status: types.StatusAmended}, violation: legal.ViolationRecordImmutable},
		{name: "voided", doc: types.Document{ID: "d3", Status: types.StatusVoided}, violation: legal.ViolationRecordImmutable},
		{name: "locked draft", doc: types.Document{ID: "d4", Status: types.StatusDraft, IsLocked: true}, violation: legal.ViolationRecordLocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, types.KeyringConfig{})

			env, err := h.coord.WriteProtectedField(h.ctx, tt.doc, "narrative", types.PurposeClinicalNotes, "edit")
			require.Error(t, err)
			assert.Equal(t, tt.violation, legal.ViolationOf(err))
			assert.True(t, env.IsZero())
			assert.Zero(t, h.registry.Calls(), "no key was fetched for a rejected write")

			denied, err := h.audit.GetEvents(h.ctx, map[string]interface{}{"status": audit.StatusDenied})
			require.NoError(t, err)
			assert.Len(t, denied, 1)
		})
	}
}

func TestWriteProtectedField_PurposeChecks(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	doc := h.sealedDocument(t, types.StatusDraft, map[string]types.KeyPurpose{"narrative": types.PurposeClinicalNotes}, "note")

	_, err := h.coord.WriteProtectedField(h.ctx, doc, "narrative", types.PurposeShadowNotes, "moved")
	assert.ErrorIs(t, err, ErrPurposeMismatch)

	_, err = h.coord.WriteProtectedField(h.ctx, doc, "other", types.KeyPurpose("BILLING"), "x")
	assert.ErrorContains(t, err, "invalid key purpose")
}

func TestWriteProtectedField_InvalidText(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	doc := types.Document{ID: "d", Status: types.StatusDraft}
	_, err := h.coord.WriteProtectedField(h.ctx, doc, "narrative", types.PurposeClinicalNotes, "bad \xff")
	assert.ErrorIs(t, err, codec.ErrInvalidPlaintext)
}

func TestWriteProtectedField_NonceBudgetRotatesKey(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{MaxSealsPerKey: 2})
	doc := types.Document{ID: "d", Status: types.StatusDraft}

	first, err := h.coord.WriteProtectedField(h.ctx, doc, "a", types.PurposeClinicalNotes, "one")
	require.NoError(t, err)
	second, err := h.coord.WriteProtectedField(h.ctx, doc, "b", types.PurposeClinicalNotes, "two")
	require.NoError(t, err)
	assert.Equal(t, first.KeyID, second.KeyID)

	third, err := h.coord.WriteProtectedField(h.ctx, doc, "c", types.PurposeClinicalNotes, "three")
	require.NoError(t, err)
	assert.NotEqual(t, first.KeyID, third.KeyID, "the exhausted key was rotated out")

	doc.Fields = map[string]types.ProtectedField{"a": {Purpose: types.PurposeClinicalNotes, Envelope: first}}
	text, err := h.coord.ReadProtectedField(h.ctx, doc, "a")
	require.NoError(t, err)
	assert.Equal(t, "one", text)
}

func TestReadProtectedField_UngatedByStatus(t *testing.T) {
	for _, status := range types.AllLegalStatuses() {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t, types.KeyringConfig{})
			doc := h.sealedDocument(t, status, map[string]types.KeyPurpose{"narrative": types.PurposeClinicalNotes}, "text")
			doc.IsLocked = true

			text, err := h.coord.ReadProtectedField(h.ctx, doc, "narrative")
			require.NoError(t, err)
			assert.Equal(t, "text (narrative)", text)
		})
	}
}

func TestReadProtectedField_MissingField(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	_, err := h.coord.ReadProtectedField(h.ctx, types.Document{ID: "d"}, "narrative")
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestReadProtectedField_IntegrityIncidentRaisesAlert(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	doc := h.sealedDocument(t, types.StatusSigned, map[string]types.KeyPurpose{"narrative": types.PurposeClinicalNotes}, "text")

	field := doc.Fields["narrative"]
	tampered := field.Envelope
	tampered.Ciphertext = append([]byte(nil), tampered.Ciphertext...)
	tampered.Ciphertext[0] ^= 0x01
	field.Envelope = tampered
	doc.Fields["narrative"] = field

	text, err := h.coord.ReadProtectedField(h.ctx, doc, "narrative")
	require.Error(t, err)
	assert.Empty(t, text)
	assert.ErrorIs(t, err, types.ErrAuthTagMismatch)

	de, ok := types.AsDecryptionError(err)
	require.True(t, ok)
	assert.Equal(t, "session-42", de.ResourceID)

	alerts := h.alerts.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, types.ReasonAuthTagMismatch, alerts[0].Reason)
	assert.Equal(t, "session-42", alerts[0].DocumentID)
	assert.Equal(t, "narrative", alerts[0].FieldName)
	assert.Equal(t, "dr.osei", alerts[0].Actor)
	assert.Equal(t, tampered.KeyID, alerts[0].KeyID)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.IntegrityAlerts.WithLabelValues("AUTH_TAG_MISMATCH")))
}

func TestReadProtectedField_IntegrityIncidentIsNotRetried(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	doc := h.sealedDocument(t, types.StatusDraft, map[string]types.KeyPurpose{"narrative": types.PurposeClinicalNotes}, "text")

	field := doc.Fields["narrative"]
	good := field.Envelope
	bad := good
	bad.Tag = append([]byte(nil), good.Tag...)
	bad.Tag[3] ^= 0x80
	field.Envelope = bad
	field.Fallbacks = []types.SealedEnvelope{good}
	doc.Fields["narrative"] = field

	_, err := h.coord.ReadProtectedField(h.ctx, doc, "narrative")
	assert.ErrorIs(t, err, types.ErrAuthTagMismatch, "fallbacks are only for unavailable keys")
}

func TestReadProtectedField_FallsBackOnRevokedKey(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{AutoReplaceRevoked: true})
	draft := types.Document{ID: "session-7", Status: types.StatusDraft}

	older, err := h.coord.WriteProtectedField(h.ctx, draft, "narrative", types.PurposeClinicalNotes, "same content")
	require.NoError(t, err)
	_, err = h.registry.Rotate(context.Background(), types.PurposeClinicalNotes)
	require.NoError(t, err)
	newer, err := h.coord.WriteProtectedField(h.ctx, draft, "narrative", types.PurposeClinicalNotes, "same content")
	require.NoError(t, err)
	require.NotEqual(t, older.KeyID, newer.KeyID)

	doc := types.Document{ID: "session-7", Status: types.StatusSigned, Fields: map[string]types.ProtectedField{
		"narrative": {Purpose: types.PurposeClinicalNotes, Envelope: newer, Fallbacks: []types.SealedEnvelope{older}},
	}}

	require.NoError(t, h.registry.Revoke(context.Background(), newer.KeyID))
	text, err := h.coord.ReadProtectedField(h.ctx, doc, "narrative")
	require.NoError(t, err)
	assert.Equal(t, "same content", text)

	require.NoError(t, h.registry.Revoke(context.Background(), older.KeyID))
	_, err = h.coord.ReadProtectedField(h.ctx, doc, "narrative")
	assert.ErrorIs(t, err, types.ErrKeyRevoked)
	de, ok := types.AsDecryptionError(err)
	require.True(t, ok)
	assert.Equal(t, newer.KeyID, de.KeyID, "the primary envelope's failure is reported")
	assert.Empty(t, h.alerts.Alerts(), "unavailable keys are not integrity incidents")
}

func TestReadProtectedField_UnknownOrForeignKey(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	draft := types.Document{ID: "d", Status: types.StatusDraft}
	shadow, err := h.coord.WriteProtectedField(h.ctx, draft, "private", types.PurposeShadowNotes, "private note")
	require.NoError(t, err)

	doc := types.Document{ID: "d", Fields: map[string]types.ProtectedField{
		"narrative": {Purpose: types.PurposeClinicalNotes, Envelope: shadow},
	}}
	_, err = h.coord.ReadProtectedField(h.ctx, doc, "narrative")
	assert.ErrorIs(t, err, types.ErrAuthTagMismatch, "a shadow envelope never opens in a clinical field")
	assert.Len(t, h.alerts.Alerts(), 1)

	shadow.KeyID = "deleted-key"
	doc.Fields["narrative"] = types.ProtectedField{Purpose: types.PurposeShadowNotes, Envelope: shadow}
	_, err = h.coord.ReadProtectedField(h.ctx, doc, "narrative")
	assert.ErrorIs(t, err, types.ErrKeyNotFound)
}

func TestReadProtectedField_RelabelledEnvelope(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	doc := h.sealedDocument(t, types.StatusSigned, map[string]types.KeyPurpose{"narrative": types.PurposeClinicalNotes}, "text")
	original := doc.Fields["narrative"]

	tests := []struct {
		name    string
		purpose types.KeyPurpose
		keyID   string
		want    error
	}{
		{name: "unknown purpose label", purpose: "GARBAGE", keyID: original.Envelope.KeyID, want: types.ErrAuthTagMismatch},
		{name: "shadow purpose label", purpose: types.PurposeShadowNotes, keyID: original.Envelope.KeyID, want: types.ErrAuthTagMismatch},
		{name: "other key id", purpose: types.PurposeClinicalNotes, keyID: "some-other-id", want: types.ErrKeyNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := original.Envelope
			env.Purpose = tt.purpose
			env.KeyID = tt.keyID
			relabelled := doc
			relabelled.Fields = map[string]types.ProtectedField{
				"narrative": {Purpose: types.PurposeClinicalNotes, Envelope: env},
			}

			text, err := h.coord.ReadProtectedField(h.ctx, relabelled, "narrative")
			assert.Empty(t, text)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	text, err := h.coord.ReadProtectedField(h.ctx, doc, "narrative")
	require.NoError(t, err)
	assert.Equal(t, "text (narrative)", text)
}

func TestTransitionStatus(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	doc := types.Document{ID: "d", Status: types.StatusDraft}

	result, err := h.coord.TransitionStatus(h.ctx, doc, types.StatusPendingReview)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDraft, result.From)
	assert.Equal(t, types.StatusPendingReview, result.To)
	assert.Nil(t, result.Amendment)

	_, err = h.coord.TransitionStatus(h.ctx, doc, types.StatusSigned)
	assert.ErrorIs(t, err, legal.ErrIllegalTransition)
	var te *legal.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.StatusDraft, te.From)
	assert.Equal(t, types.StatusSigned, te.To)

	_, err = h.coord.TransitionStatus(h.ctx, types.Document{ID: "v", Status: types.StatusVoided}, types.StatusDraft)
	assert.ErrorIs(t, err, legal.ErrIllegalTransition)

	assert.Empty(t, h.repo.amendments)
}

func TestTransitionStatus_AmendmentOfSignedRecord(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	doc := h.sealedDocument(t, types.StatusSigned, map[string]types.KeyPurpose{
		"narrative": types.PurposeClinicalNotes,
		"private":   types.PurposeShadowNotes,
	}, "original")
	before := doc.Fields["narrative"].Envelope

	_, err := h.registry.Rotate(context.Background(), types.PurposeClinicalNotes)
	require.NoError(t, err)
	active, err := h.registry.GetActiveKey(types.PurposeClinicalNotes)
	require.NoError(t, err)

	result, err := h.coord.TransitionStatus(h.ctx, doc, types.StatusAmended)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAmended, result.To)

	amendment := result.Amendment
	require.NotNil(t, amendment)
	assert.NotEqual(t, doc.ID, amendment.ID)
	assert.Equal(t, doc.ID, amendment.AmendsID)
	assert.Equal(t, types.StatusDraft, amendment.Status)
	require.Len(t, amendment.Fields, 2)
	assert.Equal(t, active.ID, amendment.Fields["narrative"].Envelope.KeyID, "amendments are sealed under the current active key")
	assert.Equal(t, types.PurposeShadowNotes, amendment.Fields["private"].Purpose)

	for name := range doc.Fields {
		text, err := h.coord.ReadProtectedField(h.ctx, *amendment, name)
		require.NoError(t, err)
		assert.Equal(t, "original ("+name+")", text)
	}

	// the original stays signed and untouched
	assert.Equal(t, types.StatusSigned, doc.Status)
	assert.Equal(t, before, doc.Fields["narrative"].Envelope)
	_, err = h.coord.WriteProtectedField(h.ctx, *amendment, "narrative", types.PurposeClinicalNotes, "corrected")
	assert.NoError(t, err, "the amendment is a mutable draft")

	require.Len(t, h.repo.amendments, 1)
	assert.Equal(t, amendment.ID, h.repo.amendments[0].ID)
	assert.True(t, legal.New().CanVoid(result.To))
}

func TestTransitionStatus_AmendmentFailures(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	doc := h.sealedDocument(t, types.StatusSigned, map[string]types.KeyPurpose{"narrative": types.PurposeClinicalNotes}, "x")

	h.repo.err = errors.New("write conflict")
	_, err := h.coord.TransitionStatus(h.ctx, doc, types.StatusAmended)
	assert.ErrorContains(t, err, "write conflict")

	h.repo.err = nil
	field := doc.Fields["narrative"]
	field.Envelope.Tag = make([]byte, len(field.Envelope.Tag))
	doc.Fields["narrative"] = field
	_, err = h.coord.TransitionStatus(h.ctx, doc, types.StatusAmended)
	assert.ErrorIs(t, err, types.ErrAuthTagMismatch)
	assert.Empty(t, h.repo.amendments)
	assert.Len(t, h.alerts.Alerts(), 1)
}

func TestRequestDelete(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})

	err := h.coord.RequestDelete(h.ctx, types.Document{ID: "held", Status: types.StatusDraft, HasLegalHold: true})
	assert.ErrorIs(t, err, legal.ErrLegalHoldActive)

	require.NoError(t, h.coord.RequestDelete(h.ctx, types.Document{ID: "signed", Status: types.StatusSigned}))
	assert.Equal(t, []string{"signed"}, h.repo.deleted)

	h.repo.err = errors.New("timeout")
	err = h.coord.RequestDelete(h.ctx, types.Document{ID: "draft", Status: types.StatusDraft})
	assert.ErrorContains(t, err, "timeout")

	deletes, err := h.audit.GetEvents(h.ctx, map[string]interface{}{"eventType": audit.EventTypeDelete})
	require.NoError(t, err)
	assert.Len(t, deletes, 3)
}

func TestAuthorize(t *testing.T) {
	h := newHarness(t, types.KeyringConfig{})
	signed := types.Document{ID: "d", Status: types.StatusSigned}

	assert.True(t, h.coord.Authorize(h.ctx, types.IntentRead, signed).Allowed)
	assert.True(t, h.coord.Authorize(h.ctx, types.IntentAmend, signed).Allowed)

	update := h.coord.Authorize(h.ctx, types.IntentUpdate, signed)
	assert.False(t, update.Allowed)
	assert.ErrorIs(t, update.Err, legal.ErrRecordImmutable)

	denied, err := h.audit.GetEvents(h.ctx, map[string]interface{}{"eventType": audit.EventTypeDecision, "status": audit.StatusDenied})
	require.NoError(t, err)
	require.Len(t, denied, 1)
	assert.Equal(t, "update", denied[0].Operation)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Decisions.WithLabelValues("update", "denied")))
}
