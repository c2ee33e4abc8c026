package legal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

func TestCanTransition_MatchesTable(t *testing.T) {
	m := New()
	allowed := map[[2]types.LegalStatus]bool{
		{types.StatusDraft, types.StatusPendingReview}:  true,
		{types.StatusPendingReview, types.StatusSigned}: true,
		{types.StatusPendingReview, types.StatusDraft}:  true,
		{types.StatusSigned, types.StatusAmended}:       true,
		{types.StatusSigned, types.StatusVoided}:        true,
		{types.StatusAmended, types.StatusVoided}:       true,
	}

	for _, from := range types.AllLegalStatuses() {
		for _, to := range types.AllLegalStatuses() {
			pair := [2]types.LegalStatus{from, to}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				assert.Equal(t, allowed[pair], m.CanTransition(from, to))

				err := m.ValidateTransition(from, to, "doc-1")
				if allowed[pair] {
					assert.NoError(t, err)
					return
				}
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrIllegalTransition)

				var te *TransitionError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, from, te.From)
				assert.Equal(t, to, te.To)
				assert.Equal(t, "doc-1", te.DocumentID)
			})
		}
	}
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	m := New()
	assert.False(t, m.CanTransition("ARCHIVED", types.StatusDraft))
	assert.False(t, m.CanTransition(types.StatusDraft, "ARCHIVED"))
	assert.Empty(t, m.AvailableTransitions("ARCHIVED"))
	assert.False(t, m.IsFinal("ARCHIVED"))
}

func TestAvailableTransitions(t *testing.T) {
	m := New()
	assert.Equal(t, []types.LegalStatus{types.StatusPendingReview}, m.AvailableTransitions(types.StatusDraft))
	assert.Equal(t, []types.LegalStatus{types.StatusSigned, types.StatusDraft}, m.AvailableTransitions(types.StatusPendingReview))
	assert.Equal(t, []types.LegalStatus{types.StatusAmended, types.StatusVoided}, m.AvailableTransitions(types.StatusSigned))
	assert.Equal(t, []types.LegalStatus{types.StatusVoided}, m.AvailableTransitions(types.StatusAmended))

	for _, s := range types.AllLegalStatuses() {
		if s == types.StatusVoided {
			assert.Empty(t, m.AvailableTransitions(s))
			continue
		}
		assert.NotEmpty(t, m.AvailableTransitions(s), s)
	}

	row := m.AvailableTransitions(types.StatusSigned)
	row[0] = types.StatusDraft
	assert.Equal(t, types.StatusAmended, m.AvailableTransitions(types.StatusSigned)[0])
}

func TestImmutableAndFinal(t *testing.T) {
	m := New()
	assert.True(t, m.IsImmutable(types.StatusSigned))
	assert.True(t, m.IsImmutable(types.StatusAmended))
	assert.False(t, m.IsImmutable(types.StatusDraft))
	assert.False(t, m.IsImmutable(types.StatusPendingReview))
	assert.False(t, m.IsImmutable(types.StatusVoided))

	assert.Equal(t, []types.LegalStatus{types.StatusVoided}, m.FinalStates())
	assert.True(t, m.IsFinal(types.StatusVoided))
	assert.False(t, m.IsFinal(types.StatusSigned))
}

func TestValidateCanUpdate(t *testing.T) {
	m := New()
	tests := []struct {
		name     string
		status   types.LegalStatus
		locked   bool
		expected error
	}{
		{name: "draft unlocked", status: types.StatusDraft},
		{name: "pending review unlocked", status: types.StatusPendingReview},
		{name: "draft locked", status: types.StatusDraft, locked: true, expected: ErrRecordLocked},
		{name: "pending review locked", status: types.StatusPendingReview, locked: true, expected: ErrRecordLocked},
		{name: "signed", status: types.StatusSigned, expected: ErrRecordImmutable},
		{name: "amended", status: types.StatusAmended, expected: ErrRecordImmutable},
		{name: "signed and locked reports immutability", status: types.StatusSigned, locked: true, expected: ErrRecordImmutable},
		{name: "voided", status: types.StatusVoided, expected: ErrRecordImmutable},
		{name: "unknown", status: "ARCHIVED", expected: ErrRecordImmutable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateCanUpdate(tt.status, tt.locked, "doc-7")
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expected)
			var pe *PolicyError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, "doc-7", pe.DocumentID)
		})
	}
}

func TestValidateCanDelete_IgnoresStatus(t *testing.T) {
	m := New()
	for _, s := range types.AllLegalStatuses() {
		assert.NoError(t, m.ValidateCanDelete(false, string(s)))

		err := m.ValidateCanDelete(true, string(s))
		assert.ErrorIs(t, err, ErrLegalHoldActive)
		assert.Equal(t, ViolationLegalHoldActive, ViolationOf(err))
	}
}

func TestAmendAndVoid(t *testing.T) {
	m := New()
	for _, s := range types.AllLegalStatuses() {
		assert.Equal(t, s == types.StatusSigned, m.CanAmend(s), s)
		assert.Equal(t, s == types.StatusSigned || s == types.StatusAmended, m.CanVoid(s), s)
	}
}

func TestStateDescription(t *testing.T) {
	m := New()
	seen := map[string]bool{}
	for _, s := range types.AllLegalStatuses() {
		d := m.StateDescription(s)
		assert.NotEmpty(t, d)
		assert.False(t, seen[d], "descriptions must differ")
		seen[d] = true
		assert.Equal(t, d, m.StateDescription(s))
	}
	assert.Contains(t, m.StateDescription("ARCHIVED"), "Unknown")
}

func TestAuthorize(t *testing.T) {
	m := New()
	tests := []struct {
		name      string
		intent    types.Intent
		doc       types.Document
		allowed   bool
		violation Violation
	}{
		{name: "read signed", intent: types.IntentRead, doc: types.Document{ID: "d", Status: types.StatusSigned, IsLocked: true}, allowed: true},
		{name: "update draft", intent: types.IntentUpdate, doc: types.Document{ID: "d", Status: types.StatusDraft}, allowed: true},
		{name: "update signed", intent: types.IntentUpdate, doc: types.Document{ID: "d", Status: types.StatusSigned}, violation: ViolationRecordImmutable},
		{name: "update locked draft", intent: types.IntentUpdate, doc: types.Document{ID: "d", Status: types.StatusDraft, IsLocked: true}, violation: ViolationRecordLocked},
		{name: "delete signed", intent: types.IntentDelete, doc: types.Document{ID: "d", Status: types.StatusSigned}, allowed: true},
		{name: "delete held", intent: types.IntentDelete, doc: types.Document{ID: "d", Status: types.StatusDraft, HasLegalHold: true}, violation: ViolationLegalHoldActive},
		{name: "amend signed", intent: types.IntentAmend, doc: types.Document{ID: "d", Status: types.StatusSigned}, allowed: true},
		{name: "amend draft", intent: types.IntentAmend, doc: types.Document{ID: "d", Status: types.StatusDraft}, violation: ViolationIllegalTransition},
		{name: "void amended", intent: types.IntentVoid, doc: types.Document{ID: "d", Status: types.StatusAmended}, allowed: true},
		{name: "void draft", intent: types.IntentVoid, doc: types.Document{ID: "d", Status: types.StatusDraft}, violation: ViolationIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := m.Authorize(tt.intent, tt.doc)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.intent, d.Intent)
			if tt.allowed {
				assert.NoError(t, d.Err)
				assert.Equal(t, "allowed", d.Reason())
				return
			}
			assert.Equal(t, tt.violation, ViolationOf(d.Err))
			assert.NotEqual(t, "allowed", d.Reason())
		})
	}

	d := m.Authorize("archive", types.Document{ID: "d", Status: types.StatusDraft})
	assert.False(t, d.Allowed)
	assert.Error(t, d.Err)
}
