// Package legal decides which lifecycle changes a clinical document allows.
// It has no knowledge of encryption.
package legal

import (
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// transitions is the complete transition table; rows keep the order returned
// by AvailableTransitions.
var transitions = map[types.LegalStatus][]types.LegalStatus{
	types.StatusDraft:         {types.StatusPendingReview},
	types.StatusPendingReview: {types.StatusSigned, types.StatusDraft},
	types.StatusSigned:        {types.StatusAmended, types.StatusVoided},
	types.StatusAmended:       {types.StatusVoided},
	types.StatusVoided:        {},
}

var descriptions = map[types.LegalStatus]string{
	types.StatusDraft:         "Draft: the record is being written and may be edited freely.",
	types.StatusPendingReview: "Pending review: the record awaits signature and may still be edited or returned to draft.",
	types.StatusSigned:        "Signed: the record is legally final; its content can only be corrected by amendment or withdrawn by voiding.",
	types.StatusAmended:       "Amended: the record was corrected by a linked amendment; its original content is preserved unchanged.",
	types.StatusVoided:        "Voided: the record was withdrawn and has no further legal effect; no further changes are possible.",
}

// StateMachine holds the legality rules for document lifecycle changes.
// The zero value is ready to use and safe for concurrent use.
type StateMachine struct{}

// New returns a StateMachine
func New() *StateMachine {
	return &StateMachine{}
}

// ImmutableStates returns the statuses whose fields cannot be edited in place
func (m *StateMachine) ImmutableStates() []types.LegalStatus {
	return []types.LegalStatus{types.StatusSigned, types.StatusAmended}
}

// FinalStates returns the statuses with no outgoing transitions
func (m *StateMachine) FinalStates() []types.LegalStatus {
	var final []types.LegalStatus
	for _, s := range types.AllLegalStatuses() {
		if len(transitions[s]) == 0 {
			final = append(final, s)
		}
	}
	return final
}

// CanTransition reports whether target appears in the table row for current
func (m *StateMachine) CanTransition(current, target types.LegalStatus) bool {
	for _, s := range transitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *TransitionError when the change is not allowed
func (m *StateMachine) ValidateTransition(current, target types.LegalStatus, documentID string) error {
	if !m.CanTransition(current, target) {
		return &TransitionError{From: current, To: target, DocumentID: documentID}
	}
	return nil
}

// IsImmutable reports whether the status forbids direct field edits
func (m *StateMachine) IsImmutable(status types.LegalStatus) bool {
	return status == types.StatusSigned || status == types.StatusAmended
}

// IsFinal reports whether the status is a sink
func (m *StateMachine) IsFinal(status types.LegalStatus) bool {
	return status.Valid() && len(transitions[status]) == 0
}

// ValidateCanUpdate checks that fields of a document may be edited in place.
// Only DRAFT and PENDING_REVIEW records are editable; a lock blocks either.
func (m *StateMachine) ValidateCanUpdate(status types.LegalStatus, isLocked bool, documentID string) error {
	if m.IsImmutable(status) || m.IsFinal(status) || !status.Valid() {
		return &PolicyError{Violation: ViolationRecordImmutable, Status: status, DocumentID: documentID}
	}
	if isLocked {
		return &PolicyError{Violation: ViolationRecordLocked, Status: status, DocumentID: documentID}
	}
	return nil
}

// ValidateCanDelete checks that a document may be soft-deleted.
// Only a legal hold vetoes deletion; the status never does.
func (m *StateMachine) ValidateCanDelete(hasLegalHold bool, documentID string) error {
	if hasLegalHold {
		return &PolicyError{Violation: ViolationLegalHoldActive, DocumentID: documentID}
	}
	return nil
}

// AvailableTransitions returns the statuses reachable from status
func (m *StateMachine) AvailableTransitions(status types.LegalStatus) []types.LegalStatus {
	row := transitions[status]
	out := make([]types.LegalStatus, len(row))
	copy(out, row)
	return out
}

// CanAmend reports whether an amendment may be created from status
func (m *StateMachine) CanAmend(status types.LegalStatus) bool {
	return status == types.StatusSigned
}

// CanVoid reports whether a record in status may be voided
func (m *StateMachine) CanVoid(status types.LegalStatus) bool {
	return status == types.StatusSigned || status == types.StatusAmended
}

// StateDescription returns a stable human-readable meaning of status
func (m *StateMachine) StateDescription(status types.LegalStatus) string {
	if d, ok := descriptions[status]; ok {
		return d
	}
	return "Unknown: the status is not recognised and no action is permitted."
}
