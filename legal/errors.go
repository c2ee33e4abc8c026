package legal

import (
	"errors"
	"fmt"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// Policy rejections. Deterministic given the document state, never retried.
var (
	ErrIllegalTransition = errors.New("illegal legal status transition")
	ErrRecordImmutable   = errors.New("record is immutable")
	ErrRecordLocked      = errors.New("record is locked")
	ErrLegalHoldActive   = errors.New("record is under legal hold")
)

// Violation names the policy a request broke
type Violation string

const (
	ViolationIllegalTransition Violation = "ILLEGAL_TRANSITION"
	ViolationRecordImmutable   Violation = "RECORD_IMMUTABLE"
	ViolationRecordLocked      Violation = "RECORD_LOCKED"
	ViolationLegalHoldActive   Violation = "LEGAL_HOLD_ACTIVE"
)

// TransitionError reports a status change absent from the transition table
type TransitionError struct {
	From       types.LegalStatus
	To         types.LegalStatus
	DocumentID string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("document %s: cannot transition from %s to %s", e.DocumentID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// PolicyError reports an update or delete refused by the document's state
type PolicyError struct {
	Violation  Violation
	Status     types.LegalStatus
	DocumentID string
}

func (e *PolicyError) Error() string {
	switch e.Violation {
	case ViolationRecordImmutable:
		return fmt.Sprintf("document %s: %s records cannot be edited", e.DocumentID, e.Status)
	case ViolationRecordLocked:
		return fmt.Sprintf("document %s: record is administratively locked", e.DocumentID)
	case ViolationLegalHoldActive:
		return fmt.Sprintf("document %s: record is under legal hold and cannot be deleted", e.DocumentID)
	}
	return fmt.Sprintf("document %s: policy violation %s", e.DocumentID, e.Violation)
}

func (e *PolicyError) Unwrap() error {
	switch e.Violation {
	case ViolationRecordImmutable:
		return ErrRecordImmutable
	case ViolationRecordLocked:
		return ErrRecordLocked
	case ViolationLegalHoldActive:
		return ErrLegalHoldActive
	}
	return nil
}

// ViolationOf returns the violation carried by err, empty if err is not a policy rejection
func ViolationOf(err error) Violation {
	var te *TransitionError
	if errors.As(err, &te) {
		return ViolationIllegalTransition
	}
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Violation
	}
	return ""
}
