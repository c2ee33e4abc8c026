package legal

import (
	"fmt"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// Decision is the answer to a collaborator intent
type Decision struct {
	Allowed bool
	Intent  types.Intent
	// Err is the policy rejection when Allowed is false
	Err error
}

// Reason returns a human-readable explanation of the decision
func (d Decision) Reason() string {
	if d.Allowed {
		return "allowed"
	}
	if d.Err != nil {
		return d.Err.Error()
	}
	return "denied"
}

// Authorize maps an intent on a document to an allow or deny decision
func (m *StateMachine) Authorize(intent types.Intent, doc types.Document) Decision {
	d := Decision{Intent: intent}
	switch intent {
	case types.IntentRead:
		d.Allowed = true
		return d
	case types.IntentUpdate:
		d.Err = m.ValidateCanUpdate(doc.Status, doc.IsLocked, doc.ID)
	case types.IntentDelete:
		d.Err = m.ValidateCanDelete(doc.HasLegalHold, doc.ID)
	case types.IntentAmend:
		if !m.CanAmend(doc.Status) {
			d.Err = &TransitionError{From: doc.Status, To: types.StatusAmended, DocumentID: doc.ID}
		}
	case types.IntentVoid:
		if !m.CanVoid(doc.Status) {
			d.Err = &TransitionError{From: doc.Status, To: types.StatusVoided, DocumentID: doc.ID}
		}
	default:
		d.Err = fmt.Errorf("document %s: unknown intent %q", doc.ID, intent)
	}
	d.Allowed = d.Err == nil
	return d
}
