// Package audit records lifecycle decisions, key management and integrity incidents
package audit

import "context"

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// Context keys carried through lifecycle operations
const (
	KeyActor      ContextKey = "actor"      // user or service acting on the record
	KeyDocumentID ContextKey = "documentId" // clinical document identifier
	KeyFieldName  ContextKey = "fieldName"  // protected field being read or written
	KeyKeyID      ContextKey = "keyId"      // key identifier
	KeyPurpose    ContextKey = "purpose"    // key purpose
	KeyIntent     ContextKey = "intent"     // requested intent
	KeyTrigger    ContextKey = "trigger"    // what started a rotation
	KeyError      ContextKey = "error"      // error message if operation failed
)

// WithActor adds the acting identity to the context
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, KeyActor, actor)
}

// ActorFrom returns the acting identity, empty if none was set
func ActorFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actor, _ := ctx.Value(KeyActor).(string)
	return actor
}
