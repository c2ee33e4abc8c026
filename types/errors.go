package types

import (
	"errors"
	"fmt"
)

// DecryptionFailureReason classifies why protected data could not be opened
type DecryptionFailureReason string

const (
	ReasonKeyNotFound       DecryptionFailureReason = "KEY_NOT_FOUND"
	ReasonKeyExpired        DecryptionFailureReason = "KEY_EXPIRED"
	ReasonKeyRevoked        DecryptionFailureReason = "KEY_REVOKED"
	ReasonInvalidCiphertext DecryptionFailureReason = "INVALID_CIPHERTEXT"
	ReasonAuthTagMismatch   DecryptionFailureReason = "AUTH_TAG_MISMATCH"
	ReasonCorruptedData     DecryptionFailureReason = "CORRUPTED_DATA"
)

// Cryptographic errors
var (
	ErrNoActiveKey       = errors.New("no active key for purpose")
	ErrKeyNotFound       = errors.New("key not found")
	ErrKeyExpired        = errors.New("key expired")
	ErrKeyRevoked        = errors.New("key revoked")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrAuthTagMismatch   = errors.New("authentication tag mismatch")
	ErrCorruptedData     = errors.New("corrupted data")
)

// Sentinel returns the sentinel error matching the reason
func (r DecryptionFailureReason) Sentinel() error {
	switch r {
	case ReasonKeyNotFound:
		return ErrKeyNotFound
	case ReasonKeyExpired:
		return ErrKeyExpired
	case ReasonKeyRevoked:
		return ErrKeyRevoked
	case ReasonInvalidCiphertext:
		return ErrInvalidCiphertext
	case ReasonAuthTagMismatch:
		return ErrAuthTagMismatch
	case ReasonCorruptedData:
		return ErrCorruptedData
	}
	return nil
}

// IsIntegrityIncident reports whether the failure may indicate tampering.
// These are escalated and never retried.
func (r DecryptionFailureReason) IsIntegrityIncident() bool {
	return r == ReasonAuthTagMismatch || r == ReasonCorruptedData
}

// IsKeyUnavailable reports whether another retained key might still open the data
func (r DecryptionFailureReason) IsKeyUnavailable() bool {
	return r == ReasonKeyNotFound || r == ReasonKeyExpired || r == ReasonKeyRevoked
}

// DecryptionError is returned for every failure to open protected data
type DecryptionError struct {
	Message    string
	KeyID      string
	ResourceID string
	Reason     DecryptionFailureReason
}

// NewDecryptionError creates a DecryptionError without resource context
func NewDecryptionError(reason DecryptionFailureReason, keyID, message string) *DecryptionError {
	return &DecryptionError{
		Message: message,
		KeyID:   keyID,
		Reason:  reason,
	}
}

func (e *DecryptionError) Error() string {
	msg := fmt.Sprintf("decryption failed (%s): %s", e.Reason, e.Message)
	if e.KeyID != "" {
		msg += fmt.Sprintf(" [key=%s]", e.KeyID)
	}
	if e.ResourceID != "" {
		msg += fmt.Sprintf(" [resource=%s]", e.ResourceID)
	}
	return msg
}

// Is matches the sentinel error of the reason
func (e *DecryptionError) Is(target error) bool {
	s := e.Reason.Sentinel()
	return s != nil && target == s
}

// WithResource returns a copy carrying the id of the resource being opened
func (e *DecryptionError) WithResource(resourceID string) *DecryptionError {
	c := *e
	c.ResourceID = resourceID
	return &c
}

// AsDecryptionError extracts a DecryptionError from err
func AsDecryptionError(err error) (*DecryptionError, bool) {
	var de *DecryptionError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// NoActiveKeyError is returned when a purpose has no key usable for sealing
type NoActiveKeyError struct {
	Purpose KeyPurpose
}

func (e *NoActiveKeyError) Error() string {
	return fmt.Sprintf("no active key for purpose %s", e.Purpose)
}

// Is matches ErrNoActiveKey
func (e *NoActiveKeyError) Is(target error) bool {
	return target == ErrNoActiveKey
}
