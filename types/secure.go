package types

import (
	"crypto/subtle"
	"runtime"
)

// SecureBytes represents a secure byte slice that will be wiped on garbage collection
type SecureBytes struct {
	data []byte
}

// NewSecureBytes creates a new secure byte slice
func NewSecureBytes(data []byte) *SecureBytes {
	secure := &SecureBytes{
		data: make([]byte, len(data)),
	}
	subtle.ConstantTimeCopy(1, secure.data, data)

	runtime.SetFinalizer(secure, (*SecureBytes).Clear)
	return secure
}

// Clear securely wipes the memory
func (s *SecureBytes) Clear() {
	if s.data != nil {
		for i := range s.data {
			s.data[i] = 0
		}
		runtime.KeepAlive(s.data)
		s.data = nil
	}
}

// Get returns a copy of the data
func (s *SecureBytes) Get() []byte {
	if s.data == nil {
		return nil
	}
	result := make([]byte, len(s.data))
	subtle.ConstantTimeCopy(1, result, s.data)
	return result
}

// Len returns the length of the held data
func (s *SecureBytes) Len() int {
	return len(s.data)
}
