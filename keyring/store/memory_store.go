package store

import (
	"context"
	"sort"
	"sync"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// MemoryStore keeps key records in process memory. Used in tests and by
// the aead development setup.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]types.KeyRecord
}

// NewMemoryStore creates an empty in-memory key store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]types.KeyRecord)}
}

var _ interfaces.KeyStore = (*MemoryStore)(nil)

// SaveKey inserts or replaces a key record
func (s *MemoryStore) SaveKey(ctx context.Context, record *types.KeyRecord) error {
	return s.SaveKeys(ctx, record)
}

// SaveKeys stores all records or none
func (s *MemoryStore) SaveKeys(ctx context.Context, records ...*types.KeyRecord) error {
	for _, record := range records {
		if err := checkRecord(record); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		stamp(record)
		s.records[record.ID] = *record
	}
	return nil
}

// GetKey retrieves a key record by id, nil if absent
func (s *MemoryStore) GetKey(_ context.Context, id string) (*types.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// ListKeys lists records of a purpose, oldest first; all records when purpose is empty
func (s *MemoryStore) ListKeys(_ context.Context, purpose types.KeyPurpose) ([]*types.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*types.KeyRecord, 0, len(s.records))
	for _, record := range s.records {
		if purpose != "" && record.Purpose != purpose {
			continue
		}
		record := record
		records = append(records, &record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}
