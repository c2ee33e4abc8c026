package store

import (
	"context"
	"testing"
	"time"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

func record(id string, purpose types.KeyPurpose, created time.Time) *types.KeyRecord {
	return &types.KeyRecord{
		ID:          id,
		Purpose:     purpose,
		Status:      types.KeyStatusActive,
		Algorithm:   types.AlgorithmAES256GCM,
		BlobInfo:    &wrapping.BlobInfo{Ciphertext: []byte("wrapped-" + id)},
		WrapContext: []byte(string(purpose) + ":" + id),
		CreatedAt:   created,
	}
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r := record("k1", types.PurposeClinicalNotes, time.Time{})
	require.NoError(t, s.SaveKey(ctx, r))
	assert.False(t, r.CreatedAt.IsZero(), "creation time is stamped")
	assert.False(t, r.UpdatedAt.IsZero())

	got, err := s.GetKey(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.PurposeClinicalNotes, got.Purpose)
	assert.Equal(t, []byte("wrapped-k1"), got.BlobInfo.Ciphertext)
	assert.Equal(t, []byte("CLINICAL_NOTES:k1"), got.WrapContext)

	got.Status = types.KeyStatusRevoked
	again, err := s.GetKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, types.KeyStatusActive, again.Status, "returned records are copies")

	missing, err := s.GetKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_SaveKeysReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := record("k1", types.PurposeShadowNotes, base)
	require.NoError(t, s.SaveKey(ctx, old))

	old.Status = types.KeyStatusExpired
	old.RetiredAt = base.Add(time.Hour)
	next := record("k2", types.PurposeShadowNotes, base.Add(time.Hour))
	require.NoError(t, s.SaveKeys(ctx, old, next))

	list, err := s.ListKeys(ctx, types.PurposeShadowNotes)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "k1", list[0].ID)
	assert.Equal(t, types.KeyStatusExpired, list[0].Status)
	assert.Equal(t, "k2", list[1].ID)
}

func TestMemoryStore_SaveKeysAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	bad := record("k2", types.PurposeClinicalNotes, time.Now())
	bad.BlobInfo = nil
	err := s.SaveKeys(ctx, record("k1", types.PurposeClinicalNotes, time.Now()), bad)
	assert.ErrorContains(t, err, "no wrapped material")

	list, err := s.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryStore_RevokedRecordsHoldNoMaterial(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := record("k1", types.PurposeClinicalNotes, time.Now())
	require.NoError(t, s.SaveKey(ctx, rec))

	rec.Status = types.KeyStatusRevoked
	err := s.SaveKey(ctx, rec)
	assert.ErrorContains(t, err, "still carries wrapped material")

	rec.BlobInfo = nil
	rec.WrapContext = nil
	require.NoError(t, s.SaveKey(ctx, rec))

	got, err := s.GetKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, types.KeyStatusRevoked, got.Status)
	assert.Nil(t, got.BlobInfo)

	got.Status = types.KeyStatusActive
	assert.ErrorContains(t, s.SaveKey(ctx, got), "no wrapped material")
}

func TestMemoryStore_ListKeysByPurpose(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveKeys(ctx,
		record("c1", types.PurposeClinicalNotes, base),
		record("u1", types.PurposeUserPersonal, base.Add(time.Minute)),
		record("c2", types.PurposeClinicalNotes, base.Add(2*time.Minute)),
	))

	clinical, err := s.ListKeys(ctx, types.PurposeClinicalNotes)
	require.NoError(t, err)
	require.Len(t, clinical, 2)
	assert.Equal(t, "c1", clinical[0].ID)
	assert.Equal(t, "c2", clinical[1].ID)

	all, err := s.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStore_RejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	assert.Error(t, s.SaveKey(ctx, nil))
	assert.Error(t, s.SaveKey(ctx, record("", types.PurposeClinicalNotes, time.Now())))
	assert.ErrorContains(t, s.SaveKey(ctx, record("k", types.KeyPurpose("BILLING"), time.Now())), "invalid key purpose")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.SaveKey(cancelled, record("k", types.PurposeClinicalNotes, time.Now())), context.Canceled)
}
