// Package store persists wrapped key records
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// DefaultCollection holds one document per key
const DefaultCollection = "encryptionKeys"

// MongoDBStore implements key record storage using MongoDB
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates a key store on the named collection, DefaultCollection when empty
func NewMongoDBStore(db *mongo.Database, collection string) interfaces.KeyStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoDBStore{collection: db.Collection(collection)}
}

// EnsureIndexes creates the purpose/status lookup index
func (s *MongoDBStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "purpose", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create key indexes: %w", err)
	}
	return nil
}

// SaveKey inserts or replaces a key record
func (s *MongoDBStore) SaveKey(ctx context.Context, record *types.KeyRecord) error {
	if err := checkRecord(record); err != nil {
		return err
	}
	stamp(record)

	_, err := s.collection.ReplaceOne(
		ctx,
		bson.M{"_id": record.ID},
		record,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to store key %s: %w", record.ID, err)
	}

	log.Debug().
		Str("keyId", record.ID).
		Str("purpose", string(record.Purpose)).
		Str("status", string(record.Status)).
		Msg("Key record stored")
	return nil
}

// SaveKeys persists several records in one ordered bulk write
func (s *MongoDBStore) SaveKeys(ctx context.Context, records ...*types.KeyRecord) error {
	if len(records) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(records))
	for _, record := range records {
		if err := checkRecord(record); err != nil {
			return err
		}
		stamp(record)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": record.ID}).
			SetReplacement(record).
			SetUpsert(true))
	}

	if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to store %d key records: %w", len(records), err)
	}

	log.Debug().Int("count", len(records)).Msg("Key records stored")
	return nil
}

// GetKey retrieves a key record by id, nil if absent
func (s *MongoDBStore) GetKey(ctx context.Context, id string) (*types.KeyRecord, error) {
	var record types.KeyRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %s: %w", id, err)
	}
	return &record, nil
}

// ListKeys lists records of a purpose, oldest first; all records when purpose is empty
func (s *MongoDBStore) ListKeys(ctx context.Context, purpose types.KeyPurpose) ([]*types.KeyRecord, error) {
	filter := bson.M{}
	if purpose != "" {
		filter["purpose"] = purpose
	}

	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*types.KeyRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode keys: %w", err)
	}
	return records, nil
}

func checkRecord(record *types.KeyRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("key record id is required")
	}
	if !record.Purpose.Valid() {
		return fmt.Errorf("invalid key purpose: %s", record.Purpose)
	}
	switch {
	case record.Status == types.KeyStatusRevoked && record.BlobInfo != nil:
		return fmt.Errorf("revoked key record %s still carries wrapped material", record.ID)
	case record.Status != types.KeyStatusRevoked && record.BlobInfo == nil:
		return fmt.Errorf("key record %s has no wrapped material", record.ID)
	}
	return nil
}

func stamp(record *types.KeyRecord) {
	record.UpdatedAt = time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}
}
