// Package keyring owns the purpose-scoped key lifecycle: which key is active
// for new seals, which keys may still open old envelopes, and rotation and
// revocation of both.
package keyring

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/audit"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/kms"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/metrics"
	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// DefaultMaxSealsAESGCM keeps random 96-bit nonces well below the 2^32
// messages per key at which collision probability reaches 2^-32.
const DefaultMaxSealsAESGCM int64 = 1 << 30

// unwrapConcurrency bounds parallel KMS calls during Initialize
const unwrapConcurrency = 8

// Rotation triggers, reported in metrics and audit events
const (
	TriggerManual     = "manual"
	TriggerSchedule   = "schedule"
	TriggerBudget     = "budget"
	TriggerRevocation = "revocation"
	TriggerBootstrap  = "bootstrap"
)

// entry pairs a key with the persisted record it was loaded from
type entry struct {
	key    types.Key
	record types.KeyRecord
}

// snapshot is never modified after publication
type snapshot struct {
	keys   map[string]entry
	active map[types.KeyPurpose]string
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		keys:   make(map[string]entry, len(s.keys)+1),
		active: make(map[types.KeyPurpose]string, len(s.active)),
	}
	for id, e := range s.keys {
		next.keys[id] = e
	}
	for p, id := range s.active {
		next.active[p] = id
	}
	return next
}

func (s *snapshot) activeEntry(purpose types.KeyPurpose) (entry, bool) {
	id, ok := s.active[purpose]
	if !ok {
		return entry{}, false
	}
	e, ok := s.keys[id]
	return e, ok
}

// Registry implements interfaces.KeyRegistry
type Registry struct {
	provider    kms.Provider
	store       interfaces.KeyStore
	auditLogger interfaces.AuditLogger
	cfg         types.KeyringConfig
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	clock       func() time.Time
	random      io.Reader

	current     atomic.Pointer[snapshot]
	publishMu   sync.Mutex
	purposeMu   map[types.KeyPurpose]*sync.Mutex
	seals       sync.Map // key id -> *atomic.Int64
	initialized atomic.Bool
}

var _ interfaces.KeyRegistry = (*Registry)(nil)

// Option configures a Registry
type Option func(*Registry)

// WithClock replaces time.Now
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithLogger sets the operational logger
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics records rotations and revocations
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithRandom replaces crypto/rand as the source of key material
func WithRandom(random io.Reader) Option {
	return func(r *Registry) { r.random = random }
}

// NewRegistry creates an empty registry. Call Initialize to load persisted keys.
func NewRegistry(provider kms.Provider, store interfaces.KeyStore, auditLogger interfaces.AuditLogger, cfg types.KeyringConfig, opts ...Option) (*Registry, error) {
	if provider == nil {
		return nil, fmt.Errorf("KMS provider is required for NewRegistry")
	}
	if store == nil {
		return nil, fmt.Errorf("store (KeyStore) is required for NewRegistry")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = types.AlgorithmAES256GCM
	}
	if !cfg.Algorithm.Valid() {
		return nil, fmt.Errorf("unsupported key algorithm: %s", cfg.Algorithm)
	}
	if cfg.RotateAfter < 0 || cfg.Retention < 0 || cfg.MaxSealsPerKey < 0 {
		return nil, fmt.Errorf("keyring durations and limits must not be negative")
	}
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}

	r := &Registry{
		provider:    provider,
		store:       store,
		auditLogger: auditLogger,
		cfg:         cfg,
		logger:      log.With().Str("component", "keyring").Logger(),
		clock:       time.Now,
		random:      rand.Reader,
		purposeMu:   make(map[types.KeyPurpose]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, p := range types.AllKeyPurposes() {
		r.purposeMu[p] = &sync.Mutex{}
	}
	r.current.Store(&snapshot{
		keys:   make(map[string]entry),
		active: make(map[types.KeyPurpose]string),
	})
	return r, nil
}

// Initialize loads persisted key records and unwraps their material. When
// several records claim to be active for one purpose, the newest wins and the
// others are expired. Purposes left without an active key get one if
// CreateMissing is set.
func (r *Registry) Initialize(ctx context.Context) error {
	if !r.initialized.CompareAndSwap(false, true) {
		return fmt.Errorf("key registry already initialized")
	}

	next, err := r.load(ctx)
	if err != nil {
		r.initialized.Store(false)
		return err
	}

	if !r.cfg.CreateMissing {
		return nil
	}
	for _, purpose := range types.AllKeyPurposes() {
		if _, ok := next.active[purpose]; ok {
			continue
		}
		if _, err := r.rotateIf(ctx, purpose, TriggerBootstrap, nil); err != nil {
			return fmt.Errorf("failed to create initial %s key: %w", purpose, err)
		}
	}
	return nil
}

// load replaces the snapshot with the persisted records. Every purpose mutex
// is held until the snapshot is published, so a rotation or revocation
// started meanwhile applies to the loaded keys.
func (r *Registry) load(ctx context.Context) (*snapshot, error) {
	unlock := r.lockPurposes()
	defer unlock()

	records, err := r.store.ListKeys(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load key records: %w", err)
	}

	for _, rec := range records {
		if rec != nil && !rec.Purpose.Valid() {
			return nil, fmt.Errorf("key record %s has invalid purpose %q", rec.ID, rec.Purpose)
		}
	}

	entries := make([]entry, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(unwrapConcurrency)
	for i, rec := range records {
		if rec == nil {
			continue
		}
		if rec.Status == types.KeyStatusRevoked {
			entries[i] = entry{key: rec.Metadata(), record: *rec}
			continue
		}
		i, rec := i, rec
		g.Go(func() error {
			key, err := r.unwrap(gctx, rec)
			if err != nil {
				return err
			}
			entries[i] = entry{key: key, record: *rec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	next := &snapshot{
		keys:   make(map[string]entry, len(entries)),
		active: make(map[types.KeyPurpose]string),
	}
	for _, e := range entries {
		if e.key.ID != "" {
			next.keys[e.key.ID] = e
		}
	}

	demoted := r.electActive(next)
	if len(demoted) > 0 {
		if err := r.store.SaveKeys(ctx, demoted...); err != nil {
			return nil, fmt.Errorf("failed to expire duplicate active keys: %w", err)
		}
	}

	r.publishMu.Lock()
	r.current.Store(next)
	r.publishMu.Unlock()

	r.logger.Info().
		Int("keys", len(next.keys)).
		Int("activePurposes", len(next.active)).
		Int("demoted", len(demoted)).
		Msg("Key registry loaded")

	event := audit.NewEvent(audit.CategoryOperations, audit.EventTypeKeyLoad, "load", audit.StatusSuccess)
	event.Metadata = map[string]interface{}{"keys": len(next.keys), "demoted": len(demoted)}
	audit.Record(ctx, r.auditLogger, event)
	return next, nil
}

// lockPurposes takes every purpose mutex in AllKeyPurposes order
func (r *Registry) lockPurposes() (unlock func()) {
	purposes := types.AllKeyPurposes()
	for _, p := range purposes {
		r.purposeMu[p].Lock()
	}
	return func() {
		for i := len(purposes) - 1; i >= 0; i-- {
			r.purposeMu[purposes[i]].Unlock()
		}
	}
}

// electActive fills next.active with the newest active key per purpose and
// returns the records of the active keys it expired.
func (r *Registry) electActive(next *snapshot) []*types.KeyRecord {
	byPurpose := make(map[types.KeyPurpose][]entry)
	for _, e := range next.keys {
		if e.key.Status == types.KeyStatusActive {
			byPurpose[e.key.Purpose] = append(byPurpose[e.key.Purpose], e)
		}
	}

	now := r.clock().UTC()
	var demoted []*types.KeyRecord
	for purpose, candidates := range byPurpose {
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].key.CreatedAt.Equal(candidates[j].key.CreatedAt) {
				return candidates[i].key.ID > candidates[j].key.ID
			}
			return candidates[i].key.CreatedAt.After(candidates[j].key.CreatedAt)
		})
		next.active[purpose] = candidates[0].key.ID

		for _, loser := range candidates[1:] {
			e := expire(loser, now)
			next.keys[e.key.ID] = e
			rec := e.record
			demoted = append(demoted, &rec)
			r.logger.Warn().
				Str("keyId", e.key.ID).
				Str("purpose", string(purpose)).
				Str("winner", candidates[0].key.ID).
				Msg("Expiring duplicate active key")
		}
	}
	return demoted
}

// GetActiveKey returns the key used for new seals under purpose
func (r *Registry) GetActiveKey(purpose types.KeyPurpose) (types.Key, error) {
	e, ok := r.current.Load().activeEntry(purpose)
	if !ok {
		return types.Key{}, &types.NoActiveKeyError{Purpose: purpose}
	}
	return e.key, nil
}

// ResolveKey returns the key an envelope names. Keys of other purposes are
// reported as not found.
func (r *Registry) ResolveKey(purpose types.KeyPurpose, keyID string) (types.Key, error) {
	e, ok := r.current.Load().keys[keyID]
	if !ok || e.key.Purpose != purpose {
		return types.Key{}, types.NewDecryptionError(types.ReasonKeyNotFound, keyID,
			fmt.Sprintf("no %s key with id %q", purpose, keyID))
	}

	switch e.key.Status {
	case types.KeyStatusRevoked:
		return types.Key{}, types.NewDecryptionError(types.ReasonKeyRevoked, keyID, "key has been revoked")
	case types.KeyStatusExpired:
		if r.pastRetention(e.key) {
			return types.Key{}, types.NewDecryptionError(types.ReasonKeyExpired, keyID, "key is past its retention period")
		}
	case types.KeyStatusActive:
	default:
		return types.Key{}, types.NewDecryptionError(types.ReasonKeyNotFound, keyID,
			fmt.Sprintf("key has unknown status %q", e.key.Status))
	}
	return e.key, nil
}

func (r *Registry) pastRetention(k types.Key) bool {
	if r.cfg.Retention <= 0 || k.RetiredAt.IsZero() {
		return false
	}
	return r.clock().After(k.RetiredAt.Add(r.cfg.Retention))
}

// Keys lists key metadata of purpose, oldest first; all purposes when empty.
// Material is never included.
func (r *Registry) Keys(purpose types.KeyPurpose) []types.Key {
	snap := r.current.Load()
	keys := make([]types.Key, 0, len(snap.keys))
	for _, e := range snap.keys {
		if purpose != "" && e.key.Purpose != purpose {
			continue
		}
		keys = append(keys, e.key.WithoutMaterial())
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].ID < keys[j].ID
		}
		return keys[i].CreatedAt.Before(keys[j].CreatedAt)
	})
	return keys
}

// Rotate expires the active key of purpose and activates a new one
func (r *Registry) Rotate(ctx context.Context, purpose types.KeyPurpose) (types.Key, error) {
	return r.rotate(ctx, purpose, TriggerManual)
}

func (r *Registry) rotate(ctx context.Context, purpose types.KeyPurpose, trigger string) (types.Key, error) {
	mu, ok := r.purposeMu[purpose]
	if !ok {
		return types.Key{}, fmt.Errorf("invalid key purpose: %s", purpose)
	}
	mu.Lock()
	defer mu.Unlock()
	return r.rotateLocked(ctx, purpose, trigger)
}

// rotateLocked requires the purpose mutex. The new key is persisted together
// with the retirement of the previous one before either becomes visible.
func (r *Registry) rotateLocked(ctx context.Context, purpose types.KeyPurpose, trigger string) (types.Key, error) {
	start := time.Now()
	ctx = context.WithValue(ctx, audit.KeyTrigger, trigger)

	material, err := r.generateMaterial()
	if err != nil {
		r.logKeyEvent(ctx, audit.EventTypeKeyRotate, "rotate", audit.StatusFailed, "", purpose, err)
		return types.Key{}, err
	}
	defer wipe(material)

	id := uuid.New().String()
	aad := wrapContext(purpose, id)
	blob, err := kms.WrapKey(ctx, r.provider, material, aad)
	if err != nil {
		err = fmt.Errorf("failed to wrap new %s key: %w", purpose, err)
		r.logKeyEvent(ctx, audit.EventTypeKeyRotate, "rotate", audit.StatusFailed, id, purpose, err)
		return types.Key{}, err
	}

	now := r.clock().UTC()
	key := types.NewKey(id, purpose, r.cfg.Algorithm, material, now)
	if r.cfg.RotateAfter > 0 {
		key.ExpiresAt = now.Add(r.cfg.RotateAfter)
	}
	created := entry{
		key: key,
		record: types.KeyRecord{
			ID:          id,
			Purpose:     purpose,
			Status:      types.KeyStatusActive,
			Algorithm:   key.Algorithm,
			BlobInfo:    blob,
			WrapContext: aad,
			CreatedAt:   now,
			ExpiresAt:   key.ExpiresAt,
		},
	}

	changed := []entry{created}
	previous, hasPrevious := r.current.Load().activeEntry(purpose)
	if hasPrevious {
		changed = append(changed, expire(previous, now))
	}

	records := make([]*types.KeyRecord, len(changed))
	for i := range changed {
		records[i] = &changed[i].record
	}
	if err := r.store.SaveKeys(ctx, records...); err != nil {
		err = fmt.Errorf("failed to persist rotated %s key: %w", purpose, err)
		r.logKeyEvent(ctx, audit.EventTypeKeyRotate, "rotate", audit.StatusFailed, id, purpose, err)
		return types.Key{}, err
	}

	r.publish(func(next *snapshot) {
		for _, e := range changed {
			next.keys[e.key.ID] = e
		}
		next.active[purpose] = id
	})

	r.metrics.ObserveRotation(string(purpose), trigger, start)
	logEvent := r.logger.Info().
		Str("keyId", id).
		Str("purpose", string(purpose)).
		Str("trigger", trigger)
	if hasPrevious {
		logEvent = logEvent.Str("previousKeyId", previous.key.ID)
	}
	logEvent.Msg("Key rotated")

	eventType := audit.EventTypeKeyRotate
	if !hasPrevious {
		eventType = audit.EventTypeKeyCreate
	}
	r.logKeyEvent(ctx, eventType, "rotate", audit.StatusSuccess, id, purpose, nil)
	return key, nil
}

// Revoke marks a key revoked. Revocation is irreversible and idempotent: the
// wrapped material is dropped from the persisted record.
// Revoking the active key creates a replacement when AutoReplaceRevoked is set.
func (r *Registry) Revoke(ctx context.Context, keyID string) error {
	e, ok := r.current.Load().keys[keyID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrKeyNotFound, keyID)
	}
	purpose := e.key.Purpose

	mu := r.purposeMu[purpose]
	mu.Lock()
	defer mu.Unlock()

	snap := r.current.Load()
	e = snap.keys[keyID]
	if e.key.Status == types.KeyStatusRevoked {
		return nil
	}
	wasActive := snap.active[purpose] == keyID

	now := r.clock().UTC()
	revoked := e
	revoked.key = e.key.WithoutMaterial()
	revoked.key.Status = types.KeyStatusRevoked
	revoked.key.RevokedAt = now
	revoked.record.Status = types.KeyStatusRevoked
	revoked.record.RevokedAt = now
	revoked.record.BlobInfo = nil
	revoked.record.WrapContext = nil
	if revoked.key.RetiredAt.IsZero() {
		revoked.key.RetiredAt = now
		revoked.record.RetiredAt = now
	}

	if err := r.store.SaveKey(ctx, &revoked.record); err != nil {
		err = fmt.Errorf("failed to persist revocation of key %s: %w", keyID, err)
		r.logKeyEvent(ctx, audit.EventTypeKeyRevoke, "revoke", audit.StatusFailed, keyID, purpose, err)
		return err
	}

	r.publish(func(next *snapshot) {
		next.keys[keyID] = revoked
		if wasActive {
			delete(next.active, purpose)
		}
	})
	r.seals.Delete(keyID)

	r.metrics.IncrementRevocation(string(purpose))
	r.logger.Warn().
		Str("keyId", keyID).
		Str("purpose", string(purpose)).
		Bool("wasActive", wasActive).
		Msg("Key revoked")
	r.logKeyEvent(ctx, audit.EventTypeKeyRevoke, "revoke", audit.StatusSuccess, keyID, purpose, nil)

	if !wasActive || !r.cfg.AutoReplaceRevoked {
		return nil
	}
	if _, err := r.rotateLocked(ctx, purpose, TriggerRevocation); err != nil {
		return fmt.Errorf("key %s revoked but no replacement could be created: %w", keyID, err)
	}
	return nil
}

// RotateDue rotates every purpose whose active key passed its ExpiresAt
func (r *Registry) RotateDue(ctx context.Context, now time.Time) ([]types.Key, error) {
	var (
		rotated []types.Key
		errs    []error
	)
	for _, purpose := range types.AllKeyPurposes() {
		if !r.isDue(purpose, now) {
			continue
		}
		key, err := r.rotateIf(ctx, purpose, TriggerSchedule, func(active entry) bool {
			return !active.key.ExpiresAt.IsZero() && !now.Before(active.key.ExpiresAt)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if key.ID != "" {
			rotated = append(rotated, key)
		}
	}
	return rotated, errors.Join(errs...)
}

func (r *Registry) isDue(purpose types.KeyPurpose, now time.Time) bool {
	e, ok := r.current.Load().activeEntry(purpose)
	return ok && !e.key.ExpiresAt.IsZero() && !now.Before(e.key.ExpiresAt)
}

// rotateIf rotates purpose only while its active key still satisfies cond,
// so concurrent triggers for the same key rotate once. A nil cond creates a
// key only when purpose has none.
func (r *Registry) rotateIf(ctx context.Context, purpose types.KeyPurpose, trigger string, cond func(active entry) bool) (types.Key, error) {
	mu := r.purposeMu[purpose]
	mu.Lock()
	defer mu.Unlock()

	active, ok := r.current.Load().activeEntry(purpose)
	if cond == nil {
		if ok {
			return types.Key{}, nil
		}
		return r.rotateLocked(ctx, purpose, trigger)
	}
	if !ok || !cond(active) {
		return types.Key{}, nil
	}
	return r.rotateLocked(ctx, purpose, trigger)
}

// StartRotationSchedule runs RotateDue every interval until ctx is done
func (r *Registry) StartRotationSchedule(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("rotation interval must be positive")
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		r.logger.Info().Dur("interval", interval).Msg("Rotation schedule started")

		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("Rotation schedule stopped")
				return
			case <-ticker.C:
				rotated, err := r.RotateDue(ctx, r.clock())
				if err != nil {
					r.logger.Error().Err(err).Msg("Scheduled rotation failed")
				}
				if len(rotated) > 0 {
					r.logger.Info().Int("rotated", len(rotated)).Msg("Scheduled rotation completed")
				}
			}
		}
	}()
	return nil
}

// NoteSeal counts a seal under keyID and reports whether the key reached
// its nonce budget. Only AES-GCM keys have a budget. Counts live in memory.
func (r *Registry) NoteSeal(keyID string) bool {
	e, ok := r.current.Load().keys[keyID]
	if !ok || e.key.Algorithm != types.AlgorithmAES256GCM {
		return false
	}

	limit := r.cfg.MaxSealsPerKey
	if limit == 0 {
		limit = DefaultMaxSealsAESGCM
	}

	counter, _ := r.seals.LoadOrStore(keyID, new(atomic.Int64))
	return counter.(*atomic.Int64).Add(1) >= limit
}

// SealCount returns the seals counted for keyID since startup
func (r *Registry) SealCount(keyID string) int64 {
	counter, ok := r.seals.Load(keyID)
	if !ok {
		return 0
	}
	return counter.(*atomic.Int64).Load()
}

// RotateExhausted rotates the purpose of keyID if keyID is still active
func (r *Registry) RotateExhausted(ctx context.Context, keyID string) error {
	e, ok := r.current.Load().keys[keyID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrKeyNotFound, keyID)
	}
	_, err := r.rotateIf(ctx, e.key.Purpose, TriggerBudget, func(active entry) bool {
		return active.key.ID == keyID
	})
	return err
}

// publish applies mutate to a copy of the current snapshot and swaps it in
func (r *Registry) publish(mutate func(next *snapshot)) {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()
	next := r.current.Load().clone()
	mutate(next)
	r.current.Store(next)
}

func (r *Registry) unwrap(ctx context.Context, rec *types.KeyRecord) (types.Key, error) {
	expected := wrapContext(rec.Purpose, rec.ID)
	if string(rec.WrapContext) != string(expected) {
		return types.Key{}, fmt.Errorf("key record %s wrap context does not match its purpose", rec.ID)
	}

	material, err := kms.UnwrapKey(ctx, r.provider, rec.BlobInfo, rec.WrapContext)
	if err != nil {
		return types.Key{}, fmt.Errorf("failed to unwrap key %s: %w", rec.ID, err)
	}
	defer wipe(material)
	if len(material) != types.KeySize {
		return types.Key{}, fmt.Errorf("key %s unwrapped to %d bytes, want %d", rec.ID, len(material), types.KeySize)
	}

	key := types.NewKey(rec.ID, rec.Purpose, rec.Algorithm, material, rec.CreatedAt)
	key.Status = rec.Status
	key.ExpiresAt = rec.ExpiresAt
	key.RetiredAt = rec.RetiredAt
	key.RevokedAt = rec.RevokedAt
	return key, nil
}

func (r *Registry) generateMaterial() ([]byte, error) {
	material := make([]byte, types.KeySize)
	if _, err := io.ReadFull(r.random, material); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	// An all-zero key means the random source is broken
	for _, b := range material {
		if b != 0 {
			return material, nil
		}
	}
	return nil, fmt.Errorf("generated key is all zeros")
}

func (r *Registry) logKeyEvent(ctx context.Context, eventType, operation, status, keyID string, purpose types.KeyPurpose, err error) {
	event := audit.NewEvent(audit.CategorySecurity, eventType, operation, status)
	event.KeyID = keyID
	event.Context[string(audit.KeyPurpose)] = string(purpose)
	if trigger, ok := ctx.Value(audit.KeyTrigger).(string); ok {
		event.Context[string(audit.KeyTrigger)] = trigger
	}
	if err != nil {
		event.Context[string(audit.KeyError)] = err.Error()
	}
	audit.Record(ctx, r.auditLogger, event)
}

// expire returns e retired at now, as both key and record
func expire(e entry, now time.Time) entry {
	e.key.Status = types.KeyStatusExpired
	e.key.RetiredAt = now
	e.record.Status = types.KeyStatusExpired
	e.record.RetiredAt = now
	return e
}

// wrapContext binds wrapped material to its purpose and id
func wrapContext(purpose types.KeyPurpose, id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", purpose, id))
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
