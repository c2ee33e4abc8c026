package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrShuttingDown is returned by Acquire once Shutdown has started
var ErrShuttingDown = errors.New("lock table is shutting down")

// Lease is exclusive ownership of one document
type Lease struct {
	DocumentID string
	Owner      string
	AcquiredAt time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	released chan struct{}
	once     sync.Once
	table    *LockTable
}

// Context is cancelled when the lease is released or the table shuts down
func (l *Lease) Context() context.Context {
	return l.ctx
}

// Release gives the document up; calling it more than once is harmless
func (l *Lease) Release() {
	l.once.Do(func() {
		l.table.release(l)
	})
}

// LeaseInfo describes a held lease
type LeaseInfo struct {
	DocumentID string
	Owner      string
	AcquiredAt time.Time
}

// LockTable serializes operations per document. The core itself never
// persists status; callers hold a lease while they read, transition and
// store a document so that validation sees the last committed status.
type LockTable struct {
	mu         sync.Mutex
	leases     map[string]*Lease
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewLockTable creates an empty lock table
func NewLockTable() *LockTable {
	return &LockTable{
		leases:     make(map[string]*Lease),
		shutdownCh: make(chan struct{}),
	}
}

// Acquire blocks until documentID is free or ctx is done
func (t *LockTable) Acquire(ctx context.Context, documentID, owner string) (*Lease, error) {
	for {
		t.mu.Lock()
		if t.IsShuttingDown() {
			t.mu.Unlock()
			return nil, ErrShuttingDown
		}
		held, exists := t.leases[documentID]
		if !exists {
			lease := t.grant(ctx, documentID, owner)
			t.mu.Unlock()
			return lease, nil
		}
		wait := held.released
		t.mu.Unlock()

		select {
		case <-wait:
		case <-t.shutdownCh:
			return nil, ErrShuttingDown
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryAcquire takes documentID only if it is free
func (t *LockTable) TryAcquire(ctx context.Context, documentID, owner string) (*Lease, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.IsShuttingDown() {
		return nil, false
	}
	if _, exists := t.leases[documentID]; exists {
		return nil, false
	}
	return t.grant(ctx, documentID, owner), true
}

// grant requires t.mu
func (t *LockTable) grant(ctx context.Context, documentID, owner string) *Lease {
	leaseCtx, cancel := context.WithCancel(ctx)
	lease := &Lease{
		DocumentID: documentID,
		Owner:      owner,
		AcquiredAt: time.Now(),
		ctx:        leaseCtx,
		cancel:     cancel,
		released:   make(chan struct{}),
		table:      t,
	}
	t.leases[documentID] = lease
	t.wg.Add(1)
	return lease
}

func (t *LockTable) release(l *Lease) {
	t.mu.Lock()
	if current, ok := t.leases[l.DocumentID]; ok && current == l {
		delete(t.leases, l.DocumentID)
	}
	t.mu.Unlock()

	l.cancel()
	close(l.released)
	t.wg.Done()
}

// Holder returns the lease currently held on documentID
func (t *LockTable) Holder(documentID string) (LeaseInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.leases[documentID]
	if !ok {
		return LeaseInfo{}, false
	}
	return LeaseInfo{DocumentID: l.DocumentID, Owner: l.Owner, AcquiredAt: l.AcquiredAt}, true
}

// List returns the held leases ordered by document id
func (t *LockTable) List() []LeaseInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	infos := make([]LeaseInfo, 0, len(t.leases))
	for _, l := range t.leases {
		infos = append(infos, LeaseInfo{DocumentID: l.DocumentID, Owner: l.Owner, AcquiredAt: l.AcquiredAt})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DocumentID < infos[j].DocumentID })
	return infos
}

// Shutdown refuses new leases, cancels the contexts of held ones and waits
// for their holders to release them.
func (t *LockTable) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	if !t.IsShuttingDown() {
		close(t.shutdownCh)
	}
	for _, l := range t.leases {
		l.cancel()
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShuttingDown reports whether Shutdown has been called
func (t *LockTable) IsShuttingDown() bool {
	select {
	case <-t.shutdownCh:
		return true
	default:
		return false
	}
}
