// Package baseline keeps the last observed reserves of each (party, pool)
// pair so a finished add-liquidity request can tell when the ledger has
// caught up. Writes are last-write-wins.
package baseline

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one pool's reserves as seen by one party.
type Snapshot struct {
	Party         string
	PoolID        string
	PoolCid       string
	SymbolA       string
	SymbolB       string
	ReserveA      decimal.Decimal
	ReserveB      decimal.Decimal
	ObservedCids  []string
	LastRequestID string
	UpdatedAt     time.Time
}

// Differs reports whether other shows a different pool contract or
// different reserves.
func (s Snapshot) Differs(other Snapshot) bool {
	return s.PoolCid != other.PoolCid ||
		!s.ReserveA.Equal(other.ReserveA) ||
		!s.ReserveB.Equal(other.ReserveB)
}

// WithObserved returns a copy with cid appended to ObservedCids unless it
// is already the most recent entry.
func (s Snapshot) WithObserved(cid string) Snapshot {
	cids := append([]string(nil), s.ObservedCids...)
	if cid != "" && (len(cids) == 0 || cids[len(cids)-1] != cid) {
		cids = append(cids, cid)
	}
	s.ObservedCids = cids
	return s
}

// Store persists snapshots keyed by (party, poolID).
type Store interface {
	// Get returns nil and no error when nothing is stored.
	Get(ctx context.Context, party, poolID string) (*Snapshot, error)
	Put(ctx context.Context, snap Snapshot) error
}

type key struct {
	party  string
	poolID string
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[key]Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[key]Snapshot)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, party, poolID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[key{party, poolID}]
	if !ok {
		return nil, nil
	}
	snap.ObservedCids = append([]string(nil), snap.ObservedCids...)
	return &snap, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.ObservedCids = append([]string(nil), snap.ObservedCids...)
	m.snaps[key{snap.Party, snap.PoolID}] = snap
	return nil
}
