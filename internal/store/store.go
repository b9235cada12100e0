// Package store holds the dashboard's current liquidation snapshot.
package store

import (
	"sync"

	"github.com/enviodev/liqo/internal/models"
)

// SnapshotStore is the single mutable reference to the current record list.
// It has one writer (the poller) and many readers (request handlers); reads
// always receive a copy so a concurrent replace never mutates a snapshot a
// handler is iterating.
type SnapshotStore struct {
	mu      sync.RWMutex
	records []models.LiquidationRecord
}

// NewSnapshotStore creates a store seeded with an initial snapshot. The seed
// may be nil; the first accepted poll fills it.
func NewSnapshotStore(initial []models.LiquidationRecord) *SnapshotStore {
	s := &SnapshotStore{}
	if len(initial) > 0 {
		s.records = append([]models.LiquidationRecord(nil), initial...)
	}
	return s
}

// Replace swaps in a new snapshot wholesale. Records that upstream stopped
// returning simply disappear; there is no local deletion logic.
func (s *SnapshotStore) Replace(records []models.LiquidationRecord) {
	copied := append([]models.LiquidationRecord(nil), records...)

	s.mu.Lock()
	s.records = copied
	s.mu.Unlock()
}

// Snapshot returns a copy of the current record list.
func (s *SnapshotStore) Snapshot() []models.LiquidationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.LiquidationRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len reports the current snapshot size.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// HeadID returns the id of the first record, or "" when the store is empty.
func (s *SnapshotStore) HeadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return ""
	}
	return s.records[0].ID
}
