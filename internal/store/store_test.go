package store

import (
	"testing"

	"github.com/enviodev/liqo/internal/models"
)

func TestSnapshotStoreReplaceAndRead(t *testing.T) {
	s := NewSnapshotStore(nil)
	if s.Len() != 0 || s.HeadID() != "" {
		t.Fatalf("new store should be empty")
	}

	s.Replace([]models.LiquidationRecord{{ID: "a"}, {ID: "b"}})
	if s.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", s.Len())
	}
	if s.HeadID() != "a" {
		t.Errorf("unexpected head id: %s", s.HeadID())
	}
}

func TestSnapshotStoreSeed(t *testing.T) {
	s := NewSnapshotStore([]models.LiquidationRecord{{ID: "seed"}})
	if s.Len() != 1 || s.HeadID() != "seed" {
		t.Fatalf("seed snapshot not held")
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	s := NewSnapshotStore([]models.LiquidationRecord{{ID: "a", Protocol: "Aave"}})

	snap := s.Snapshot()
	snap[0].Protocol = "mutated"

	if s.Snapshot()[0].Protocol != "Aave" {
		t.Fatalf("mutating a snapshot leaked into the store")
	}
}
