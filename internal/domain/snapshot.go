package domain

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is one fully built, read-only Table together with its identity.
// A new Snapshot replaces the previous one on every refresh; it is never mutated.
type Snapshot struct {
	ID       string
	LoadedAt time.Time
	Table    *Table
	Stats    NormalizeStats
}

// NewSnapshot stamps a table with a fresh ID and the current time.
func NewSnapshot(table *Table, stats NormalizeStats) *Snapshot {
	return &Snapshot{
		ID:       uuid.NewString(),
		LoadedAt: clock.Now().UTC(),
		Table:    table,
		Stats:    stats,
	}
}
