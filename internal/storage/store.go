package storage

import (
	"time"
)

// SnapshotRecord is one archived configuration export.
type SnapshotRecord struct {
	TakenAt  time.Time
	Document []byte // encoded snapshot document
}

// Store is the persistence interface for the daemon. Counter and permission
// configuration live in memory; only explicit exports and the rename rate
// gate touch disk.
type Store interface {
	// APIRateGate: rolling-window API budget per key.
	// Returns allowed=true if within budget; atomically appends timestamp on allowed.
	APIRateGate(key string, window time.Duration, max int) (bool, error)

	// Snapshot archive
	SaveSnapshot(rec SnapshotRecord) error
	LatestSnapshot() (*SnapshotRecord, error)
	ListSnapshots() ([]SnapshotRecord, error)

	// Janitor helpers
	PruneExpiredRateEntries(window time.Duration) (int, error)
	PruneSnapshots(keep int) (int, error)

	// Utility
	SizeBytes() (int64, error)
	Close() error
}
