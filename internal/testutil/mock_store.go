package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/developingchet/guild-counter-sync/internal/storage"
)

// MockStore implements storage.Store with in-memory maps for testing.
// All methods are safe for concurrent use.
type MockStore struct {
	mu        sync.Mutex
	rate      map[string][]int64 // key -> Unix-nano timestamps
	denied    map[string]bool    // keys whose gate is forced closed
	snapshots []storage.SnapshotRecord

	// Error injection: method -> next error (consumed on first call)
	errors map[string]error

	// SizeBytes value returned by SizeBytes()
	Size int64
}

// NewMockStore returns a zero-state MockStore ready for use.
func NewMockStore() *MockStore {
	return &MockStore{
		rate:   make(map[string][]int64),
		denied: make(map[string]bool),
		errors: make(map[string]error),
		Size:   1024,
	}
}

// SetError injects an error to be returned on the next call to the named method.
func (m *MockStore) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

// DenyRate forces APIRateGate to report a closed gate for key.
func (m *MockStore) DenyRate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[key] = true
}

func (m *MockStore) popError(method string) error {
	err := m.errors[method]
	delete(m.errors, method)
	return err
}

// --- APIRateGate ------------------------------------------------------------

func (m *MockStore) APIRateGate(key string, window time.Duration, max int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("APIRateGate"); err != nil {
		return false, err
	}
	if m.denied[key] {
		return false, nil
	}
	if max <= 0 {
		return true, nil
	}
	cutoff := time.Now().Add(-window).UnixNano()
	now := time.Now().UnixNano()
	ts := m.rate[key]

	// Prune old
	pruned := ts[:0]
	for _, t := range ts {
		if t >= cutoff {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= max {
		m.rate[key] = pruned
		return false, nil
	}
	m.rate[key] = append(pruned, now)
	return true, nil
}

// --- Snapshot archive -------------------------------------------------------

func (m *MockStore) SaveSnapshot(rec storage.SnapshotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("SaveSnapshot"); err != nil {
		return err
	}
	if rec.TakenAt.IsZero() {
		rec.TakenAt = time.Now()
	}
	doc := make([]byte, len(rec.Document))
	copy(doc, rec.Document)
	rec.Document = doc
	m.snapshots = append(m.snapshots, rec)
	sort.SliceStable(m.snapshots, func(i, j int) bool {
		return m.snapshots[i].TakenAt.Before(m.snapshots[j].TakenAt)
	})
	return nil
}

func (m *MockStore) LatestSnapshot() (*storage.SnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("LatestSnapshot"); err != nil {
		return nil, err
	}
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	rec := m.snapshots[len(m.snapshots)-1]
	return &rec, nil
}

func (m *MockStore) ListSnapshots() ([]storage.SnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("ListSnapshots"); err != nil {
		return nil, err
	}
	out := make([]storage.SnapshotRecord, len(m.snapshots))
	copy(out, m.snapshots)
	return out, nil
}

// --- Janitor helpers --------------------------------------------------------

func (m *MockStore) PruneExpiredRateEntries(window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("PruneExpiredRateEntries"); err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-window).UnixNano()
	total := 0
	for key, ts := range m.rate {
		pruned := ts[:0]
		for _, t := range ts {
			if t >= cutoff {
				pruned = append(pruned, t)
			}
		}
		total += len(ts) - len(pruned)
		if len(pruned) == 0 {
			delete(m.rate, key)
		} else {
			m.rate[key] = pruned
		}
	}
	return total, nil
}

func (m *MockStore) PruneSnapshots(keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("PruneSnapshots"); err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	excess := len(m.snapshots) - keep
	if excess <= 0 {
		return 0, nil
	}
	m.snapshots = append([]storage.SnapshotRecord(nil), m.snapshots[excess:]...)
	return excess, nil
}

// --- Utility ----------------------------------------------------------------

func (m *MockStore) SizeBytes() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("SizeBytes"); err != nil {
		return 0, err
	}
	return m.Size, nil
}

func (m *MockStore) Close() error {
	return nil
}
