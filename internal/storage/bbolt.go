package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketRate      = "rate"
	bucketSnapshots = "snapshots"
)

type bboltStore struct {
	db *bolt.DB
	mu sync.Mutex // guards rate bucket sliding-window writes
}

// NewBboltStore opens (or creates) a bbolt database at dataDir/counters.db.
func NewBboltStore(dataDir string) (Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "counters.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt at %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketRate, bucketSnapshots} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &bboltStore{db: db}, nil
}

// ---- APIRateGate -----------------------------------------------------------

// APIRateGate implements a sliding-window rate limit backed by bbolt.
// The rate bucket stores a []int64 of Unix nanosecond timestamps per key.
// Returns allowed=true and appends the current timestamp if within budget.
func (s *bboltStore) APIRateGate(key string, window time.Duration, max int) (bool, error) {
	if max <= 0 {
		return true, nil // unlimited
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var allowed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRate))
		k := []byte(key)
		now := time.Now().UnixNano()
		cutoff := now - int64(window)

		var timestamps []int64
		if raw := b.Get(k); raw != nil {
			if err := msgpack.Unmarshal(raw, &timestamps); err != nil {
				return fmt.Errorf("unmarshal rate timestamps: %w", err)
			}
		}

		pruned := timestamps[:0]
		for _, ts := range timestamps {
			if ts >= cutoff {
				pruned = append(pruned, ts)
			}
		}

		if len(pruned) < max {
			allowed = true
			pruned = append(pruned, now)
		}
		data, err := msgpack.Marshal(pruned)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
	return allowed, err
}

// ---- Snapshot archive ------------------------------------------------------

// snapshotKey orders records by capture time under bbolt's byte ordering.
func snapshotKey(t time.Time) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(t.UTC().UnixNano()))
	return key
}

func (s *bboltStore) SaveSnapshot(rec SnapshotRecord) error {
	if rec.TakenAt.IsZero() {
		rec.TakenAt = time.Now()
	}
	rec.TakenAt = rec.TakenAt.UTC()
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal SnapshotRecord: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSnapshots)).Put(snapshotKey(rec.TakenAt), data)
	})
}

func (s *bboltStore) LatestSnapshot() (*SnapshotRecord, error) {
	var rec SnapshotRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket([]byte(bucketSnapshots)).Cursor().Last()
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// ListSnapshots returns archived snapshots, oldest first.
func (s *bboltStore) ListSnapshots() ([]SnapshotRecord, error) {
	var result []SnapshotRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSnapshots)).ForEach(func(k, v []byte) error {
			var rec SnapshotRecord
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal SnapshotRecord: %w", err)
			}
			result = append(result, rec)
			return nil
		})
	})
	return result, err
}

// ---- Janitor ---------------------------------------------------------------

func (s *bboltStore) PruneExpiredRateEntries(window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-window).UnixNano()
	var pruned int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRate))
		var emptied [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var timestamps []int64
			if err := msgpack.Unmarshal(v, &timestamps); err != nil {
				return nil // skip corrupt entries
			}
			before := len(timestamps)
			filtered := timestamps[:0]
			for _, ts := range timestamps {
				if ts >= cutoff {
					filtered = append(filtered, ts)
				}
			}
			pruned += before - len(filtered)
			if len(filtered) == 0 {
				key := make([]byte, len(k))
				copy(key, k)
				emptied = append(emptied, key)
				return nil
			}
			data, err := msgpack.Marshal(filtered)
			if err != nil {
				return err
			}
			return b.Put(k, data)
		}); err != nil {
			return err
		}
		for _, k := range emptied {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return pruned, err
}

// PruneSnapshots deletes all but the newest keep snapshots.
func (s *bboltStore) PruneSnapshots(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	var pruned int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSnapshots))
		excess := b.Stats().KeyN - keep
		if excess <= 0 {
			return nil
		}
		var toDelete [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && len(toDelete) < excess; k, _ = c.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			toDelete = append(toDelete, key)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	return pruned, err
}

// ---- Utility ---------------------------------------------------------------

func (s *bboltStore) SizeBytes() (int64, error) {
	info, err := os.Stat(s.db.Path())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *bboltStore) Close() error {
	return s.db.Close()
}
