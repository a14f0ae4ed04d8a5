package testutil_test

import (
	"errors"
	"testing"
	"time"

	"github.com/developingchet/guild-counter-sync/internal/storage"
	"github.com/developingchet/guild-counter-sync/internal/testutil"
)

var _ storage.Store = (*testutil.MockStore)(nil)

func TestMockStore_RateGate(t *testing.T) {
	t.Run("budget is enforced", func(t *testing.T) {
		s := testutil.NewMockStore()
		for i := 0; i < 2; i++ {
			if ok, _ := s.APIRateGate("rename:c1", time.Minute, 2); !ok {
				t.Fatalf("call %d should be allowed", i+1)
			}
		}
		if ok, _ := s.APIRateGate("rename:c1", time.Minute, 2); ok {
			t.Fatal("3rd call should be denied")
		}
	})

	t.Run("denied key stays closed", func(t *testing.T) {
		s := testutil.NewMockStore()
		s.DenyRate("rename:c1")
		if ok, _ := s.APIRateGate("rename:c1", time.Minute, 0); ok {
			t.Fatal("denied key should be closed even when unlimited")
		}
		if ok, _ := s.APIRateGate("rename:c2", time.Minute, 0); !ok {
			t.Fatal("other keys should be open")
		}
	})

	t.Run("injected error is consumed", func(t *testing.T) {
		s := testutil.NewMockStore()
		s.SetError("APIRateGate", errors.New("boom"))
		if _, err := s.APIRateGate("k", time.Minute, 1); err == nil {
			t.Fatal("expected injected error")
		}
		if _, err := s.APIRateGate("k", time.Minute, 1); err != nil {
			t.Fatalf("error should be consumed, got %v", err)
		}
	})
}

func TestMockStore_Snapshots(t *testing.T) {
	s := testutil.NewMockStore()
	if rec, err := s.LatestSnapshot(); rec != nil || err != nil {
		t.Fatalf("empty store: rec=%v err=%v", rec, err)
	}

	base := time.Now()
	_ = s.SaveSnapshot(storage.SnapshotRecord{TakenAt: base.Add(time.Second), Document: []byte("b")})
	_ = s.SaveSnapshot(storage.SnapshotRecord{TakenAt: base, Document: []byte("a")})

	rec, _ := s.LatestSnapshot()
	if rec == nil || string(rec.Document) != "b" {
		t.Fatalf("latest should be the newest by TakenAt, got %+v", rec)
	}

	pruned, _ := s.PruneSnapshots(1)
	if pruned != 1 {
		t.Errorf("expected 1 pruned, got %d", pruned)
	}
	all, _ := s.ListSnapshots()
	if len(all) != 1 || string(all[0].Document) != "b" {
		t.Errorf("unexpected remaining snapshots: %+v", all)
	}
}
