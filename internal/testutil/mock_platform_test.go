package testutil_test

import (
	"context"
	"errors"
	"testing"

	"github.com/developingchet/guild-counter-sync/internal/platform"
	"github.com/developingchet/guild-counter-sync/internal/testutil"
)

var _ platform.Platform = (*testutil.MockPlatform)(nil)

func TestMockPlatform_Channels(t *testing.T) {
	ctx := context.Background()

	t.Run("create rename delete", func(t *testing.T) {
		m := testutil.NewMockPlatform()
		ch, err := m.CreateDisplayChannel(ctx, "g1", "cat", "Members ⏳")
		if err != nil {
			t.Fatalf("CreateDisplayChannel: %v", err)
		}
		if ch.Kind != platform.ChannelKindVoice || ch.ParentID != "cat" {
			t.Fatalf("unexpected channel %+v", ch)
		}
		if err := m.RenameChannel(ctx, ch.ID, "Members 3"); err != nil {
			t.Fatalf("RenameChannel: %v", err)
		}
		if name, _ := m.ChannelName(ch.ID); name != "Members 3" {
			t.Errorf("name after rename: %q", name)
		}
		if err := m.DeleteChannel(ctx, ch.ID); err != nil {
			t.Fatalf("DeleteChannel: %v", err)
		}
		if _, ok := m.ChannelName(ch.ID); ok {
			t.Error("channel should be gone")
		}
		if len(m.Renames()) != 1 || len(m.Deleted()) != 1 {
			t.Errorf("renames=%v deleted=%v", m.Renames(), m.Deleted())
		}
	})

	t.Run("missing channel is not found", func(t *testing.T) {
		m := testutil.NewMockPlatform()
		var nf *platform.ErrNotFound
		if err := m.RenameChannel(ctx, "nope", "x"); !errors.As(err, &nf) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := m.Channel(ctx, "nope"); !errors.As(err, &nf) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMockPlatform_GuildErrors(t *testing.T) {
	ctx := context.Background()
	m := testutil.NewMockPlatform()
	m.AddGuild(platform.Guild{ID: "g1"})
	m.SetMembers("g1", []platform.Member{{UserID: "u1"}})

	m.SetGuildError("g1", &platform.ErrForbidden{Msg: "missing access"})
	for i := 0; i < 2; i++ {
		if _, err := m.Members(ctx, "g1"); err == nil {
			t.Fatalf("call %d: expected persistent guild error", i+1)
		}
	}
	m.SetGuildError("g1", nil)
	members, err := m.Members(ctx, "g1")
	if err != nil || len(members) != 1 {
		t.Fatalf("after clearing: members=%v err=%v", members, err)
	}
	if m.Calls("Members") != 3 {
		t.Errorf("expected 3 Members calls, got %d", m.Calls("Members"))
	}
}

func TestMockPlatform_DeleteErrors(t *testing.T) {
	ctx := context.Background()
	m := testutil.NewMockPlatform()
	m.AddChannel(platform.Channel{ID: "c1"})
	m.AddChannel(platform.Channel{ID: "c2"})

	m.SetDeleteError("c1", &platform.ErrForbidden{Msg: "missing permissions"})
	if err := m.DeleteChannel(ctx, "c1"); err == nil {
		t.Fatal("expected delete error for c1")
	}
	if err := m.DeleteChannel(ctx, "c2"); err != nil {
		t.Fatalf("c2 should delete: %v", err)
	}
	m.SetDeleteError("c1", nil)
	if err := m.DeleteChannel(ctx, "c1"); err != nil {
		t.Fatalf("after clearing: %v", err)
	}
	if got := m.Deleted(); len(got) != 2 || got[0] != "c2" || got[1] != "c1" {
		t.Errorf("Deleted() = %v", got)
	}
}
