package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/developingchet/guild-counter-sync/internal/platform"
	"github.com/developingchet/guild-counter-sync/internal/testutil"
	"github.com/rs/zerolog"
)

func TestCount(t *testing.T) {
	members := []platform.Member{
		{UserID: "1", Status: platform.StatusOnline},
		{UserID: "2", Status: platform.StatusIdle, VoiceChannelID: "vc"},
		{UserID: "3", Status: platform.StatusDoNotDisturb},
		{UserID: "4", Status: platform.StatusOffline, VoiceChannelID: "vc"},
		{UserID: "5", Status: platform.StatusInvisible},
		{UserID: "6", Bot: true, Status: platform.StatusOnline},
	}
	got := Count(members)
	want := Snapshot{Total: 6, Active: 4, Voice: 2}
	if got != want {
		t.Errorf("Count: got %+v, want %+v", got, want)
	}
}

func TestCountEmpty(t *testing.T) {
	if got := Count(nil); got != (Snapshot{}) {
		t.Errorf("Count(nil): got %+v", got)
	}
}

func TestSnapshotValue(t *testing.T) {
	s := Snapshot{Total: 120, Active: 45, Voice: 7, Boosts: 3}
	cases := map[Metric]int{
		MetricTotal:  120,
		MetricActive: 45,
		MetricVoice:  7,
		MetricBoosts: 3,
		Metric(9):    0,
	}
	for m, want := range cases {
		if got := s.Value(m); got != want {
			t.Errorf("Value(%s): got %d, want %d", m, got, want)
		}
	}
}

func TestMetricStringAndIcon(t *testing.T) {
	if MetricVoice.String() != "voice" || MetricVoice.Icon() != "🔊" {
		t.Errorf("voice: %s %s", MetricVoice, MetricVoice.Icon())
	}
	if Metric(-1).Icon() != "" {
		t.Error("out-of-range metric should have no icon")
	}
}

func TestComputeSnapshot(t *testing.T) {
	p := testutil.NewMockPlatform()
	p.AddGuild(platform.Guild{ID: "g1", BoostCount: 5})
	p.SetMembers("g1", []platform.Member{
		{UserID: "1", Status: platform.StatusOnline, VoiceChannelID: "vc"},
		{UserID: "2", Status: platform.StatusOffline},
	})

	a := NewAggregator(p, zerolog.Nop())
	snap, err := a.ComputeSnapshot(context.Background(), "g1")
	if err != nil {
		t.Fatalf("ComputeSnapshot: %v", err)
	}
	want := Snapshot{Total: 2, Active: 1, Voice: 1, Boosts: 5}
	if snap != want {
		t.Errorf("got %+v, want %+v", snap, want)
	}
}

func TestComputeSnapshotFetchesFreshEachCall(t *testing.T) {
	p := testutil.NewMockPlatform()
	p.AddGuild(platform.Guild{ID: "g1"})
	p.SetMembers("g1", []platform.Member{{UserID: "1"}})
	a := NewAggregator(p, zerolog.Nop())

	first, _ := a.ComputeSnapshot(context.Background(), "g1")
	p.SetMembers("g1", []platform.Member{{UserID: "1"}, {UserID: "2"}})
	second, _ := a.ComputeSnapshot(context.Background(), "g1")

	if first.Total != 1 || second.Total != 2 {
		t.Errorf("expected totals 1 then 2, got %d then %d", first.Total, second.Total)
	}
	if p.Calls("Members") != 2 {
		t.Errorf("expected 2 member fetches, got %d", p.Calls("Members"))
	}
}

func TestComputeSnapshotDataUnavailable(t *testing.T) {
	p := testutil.NewMockPlatform()
	p.AddGuild(platform.Guild{ID: "g1"})
	p.SetGuildError("g1", &platform.ErrForbidden{Msg: "missing access"})
	a := NewAggregator(p, zerolog.Nop())

	_, err := a.ComputeSnapshot(context.Background(), "g1")
	var du *ErrDataUnavailable
	if !errors.As(err, &du) {
		t.Fatalf("expected ErrDataUnavailable, got %T (%v)", err, err)
	}
	if du.GuildID != "g1" {
		t.Errorf("GuildID: got %q", du.GuildID)
	}
	var fb *platform.ErrForbidden
	if !errors.As(err, &fb) {
		t.Error("underlying platform error should unwrap")
	}

	// unknown guild fails at the guild read
	_, err = a.ComputeSnapshot(context.Background(), "missing")
	if !errors.As(err, &du) {
		t.Fatalf("expected ErrDataUnavailable for unknown guild, got %v", err)
	}
}
