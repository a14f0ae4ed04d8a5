// Package stats computes per-community member statistics for the counters.
package stats

import (
	"context"
	"fmt"
	"strconv"

	"github.com/developingchet/guild-counter-sync/internal/platform"
	"github.com/rs/zerolog"
)

// Metric identifies one statistic. Its value is also the label index the
// metric is bound to at setup time.
type Metric int

const (
	MetricTotal Metric = iota
	MetricActive
	MetricVoice
	MetricBoosts
)

// MetricCount is the number of counters a community can display.
const MetricCount = 4

var metricNames = [MetricCount]string{"total", "active", "voice", "boosts"}
var metricIcons = [MetricCount]string{"👥", "🟢", "🔊", "🚀"}

func (m Metric) String() string {
	if m < 0 || int(m) >= MetricCount {
		return "metric(" + strconv.Itoa(int(m)) + ")"
	}
	return metricNames[m]
}

// Icon returns the emoji associated with the metric, for display templates.
func (m Metric) Icon() string {
	if m < 0 || int(m) >= MetricCount {
		return ""
	}
	return metricIcons[m]
}

// Snapshot is the result of one aggregation pass. It is not retained.
type Snapshot struct {
	Total  int
	Active int
	Voice  int
	Boosts int
}

// Value returns the count for m.
func (s Snapshot) Value(m Metric) int {
	switch m {
	case MetricTotal:
		return s.Total
	case MetricActive:
		return s.Active
	case MetricVoice:
		return s.Voice
	case MetricBoosts:
		return s.Boosts
	}
	return 0
}

// ErrDataUnavailable is returned when the community's data could not be read.
// The caller skips the community for the current pass.
type ErrDataUnavailable struct {
	GuildID string
	Err     error
}

func (e *ErrDataUnavailable) Error() string {
	return fmt.Sprintf("data unavailable for guild %s: %v", e.GuildID, e.Err)
}

func (e *ErrDataUnavailable) Unwrap() error { return e.Err }

// Aggregator computes snapshots from fresh platform reads.
type Aggregator struct {
	platform platform.Platform
	log      zerolog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(p platform.Platform, log zerolog.Logger) *Aggregator {
	return &Aggregator{platform: p, log: log}
}

// ComputeSnapshot fetches the guild and its full member list and partitions it.
// Nothing is cached between calls since presence and voice state are volatile.
func (a *Aggregator) ComputeSnapshot(ctx context.Context, guildID string) (Snapshot, error) {
	guild, err := a.platform.Guild(ctx, guildID)
	if err != nil {
		return Snapshot{}, &ErrDataUnavailable{GuildID: guildID, Err: err}
	}
	members, err := a.platform.Members(ctx, guildID)
	if err != nil {
		return Snapshot{}, &ErrDataUnavailable{GuildID: guildID, Err: err}
	}

	snap := Count(members)
	if guild.BoostCount > 0 {
		snap.Boosts = guild.BoostCount
	}

	a.log.Debug().Str("guild_id", guildID).
		Int("total", snap.Total).Int("active", snap.Active).
		Int("voice", snap.Voice).Int("boosts", snap.Boosts).
		Msg("snapshot computed")
	return snap, nil
}

// Count partitions a member list. Active and voice are independent tests, so
// a member may count towards both.
func Count(members []platform.Member) Snapshot {
	var s Snapshot
	s.Total = len(members)
	for _, m := range members {
		if m.Status.Active() {
			s.Active++
		}
		if m.VoiceChannelID != "" {
			s.Voice++
		}
	}
	return s
}
