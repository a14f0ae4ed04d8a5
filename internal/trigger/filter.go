// Package trigger decides which gateway events schedule a resweep.
package trigger

import (
	"github.com/developingchet/guild-counter-sync/internal/metrics"
	"github.com/rs/zerolog"
)

// Kind classifies a gateway event.
type Kind string

const (
	KindVoiceState   Kind = "voice_state"
	KindMemberUpdate Kind = "member_update"
	KindMemberJoin   Kind = "member_join"
	KindMemberLeave  Kind = "member_leave"
	KindGuildUpdate  Kind = "guild_update"
	KindPresence     Kind = "presence"
)

// Event carries only what the filter needs: which community, and for voice
// events the channel before and after.
type Event struct {
	Kind         Kind
	GuildID      string
	UserID       string
	OldChannelID string
	NewChannelID string
}

// FilterConfig holds the parameters for the event pipeline.
type FilterConfig struct {
	// Stage 1: event kinds that may trigger a resweep
	Kinds []Kind

	// Stage 2: reports whether a guild has counters configured
	Configured func(guildID string) bool
}

// DefaultKinds are the event kinds that change a displayed count.
// Presence updates are left to the periodic sweep.
var DefaultKinds = []Kind{KindVoiceState, KindMemberUpdate, KindMemberJoin, KindMemberLeave, KindGuildUpdate}

// stage labels for metrics
const (
	stageKind       = "1_kind"
	stageConfigured = "2_configured"
	stageVoice      = "3_voice_unchanged"
)

// Filter runs an event through the pipeline and reports whether it should
// schedule a resweep.
func Filter(ev Event, cfg FilterConfig, log zerolog.Logger) bool {
	metrics.EventsReceived.WithLabelValues(string(ev.Kind)).Inc()

	// Stage 1: supported kind
	if !containsKind(cfg.Kinds, ev.Kind) {
		metrics.EventsFiltered.WithLabelValues(stageKind, "unsupported_kind").Inc()
		log.Trace().Str("kind", string(ev.Kind)).Msg("filtered: unsupported event kind")
		return false
	}

	// Stage 2: community has counters
	if ev.GuildID == "" || cfg.Configured == nil || !cfg.Configured(ev.GuildID) {
		metrics.EventsFiltered.WithLabelValues(stageConfigured, "not_configured").Inc()
		log.Trace().Str("guild_id", ev.GuildID).Msg("filtered: guild not configured")
		return false
	}

	// Stage 3: mute, deafen and stream toggles keep the channel
	if ev.Kind == KindVoiceState && ev.OldChannelID == ev.NewChannelID {
		metrics.EventsFiltered.WithLabelValues(stageVoice, "channel_unchanged").Inc()
		log.Trace().Str("guild_id", ev.GuildID).Str("user_id", ev.UserID).Msg("filtered: voice channel unchanged")
		return false
	}

	return true
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}
