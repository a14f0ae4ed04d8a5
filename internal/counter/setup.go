package counter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/developingchet/guild-counter-sync/internal/platform"
	"github.com/developingchet/guild-counter-sync/internal/stats"
	"github.com/rs/zerolog"
)

// Snapshotter computes a community snapshot. *stats.Aggregator implements it.
type Snapshotter interface {
	ComputeSnapshot(ctx context.Context, guildID string) (stats.Snapshot, error)
}

// SetupRequest carries the inputs of the setup action.
type SetupRequest struct {
	GuildID    string
	CategoryID string
	Labels     [MaxCounters]string // empty = counter disabled
}

// SetupResult reports what setup did.
type SetupResult struct {
	Config      Config
	Removed     int              // previous surfaces deleted
	Reconcile   *ReconcileResult // nil when no counters were configured or the snapshot failed
	SnapshotErr error            // first refresh failed; the next sweep fills the values in
	Cleared     bool             // zero labels: the configuration was removed
}

// ErrInvalidCategory is returned when the category does not exist or is not a
// category of the guild.
type ErrInvalidCategory struct {
	CategoryID string
	Reason     string
}

func (e *ErrInvalidCategory) Error() string {
	return fmt.Sprintf("invalid category %s: %s", e.CategoryID, e.Reason)
}

// Setup replaces a community's counters wholesale.
type Setup struct {
	platform   platform.Platform
	store      *Store
	namer      *DisplayNamer
	reconciler *Reconciler
	snapshots  Snapshotter
	log        zerolog.Logger
}

// NewSetup constructs the setup action.
func NewSetup(p platform.Platform, store *Store, namer *DisplayNamer, reconciler *Reconciler,
	snapshots Snapshotter, log zerolog.Logger) *Setup {
	return &Setup{
		platform:   p,
		store:      store,
		namer:      namer,
		reconciler: reconciler,
		snapshots:  snapshots,
		log:        log,
	}
}

// Run tears down the previous surfaces, creates one surface per non-empty
// label, stores the new configuration and refreshes the values once.
// If teardown fails the previous configuration is kept.
func (s *Setup) Run(ctx context.Context, req SetupRequest) (*SetupResult, error) {
	log := s.log.With().Str("guild_id", req.GuildID).Str("category_id", req.CategoryID).Logger()

	for i := range req.Labels {
		req.Labels[i] = strings.TrimSpace(req.Labels[i])
		if err := ValidateLabel(req.Labels[i]); err != nil {
			return nil, fmt.Errorf("label %d: %w", i+1, err)
		}
	}

	if err := s.checkCategory(ctx, req.GuildID, req.CategoryID); err != nil {
		return nil, err
	}

	result := &SetupResult{}
	if old, ok := s.store.Get(req.GuildID); ok {
		gone, removed, err := s.teardown(ctx, old, log)
		result.Removed = removed
		if err != nil {
			// Keep what is left of the old counters, minus the surfaces already gone.
			if rest := old.without(gone); rest.ActiveLabels() > 0 {
				s.store.Set(rest)
			} else {
				s.store.Delete(req.GuildID)
			}
			return result, fmt.Errorf("tear down previous counters: %w", err)
		}
	}

	cfg := Config{GuildID: req.GuildID, CategoryID: req.CategoryID, Labels: req.Labels}
	if cfg.ActiveLabels() == 0 {
		s.store.Delete(req.GuildID)
		result.Cleared = true
		result.Config = cfg
		log.Info().Int("removed", result.Removed).Msg("counters cleared")
		return result, nil
	}

	// Slot IDs are only known after creation.
	pending := cfg
	pending.Slots = make([]string, cfg.ActiveLabels())
	for _, b := range pending.Bindings() {
		name, err := s.namer.Placeholder(b)
		if err != nil {
			s.rollback(ctx, cfg.Slots, log)
			s.store.Delete(req.GuildID)
			return result, err
		}
		ch, err := s.platform.CreateDisplayChannel(ctx, req.GuildID, req.CategoryID, name)
		if err != nil {
			s.rollback(ctx, cfg.Slots, log)
			s.store.Delete(req.GuildID)
			return result, fmt.Errorf("create display surface %q: %w", b.Label, err)
		}
		cfg.Slots = append(cfg.Slots, ch.ID)
	}

	s.store.Set(cfg)
	result.Config = cfg.clone()
	log.Info().Int("removed", result.Removed).Strs("slots", cfg.Slots).Msg("counters configured")

	snap, err := s.snapshots.ComputeSnapshot(ctx, req.GuildID)
	if err != nil {
		result.SnapshotErr = err
		log.Warn().Err(err).Msg("initial counter refresh skipped")
		return result, nil
	}
	result.Reconcile = s.reconciler.Reconcile(ctx, cfg, snap)
	return result, nil
}

func (s *Setup) checkCategory(ctx context.Context, guildID, categoryID string) error {
	if categoryID == "" {
		return &ErrInvalidCategory{CategoryID: categoryID, Reason: "no category given"}
	}
	ch, err := s.platform.Channel(ctx, categoryID)
	if err != nil {
		var nf *platform.ErrNotFound
		if errors.As(err, &nf) {
			return &ErrInvalidCategory{CategoryID: categoryID, Reason: "not found"}
		}
		return fmt.Errorf("read category: %w", err)
	}
	if ch.Kind != platform.ChannelKindCategory {
		return &ErrInvalidCategory{CategoryID: categoryID, Reason: "not a category"}
	}
	if ch.GuildID != "" && ch.GuildID != guildID {
		return &ErrInvalidCategory{CategoryID: categoryID, Reason: "belongs to another guild"}
	}
	return nil
}

// teardown deletes every surface of cfg that is a voice channel of cfg's
// guild. Surfaces already gone are ignored and channels of other guilds are
// never touched. It returns the slots no longer usable and how many it deleted.
func (s *Setup) teardown(ctx context.Context, cfg Config, log zerolog.Logger) (map[string]bool, int, error) {
	gone := make(map[string]bool, len(cfg.Slots))
	removed := 0
	for _, slot := range cfg.Slots {
		ch, err := s.platform.Channel(ctx, slot)
		if err != nil {
			var nf *platform.ErrNotFound
			if errors.As(err, &nf) {
				gone[slot] = true
				continue
			}
			return gone, removed, fmt.Errorf("read %s: %w", slot, err)
		}
		if reason := surfaceMismatch(ch, cfg.GuildID); reason != "" {
			gone[slot] = true
			log.Warn().Str("channel_id", slot).Str("reason", reason).Msg("teardown: leaving channel alone")
			continue
		}
		if err := s.platform.DeleteChannel(ctx, slot); err != nil {
			var nf *platform.ErrNotFound
			if errors.As(err, &nf) {
				gone[slot] = true
				continue
			}
			return gone, removed, fmt.Errorf("delete %s: %w", slot, err)
		}
		gone[slot] = true
		removed++
	}
	return gone, removed, nil
}

// rollback removes surfaces created by a setup that could not finish.
func (s *Setup) rollback(ctx context.Context, slots []string, log zerolog.Logger) {
	for _, slot := range slots {
		if err := s.platform.DeleteChannel(ctx, slot); err != nil {
			log.Warn().Err(err).Str("channel_id", slot).Msg("rollback: could not delete display surface")
		}
	}
}
