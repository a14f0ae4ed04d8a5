package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/developingchet/guild-counter-sync/internal/metrics"
	"github.com/developingchet/guild-counter-sync/internal/platform"
	"github.com/developingchet/guild-counter-sync/internal/stats"
	"github.com/developingchet/guild-counter-sync/internal/storage"
	"github.com/rs/zerolog"
)

// ReconcileResult summarizes one reconcile pass over a community's surfaces.
type ReconcileResult struct {
	GuildID   string
	Renamed   int
	Unchanged int
	DryRun    int // renames computed but not sent
	Dangling  []*ErrSurfaceMissing
	Failures  []*ErrSurfaceUpdateFailed
	Elapsed   time.Duration
}

// Errors returns every per-surface problem of the pass.
func (r *ReconcileResult) Errors() []error {
	out := make([]error, 0, len(r.Dangling)+len(r.Failures))
	for _, d := range r.Dangling {
		out = append(out, d)
	}
	for _, f := range r.Failures {
		out = append(out, f)
	}
	return out
}

// OK reports whether every bound surface is present and up to date.
func (r *ReconcileResult) OK() bool {
	return len(r.Dangling) == 0 && len(r.Failures) == 0
}

// ReconcilerConfig holds reconciler configuration.
type ReconcilerConfig struct {
	DryRun       bool
	RenameWindow time.Duration
	RenameMax    int // renames per surface per window; 0 disables the gate
}

// Reconciler renames display surfaces whose name differs from the desired one.
type Reconciler struct {
	cfg      ReconcilerConfig
	platform platform.Platform
	store    storage.Store
	namer    *DisplayNamer
	log      zerolog.Logger
}

// NewReconciler constructs a Reconciler. store may be nil when no rename
// gate is wanted.
func NewReconciler(cfg ReconcilerConfig, p platform.Platform, store storage.Store, namer *DisplayNamer, log zerolog.Logger) *Reconciler {
	return &Reconciler{cfg: cfg, platform: p, store: store, namer: namer, log: log}
}

// Reconcile brings every bound surface of cfg in line with snap. Surfaces are
// handled independently: a missing or failing surface never stops the others.
// A surface whose name already matches costs one read and no write.
func (r *Reconciler) Reconcile(ctx context.Context, cfg Config, snap stats.Snapshot) *ReconcileResult {
	start := time.Now()
	result := &ReconcileResult{GuildID: cfg.GuildID}
	log := r.log.With().Str("guild_id", cfg.GuildID).Logger()

	for _, b := range cfg.Bindings() {
		r.reconcileSurface(ctx, cfg.GuildID, b, snap, result, log)
	}

	metrics.DanglingSurfaces.WithLabelValues(cfg.GuildID).Set(float64(len(result.Dangling)))
	result.Elapsed = time.Since(start)
	return result
}

func (r *Reconciler) reconcileSurface(ctx context.Context, guildID string, b Binding, snap stats.Snapshot,
	result *ReconcileResult, log zerolog.Logger) {

	fail := func(reason string, err error) {
		metrics.Renames.WithLabelValues("error").Inc()
		f := &ErrSurfaceUpdateFailed{GuildID: guildID, ChannelID: b.Slot, Reason: reason, Err: err}
		result.Failures = append(result.Failures, f)
		log.Warn().Err(err).Str("channel_id", b.Slot).Str("reason", reason).Msg("display surface update failed")
	}

	desired, err := r.namer.Name(b, snap.Value(b.Metric))
	if err != nil {
		fail(ReasonRender, err)
		return
	}

	ch, err := r.platform.Channel(ctx, b.Slot)
	if err != nil {
		var nf *platform.ErrNotFound
		if errors.As(err, &nf) {
			metrics.Renames.WithLabelValues("dangling").Inc()
			result.Dangling = append(result.Dangling, &ErrSurfaceMissing{GuildID: guildID, ChannelID: b.Slot})
			log.Warn().Str("channel_id", b.Slot).Str("label", b.Label).
				Msg("display surface missing; run setup again to recreate it")
			return
		}
		fail(ReasonRead, err)
		return
	}

	if reason := surfaceMismatch(ch, guildID); reason != "" {
		metrics.Renames.WithLabelValues("dangling").Inc()
		result.Dangling = append(result.Dangling, &ErrSurfaceMissing{GuildID: guildID, ChannelID: b.Slot, Reason: reason})
		log.Warn().Str("channel_id", b.Slot).Str("reason", reason).
			Msg("configured surface is not a voice channel of this guild; not renaming it")
		return
	}

	if ch.Name == desired {
		metrics.Renames.WithLabelValues("unchanged").Inc()
		result.Unchanged++
		return
	}

	if r.cfg.DryRun {
		metrics.Renames.WithLabelValues("dry_run").Inc()
		result.DryRun++
		log.Info().Str("channel_id", b.Slot).Str("from", ch.Name).Str("to", desired).Msg("[dry-run] rename")
		return
	}

	if r.store != nil && r.cfg.RenameMax > 0 {
		allowed, gateErr := r.store.APIRateGate("rename:"+b.Slot, r.cfg.RenameWindow, r.cfg.RenameMax)
		if gateErr != nil {
			fail(ReasonRateLimited, fmt.Errorf("APIRateGate: %w", gateErr))
			return
		}
		if !allowed {
			metrics.Renames.WithLabelValues("rate_limited").Inc()
			result.Failures = append(result.Failures, &ErrSurfaceUpdateFailed{
				GuildID: guildID, ChannelID: b.Slot, Reason: ReasonRateLimited,
				Err: fmt.Errorf("rename budget of %d per %s spent", r.cfg.RenameMax, r.cfg.RenameWindow),
			})
			log.Debug().Str("channel_id", b.Slot).Msg("rename deferred: rate gate closed")
			return
		}
	}

	if err := r.platform.RenameChannel(ctx, b.Slot, desired); err != nil {
		fail(failureReason(err), err)
		return
	}
	metrics.Renames.WithLabelValues("renamed").Inc()
	result.Renamed++
	log.Debug().Str("channel_id", b.Slot).Str("from", ch.Name).Str("to", desired).Msg("display surface renamed")
}

// surfaceMismatch reports why ch cannot be a display surface of guildID, or
// "" when it can.
func surfaceMismatch(ch platform.Channel, guildID string) string {
	if ch.GuildID != guildID {
		return "belongs to another guild"
	}
	if ch.Kind != platform.ChannelKindVoice {
		return "not a voice channel"
	}
	return ""
}

// CheckSlots verifies that every slot of cfg is a voice channel of cfg's
// guild. Slots that no longer exist pass; the reconciler reports them as
// dangling.
func CheckSlots(ctx context.Context, p platform.Platform, cfg Config) error {
	for _, slot := range cfg.Slots {
		ch, err := p.Channel(ctx, slot)
		if err != nil {
			var nf *platform.ErrNotFound
			if errors.As(err, &nf) {
				continue
			}
			return fmt.Errorf("read channel %s: %w", slot, err)
		}
		if reason := surfaceMismatch(ch, cfg.GuildID); reason != "" {
			return &ErrSurfaceNotOwned{GuildID: cfg.GuildID, ChannelID: slot, Reason: reason}
		}
	}
	return nil
}

func failureReason(err error) string {
	var rl *platform.ErrRateLimit
	if errors.As(err, &rl) {
		return ReasonRateLimited
	}
	var fb *platform.ErrForbidden
	if errors.As(err, &fb) {
		return ReasonForbidden
	}
	return ReasonAPI
}
