// Package sweep runs aggregate-then-reconcile passes over configured communities.
package sweep

import (
	"context"
	"time"

	"github.com/developingchet/guild-counter-sync/internal/counter"
	"github.com/developingchet/guild-counter-sync/internal/metrics"
	"github.com/developingchet/guild-counter-sync/internal/stats"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Trigger sources.
const (
	TriggerStartup  = "startup"
	TriggerPeriodic = "periodic"
	TriggerEvent    = "event"
	TriggerManual   = "manual"
)

// Reconciler applies a snapshot to a configuration. *counter.Reconciler implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, cfg counter.Config, snap stats.Snapshot) *counter.ReconcileResult
}

// GuildOutcome is the per-community part of a sweep.
type GuildOutcome struct {
	GuildID   string
	Snapshot  stats.Snapshot
	Reconcile *counter.ReconcileResult // nil when aggregation failed
	Err       error                    // aggregation error
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Trigger  string
	Outcomes []GuildOutcome // in configured guild order
	Elapsed  time.Duration
}

// Failed returns the number of communities skipped because aggregation failed.
func (r *SweepResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Renamed returns the total number of renames across communities.
func (r *SweepResult) Renamed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Reconcile != nil {
			n += o.Reconcile.Renamed
		}
	}
	return n
}

// Sweeper runs sweeps. Overlapping sweeps of the same community are allowed;
// the reconciler's name comparison makes the race harmless.
type Sweeper struct {
	store       *counter.Store
	aggregator  counter.Snapshotter
	reconciler  Reconciler
	concurrency int
	log         zerolog.Logger
}

// New constructs a Sweeper. concurrency bounds communities processed in parallel.
func New(store *counter.Store, aggregator counter.Snapshotter, reconciler Reconciler, concurrency int, log zerolog.Logger) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		store:       store,
		aggregator:  aggregator,
		reconciler:  reconciler,
		concurrency: concurrency,
		log:         log,
	}
}

// SweepAll attempts every configured community exactly once. A community that
// fails aggregation is logged and skipped; the others still run.
func (s *Sweeper) SweepAll(ctx context.Context, trigger string) *SweepResult {
	start := time.Now()
	ids := s.store.List()
	result := &SweepResult{Trigger: trigger, Outcomes: make([]GuildOutcome, len(ids))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			// each goroutine owns Outcomes[i]
			if outcome, ok := s.sweepOne(gctx, id); ok {
				result.Outcomes[i] = outcome
			}
			return nil // per-community errors never cancel the sweep
		})
	}
	_ = g.Wait()

	// drop slots of communities unconfigured mid-sweep
	kept := result.Outcomes[:0]
	for _, o := range result.Outcomes {
		if o.GuildID != "" {
			kept = append(kept, o)
		}
	}
	result.Outcomes = kept
	result.Elapsed = time.Since(start)

	status := "success"
	if result.Failed() > 0 {
		status = "partial"
	}
	metrics.SweepsTotal.WithLabelValues(trigger, status).Inc()
	metrics.SweepDuration.WithLabelValues(trigger).Observe(result.Elapsed.Seconds())

	s.log.Info().Str("trigger", trigger).Int("communities", len(result.Outcomes)).
		Int("renamed", result.Renamed()).Int("failed", result.Failed()).
		Dur("elapsed", result.Elapsed).Msg("sweep complete")
	return result
}

// SweepGuild sweeps one community. It returns counter.ErrConfigurationAbsent
// for an unconfigured community and the aggregation error otherwise.
func (s *Sweeper) SweepGuild(ctx context.Context, guildID string) (GuildOutcome, error) {
	outcome, ok := s.sweepOne(ctx, guildID)
	if !ok {
		return GuildOutcome{GuildID: guildID}, counter.ErrConfigurationAbsent
	}
	return outcome, outcome.Err
}

// sweepOne reports ok=false when the community has no configuration.
func (s *Sweeper) sweepOne(ctx context.Context, guildID string) (GuildOutcome, bool) {
	cfg, ok := s.store.Get(guildID)
	if !ok {
		return GuildOutcome{}, false
	}
	outcome := GuildOutcome{GuildID: guildID}

	snap, err := s.aggregator.ComputeSnapshot(ctx, guildID)
	if err != nil {
		metrics.CommunitiesSwept.WithLabelValues("skipped").Inc()
		s.log.Warn().Err(err).Str("guild_id", guildID).Msg("community skipped for this sweep")
		outcome.Err = err
		return outcome, true
	}
	outcome.Snapshot = snap
	outcome.Reconcile = s.reconciler.Reconcile(ctx, cfg, snap)

	status := "success"
	if !outcome.Reconcile.OK() {
		status = "degraded"
	}
	metrics.CommunitiesSwept.WithLabelValues(status).Inc()
	return outcome, true
}
