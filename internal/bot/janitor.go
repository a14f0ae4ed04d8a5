package bot

import (
	"context"
	"time"

	"github.com/developingchet/guild-counter-sync/internal/counter"
	"github.com/developingchet/guild-counter-sync/internal/metrics"
	"github.com/developingchet/guild-counter-sync/internal/storage"
	"github.com/rs/zerolog"
)

// QueueDepther reports the sweep queue length. *scheduler.Scheduler implements it.
type QueueDepther interface {
	QueueDepth() int
}

// ArchivePruner trims the snapshot archive. *snapshot.Manager implements it.
type ArchivePruner interface {
	Prune() (int, error)
}

// Janitor performs periodic housekeeping: pruning rate entries and old
// archived exports, updating gauges.
type Janitor struct {
	store      storage.Store
	archive    ArchivePruner
	counters   *counter.Store
	queue      QueueDepther
	interval   time.Duration
	rateWindow time.Duration
	log        zerolog.Logger

	lastConfigured int
}

// NewJanitor creates a Janitor. archive and queue may be nil.
func NewJanitor(store storage.Store, archive ArchivePruner, counters *counter.Store, queue QueueDepther,
	interval, rateWindow time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		store:          store,
		archive:        archive,
		counters:       counters,
		queue:          queue,
		interval:       interval,
		rateWindow:     rateWindow,
		log:            log,
		lastConfigured: -1,
	}
}

// Run executes the janitor loop until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.tick()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *Janitor) tick() {
	// Rename gate entries older than the window no longer count
	if j.rateWindow > 0 {
		if _, err := j.store.PruneExpiredRateEntries(j.rateWindow); err != nil {
			j.log.Warn().Err(err).Msg("janitor: prune expired rate entries failed")
		}
	}

	if j.archive != nil {
		pruned, err := j.archive.Prune()
		if err != nil {
			j.log.Warn().Err(err).Msg("janitor: prune snapshot archive failed")
		} else if pruned > 0 {
			j.log.Info().Int("count", pruned).Msg("janitor: pruned archived exports")
		}
	}

	size, err := j.store.SizeBytes()
	if err != nil {
		j.log.Warn().Err(err).Msg("janitor: read db size failed")
	} else {
		metrics.DBSizeBytes.Set(float64(size))
	}

	if j.queue != nil {
		metrics.SweepQueueDepth.Set(float64(j.queue.QueueDepth()))
	}

	if n := j.counters.Len(); n != j.lastConfigured {
		j.log.Info().Int("count", n).Msgf("%d counter configurations active", n)
		j.lastConfigured = n
	}

	j.log.Debug().Msg("janitor: tick complete")
}
