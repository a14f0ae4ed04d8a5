// Package scheduler decides when sweeps run: once after startup, on a fixed
// interval, and after bursts of gateway activity.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/developingchet/guild-counter-sync/internal/pool"
	"github.com/developingchet/guild-counter-sync/internal/sweep"
	"github.com/rs/zerolog"
)

// Sweeper runs sweeps. *sweep.Sweeper implements it.
type Sweeper interface {
	SweepAll(ctx context.Context, trigger string) *sweep.SweepResult
	SweepGuild(ctx context.Context, guildID string) (sweep.GuildOutcome, error)
}

// Config holds scheduler timing.
type Config struct {
	Interval     time.Duration // periodic sweep
	StartupDelay time.Duration // one-shot sweep after MarkReady
	Debounce     time.Duration // quiet delay for event sweeps
	QueueDepth   int           // pending sweeps before requests are dropped
}

// Scheduler feeds the startup timer, the periodic ticker and debounced
// events into one sweep queue served by a single worker, so the sweep rate
// stays bounded whatever the event rate.
type Scheduler struct {
	cfg       Config
	sweeper   Sweeper
	queue     *pool.Pool
	debouncer *Debouncer
	log       zerolog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// New constructs a Scheduler. Call Run to start it.
func New(cfg Config, sweeper Sweeper, log zerolog.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be > 0; got %s", cfg.Interval)
	}
	if cfg.Debounce <= 0 {
		return nil, fmt.Errorf("debounce must be > 0; got %s", cfg.Debounce)
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	s := &Scheduler{
		cfg:     cfg,
		sweeper: sweeper,
		log:     log,
		ready:   make(chan struct{}),
	}
	q, err := pool.New(pool.Config{Workers: 1, QueueDepth: cfg.QueueDepth}, s.handle, log)
	if err != nil {
		return nil, err
	}
	s.queue = q
	s.debouncer = NewDebouncer(cfg.Debounce, func() {
		s.Request(sweep.TriggerEvent, "")
	})
	return s, nil
}

// MarkReady arms the startup sweep. Only the first call has an effect.
func (s *Scheduler) MarkReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Notify records gateway activity; a global sweep follows after the quiet delay.
func (s *Scheduler) Notify() {
	if s.debouncer.Trigger() {
		s.log.Debug().Dur("delay", s.cfg.Debounce).Msg("event sweep scheduled")
	}
}

// Request queues a sweep. An empty guildID sweeps every configured guild.
// A request matching one already waiting is merged into it. It reports false
// when the queue is full or the scheduler has stopped.
func (s *Scheduler) Request(trigger, guildID string) bool {
	return s.queue.Enqueue(pool.SweepJob{Trigger: trigger, GuildID: guildID}) != pool.Dropped
}

// QueueDepth returns the number of queued sweeps.
func (s *Scheduler) QueueDepth() int {
	return s.queue.Depth()
}

// Run drives the timers until ctx is cancelled. In-flight sweeps are
// abandoned on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.queue.Start(ctx)
	defer s.shutdown()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	ready := s.ready
	var startup <-chan time.Time
	var startupTimer *time.Timer
	defer func() {
		if startupTimer != nil {
			startupTimer.Stop()
		}
	}()

	s.log.Info().Dur("interval", s.cfg.Interval).Dur("startup_delay", s.cfg.StartupDelay).
		Dur("debounce", s.cfg.Debounce).Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ready:
			ready = nil
			startupTimer = time.NewTimer(s.cfg.StartupDelay)
			startup = startupTimer.C
		case <-startup:
			startup = nil
			s.Request(sweep.TriggerStartup, "")
		case <-ticker.C:
			s.Request(sweep.TriggerPeriodic, "")
		}
	}
}

func (s *Scheduler) shutdown() {
	s.debouncer.Stop()
	s.queue.Stop()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) handle(ctx context.Context, job pool.SweepJob) {
	if wait := time.Since(job.Queued); wait > s.cfg.Interval {
		s.log.Warn().Dur("queued_for", wait).Str("trigger", job.Trigger).Msg("sweep waited longer than the sweep interval")
	}
	if job.GuildID == "" {
		s.sweeper.SweepAll(ctx, job.Trigger)
		return
	}
	if _, err := s.sweeper.SweepGuild(ctx, job.GuildID); err != nil {
		s.log.Warn().Err(err).Str("guild_id", job.GuildID).Str("trigger", job.Trigger).Msg("guild sweep incomplete")
	}
}
