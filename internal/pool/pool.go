// Package pool is the sweep queue: a bounded buffer of pending sweeps served
// by a fixed set of workers.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/developingchet/guild-counter-sync/internal/metrics"
	"github.com/rs/zerolog"
)

// SweepJob is a unit of work for the sweep queue.
type SweepJob struct {
	Trigger string // "startup", "periodic", "event" or "manual"
	GuildID string // empty means every configured guild
	Queued  time.Time
}

// key identifies jobs that would do the same work.
func (j SweepJob) key() string {
	if j.GuildID == "" {
		return "*"
	}
	return j.GuildID
}

// JobHandler runs one sweep. Sweeps are not retried: the next scheduled
// sweep picks up anything a failed one left behind.
type JobHandler func(ctx context.Context, job SweepJob)

// Config holds queue sizing.
type Config struct {
	Workers    int
	QueueDepth int
}

// Outcome reports what Enqueue did with a job.
type Outcome int

const (
	Queued  Outcome = iota // added to the buffer
	Merged                 // an identical job is already waiting
	Dropped                // buffer full or queue stopped
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "queued"
	case Merged:
		return "merged"
	}
	return "dropped"
}

// Pool buffers sweep jobs and runs them on its workers. A job whose guild
// (or the all-guilds job) is already waiting is merged into the waiting one.
type Pool struct {
	cfg     Config
	jobs    chan SweepJob
	handler JobHandler
	log     zerolog.Logger
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]bool
	closed  bool
}

// New creates a Pool with the given config and handler.
func New(cfg Config, handler JobHandler, log zerolog.Logger) (*Pool, error) {
	if cfg.Workers < 1 || cfg.Workers > 64 {
		return nil, fmt.Errorf("sweep workers must be 1-64, got %d", cfg.Workers)
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 4
	}
	return &Pool{
		cfg:     cfg,
		jobs:    make(chan SweepJob, cfg.QueueDepth),
		handler: handler,
		log:     log,
		pending: make(map[string]bool),
	}, nil
}

// Start launches the worker goroutines. ctx controls worker lifetime.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Enqueue never blocks. Jobs can be queued before Start; they wait in the
// buffer until a worker runs.
func (p *Pool) Enqueue(job SweepJob) Outcome {
	if job.Queued.IsZero() {
		job.Queued = time.Now()
	}
	log := p.log.With().Str("trigger", job.Trigger).Str("guild_id", job.GuildID).Logger()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		metrics.SweepsDropped.WithLabelValues("shutdown").Inc()
		log.Debug().Msg("sweep dropped: queue stopped")
		return Dropped
	}
	k := job.key()
	if p.pending[k] {
		metrics.SweepsMerged.Inc()
		log.Debug().Msg("sweep merged into a waiting one")
		return Merged
	}
	select {
	case p.jobs <- job:
		p.pending[k] = true
		metrics.SweepQueueDepth.Set(float64(len(p.jobs)))
		return Queued
	default:
		metrics.SweepsDropped.WithLabelValues("queue_full").Inc()
		log.Warn().Msg("sweep dropped: queue full")
		return Dropped
	}
}

// Stop refuses further jobs, then waits for the workers to drain what is
// buffered. Workers whose context is already cancelled abandon the buffer.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Depth returns the current number of pending jobs.
func (p *Pool) Depth() int {
	return len(p.jobs)
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker_id", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			// A request arriving from here on reflects newer state and queues again.
			p.mu.Lock()
			delete(p.pending, job.key())
			p.mu.Unlock()
			metrics.SweepQueueDepth.Set(float64(len(p.jobs)))

			log.Debug().Str("trigger", job.Trigger).Str("guild_id", job.GuildID).
				Dur("waited", time.Since(job.Queued)).Msg("sweep dequeued")
			p.handler(ctx, job)
		}
	}
}
