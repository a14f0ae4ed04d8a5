package scheduler

import (
	"sync"
	"time"

	"github.com/developingchet/guild-counter-sync/internal/metrics"
)

// Debouncer holds at most one pending timer. The first Trigger starts it;
// triggers that arrive while it is pending are absorbed. When the timer
// fires fn runs once and the next Trigger starts a new timer.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	pending bool
	stopped bool
}

// NewDebouncer returns a Debouncer that calls fn delay after the first
// trigger of a burst.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger reports whether it started a new timer.
func (d *Debouncer) Trigger() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	if d.pending {
		metrics.SweepsCoalesced.Inc()
		return false
	}
	d.pending = true
	d.timer = time.AfterFunc(d.delay, d.fire)
	return true
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.pending || d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()
	d.fn()
}

// Pending reports whether a timer is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop cancels any pending timer and ignores further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}
