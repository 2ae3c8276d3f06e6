package usecase

import (
	"sync"
	"time"
)

// Debouncer runs fn once events stop arriving for the quiet period. Runs never overlap:
// a timer firing during a run schedules one more run after it finishes.
type Debouncer struct {
	quiet time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	pending bool
	stopped bool
}

// NewDebouncer creates a debouncer for fn
func NewDebouncer(quiet time.Duration, fn func()) *Debouncer {
	return &Debouncer{quiet: quiet, fn: fn}
}

// Trigger restarts the quiet period
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fire)
}

// Stop cancels any scheduled run. A run in progress completes.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.running {
		d.pending = true
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.fn()

	d.mu.Lock()
	d.running = false
	rerun := d.pending && !d.stopped
	d.pending = false
	d.mu.Unlock()

	if rerun {
		d.Trigger()
	}
}
