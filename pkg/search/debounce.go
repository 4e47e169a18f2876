package search

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiescence window applied to search input.
const DefaultDebounce = 300 * time.Millisecond

// Timer is the part of *time.Timer a Debouncer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through
// StdAfterFunc; tests substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

// StdAfterFunc schedules f with time.AfterFunc.
func StdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer runs the most recently triggered function once no new trigger
// has arrived for the wait duration.
type Debouncer struct {
	wait  time.Duration
	after AfterFunc

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

// NewDebouncer creates a Debouncer. A nil after uses time.AfterFunc.
func NewDebouncer(wait time.Duration, after AfterFunc) *Debouncer {
	if after == nil {
		after = StdAfterFunc
	}
	return &Debouncer{wait: wait, after: after}
}

// Trigger schedules fn, replacing any function still waiting.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.after(d.wait, func() {
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the waiting function, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a function is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
