package optimistic

import (
	"context"
	"sync"
)

// Registry tracks the pending action of every target. A Registry may be
// shared by several coordinators so that actions on one target are
// serialized across them.
//
// Lock order: a coordinator may consult the registry while holding its
// State's lock, never the other way around.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
}

type entry struct {
	token   uint64
	cancel  context.CancelFunc
	waiters []*waiter
	// base is the state the target had before its oldest unconfirmed
	// action. Only the supersede policy records one.
	base any
}

type waiter struct {
	token uint64
	ready chan struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Busy reports whether target has a pending action.
func (r *Registry) Busy(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[target]
	return ok
}

// Pending returns the number of targets with a pending action.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Queued returns the number of actions waiting behind target's pending one.
func (r *Registry) Queued(target string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[target]; ok {
		return len(e.waiters)
	}
	return 0
}

func (r *Registry) nextToken() uint64 {
	r.seq++
	return r.seq
}

// tryAcquire claims target if it is free.
func (r *Registry) tryAcquire(target string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[target]; ok {
		return 0, false
	}
	tok := r.nextToken()
	r.entries[target] = &entry{token: tok}
	return tok, true
}

// supersede claims target, taking over from the pending action if there is
// one. rebase receives the base recorded by the displaced action (nil if
// none) and returns the base to keep. The displaced commit's cancel function
// is returned for the caller to invoke once it holds no locks. Waiters queued
// behind the pending action stay queued.
func (r *Registry) supersede(target string, rebase func(prior any) any) (uint64, context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok := r.nextToken()
	e, ok := r.entries[target]
	if !ok {
		e = &entry{}
		r.entries[target] = e
	}
	cancel := e.cancel
	e.token = tok
	e.cancel = nil
	e.base = rebase(e.base)
	return tok, cancel
}

// enqueue claims target, waiting behind at most max other actions. It blocks
// until the claim is granted or ctx is done.
func (r *Registry) enqueue(ctx context.Context, target string, max int) (uint64, error) {
	r.mu.Lock()
	e, ok := r.entries[target]
	if !ok {
		tok := r.nextToken()
		r.entries[target] = &entry{token: tok}
		r.mu.Unlock()
		return tok, nil
	}
	if len(e.waiters) >= max {
		r.mu.Unlock()
		return 0, ErrQueueFull
	}
	w := &waiter{token: r.nextToken(), ready: make(chan struct{})}
	e.waiters = append(e.waiters, w)
	r.mu.Unlock()

	select {
	case <-w.ready:
		return w.token, nil
	case <-ctx.Done():
		r.mu.Lock()
		if cur, ok := r.entries[target]; ok && cur.token == w.token {
			// Granted concurrently with cancellation: pass it on.
			r.mu.Unlock()
			r.release(target, w.token)
			return 0, ctx.Err()
		}
		if cur, ok := r.entries[target]; ok {
			for i, other := range cur.waiters {
				if other == w {
					cur.waiters = append(cur.waiters[:i], cur.waiters[i+1:]...)
					break
				}
			}
		}
		r.mu.Unlock()
		return 0, ctx.Err()
	}
}

// setCancel records the cancel function of target's pending commit. If the
// token no longer owns target, cancel is invoked immediately.
func (r *Registry) setCancel(target string, token uint64, cancel context.CancelFunc) {
	r.mu.Lock()
	e, ok := r.entries[target]
	if ok && e.token == token {
		e.cancel = cancel
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	cancel()
}

// rebase replaces target's recorded base with fn of it. It does nothing when
// no base is recorded.
func (r *Registry) rebase(target string, fn func(prior any) any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[target]; ok && e.base != nil {
		e.base = fn(e.base)
	}
}

// settle reports whether token still owns target and, if so, forgets the
// recorded base: once an action resolves, later actions build on the state
// it left behind.
func (r *Registry) settle(target string, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[target]
	if !ok || e.token != token {
		return false
	}
	e.base = nil
	return true
}

// release gives up target if token owns it, handing it to the first waiter.
func (r *Registry) release(target string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[target]
	if !ok || e.token != token {
		return
	}
	if len(e.waiters) == 0 {
		delete(r.entries, target)
		return
	}
	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	e.token = next.token
	e.cancel = nil
	e.base = nil
	close(next.ready)
}
