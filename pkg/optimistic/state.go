package optimistic

import (
	"sort"
	"sync"
)

// State is a local view state cell. It is safe for concurrent use.
// Subscribers run after every change, outside the cell's lock, in
// subscription order.
type State[S any] struct {
	mu      sync.RWMutex
	value   S
	version uint64

	subMu   sync.RWMutex
	subs    map[uint64]func(S)
	nextSub uint64
}

// NewState creates a cell holding initial.
func NewState[S any](initial S) *State[S] {
	return &State[S]{
		value: initial,
		subs:  make(map[uint64]func(S)),
	}
}

// Get returns the current value.
func (s *State[S]) Get() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Version returns a counter incremented on every change.
func (s *State[S]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Set replaces the value.
func (s *State[S]) Set(v S) {
	_, _, fire := s.apply(func(S) S { return v })
	fire()
}

// Update replaces the value with fn(current) and returns the new value.
func (s *State[S]) Update(fn func(S) S) S {
	_, after, fire := s.apply(fn)
	fire()
	return after
}

// Subscribe registers fn to run after every change. The returned function
// removes the subscription.
func (s *State[S]) Subscribe(fn func(S)) func() {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// apply atomically transforms the value and returns the value before and
// after plus a function that notifies subscribers. Callers must invoke fire
// without holding locks that subscribers might take.
func (s *State[S]) apply(fn func(S) S) (before, after S, fire func()) {
	return s.applyIf(func(cur S) (S, bool) { return fn(cur), true })
}

// applyIf is apply for transforms that may decline to change the value. A
// declined transform leaves the version untouched and fire does nothing.
func (s *State[S]) applyIf(fn func(S) (S, bool)) (before, after S, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before = s.value
	after, changed := fn(before)
	if !changed {
		return before, before, func() {}
	}
	s.value = after
	s.version++

	return before, after, func() { s.notify(after) }
}

func (s *State[S]) notify(v S) {
	s.subMu.RLock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	fns := make([]func(S), 0, len(ids))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}
