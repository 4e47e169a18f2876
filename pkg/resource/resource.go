package resource

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohallaa/mohallaa/pkg/optimistic"
)

// State represents the current state of a resource.
type State int

const (
	Pending State = iota // Initial state, before first fetch
	Loading              // Fetch in progress
	Ready                // Data successfully loaded
	Failed               // Fetch failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is the observable state of a Resource. Exactly one of Data (when
// State is Ready) or Err (when State is Failed) is meaningful after a fetch
// completes.
type Snapshot[T any] struct {
	Data    T
	Loading bool
	Err     *Error
	State   State
}

// Resource manages asynchronous data fetching and state.
type Resource[T any] struct {
	fetcher func(context.Context) (T, error)
	cell    *optimistic.State[Snapshot[T]]
	logger  *slog.Logger

	// Options
	enabled    bool
	deps       []any
	staleTime  time.Duration
	retryCount int
	retryDelay time.Duration
	onSuccess  func(T)
	onError    func(*Error)
	visibility *Visibility

	// Internal
	mu          sync.Mutex
	lastFetch   time.Time
	fetchID     atomic.Uint64 // For cancelling/ignoring outdated fetches
	cancel      context.CancelFunc
	unsubscribe func()
	closed      bool
}

// New creates a Resource with the given fetch function. If enabled (the
// default), the first fetch starts immediately.
func New[T any](fetcher func(context.Context) (T, error), opts ...Option[T]) *Resource[T] {
	r := &Resource[T]{
		fetcher: fetcher,
		enabled: true,
		cell:    optimistic.NewState(Snapshot[T]{State: Pending}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "resource")

	if r.visibility != nil {
		r.unsubscribe = r.visibility.OnShow(r.onShow)
	}
	if r.enabled {
		r.Refetch()
	}
	return r
}

// Snapshot returns the current state.
func (r *Resource[T]) Snapshot() Snapshot[T] {
	return r.cell.Get()
}

// State returns the current fetch state.
func (r *Resource[T]) State() State { return r.cell.Get().State }

// Data returns the last successfully loaded value.
func (r *Resource[T]) Data() T { return r.cell.Get().Data }

// Loading reports whether a fetch is in progress.
func (r *Resource[T]) Loading() bool { return r.cell.Get().Loading }

// Err returns the normalized error of the last fetch, or nil.
func (r *Resource[T]) Err() *Error { return r.cell.Get().Err }

// Subscribe registers fn to run after every state change. The returned
// function removes it.
func (r *Resource[T]) Subscribe(fn func(Snapshot[T])) func() {
	return r.cell.Subscribe(fn)
}

// Enabled reports whether fetching is enabled.
func (r *Resource[T]) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetEnabled gates fetching. Enabling a resource fetches unless its data is
// still fresh; disabling cancels the fetch in progress.
func (r *Resource[T]) SetEnabled(enabled bool) {
	r.mu.Lock()
	if r.enabled == enabled {
		r.mu.Unlock()
		return
	}
	r.enabled = enabled
	if !enabled {
		r.fetchID.Add(1)
		r.cancelLocked()
		r.mu.Unlock()
		r.cell.Update(func(s Snapshot[T]) Snapshot[T] {
			s.Loading = false
			if s.State == Loading {
				s.State = Pending
			}
			return s
		})
		return
	}
	r.mu.Unlock()
	r.Fetch()
}

// SetDeps replaces the dependency values. The resource refetches only when
// they differ from the previous ones.
func (r *Resource[T]) SetDeps(deps ...any) {
	r.mu.Lock()
	if reflect.DeepEqual(r.deps, deps) {
		r.mu.Unlock()
		return
	}
	r.deps = deps
	r.lastFetch = time.Time{}
	enabled := r.enabled
	r.mu.Unlock()

	if enabled {
		r.Refetch()
	}
}

// Fetch triggers a data fetch. It respects StaleTime if data is already ready.
// To force a fetch, use Refetch().
func (r *Resource[T]) Fetch() {
	r.mu.Lock()
	if r.cell.Get().State == Ready && time.Since(r.lastFetch) < r.staleTime {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.Refetch()
}

// Refetch forces a data fetch, bypassing cache. Any fetch in progress is
// cancelled and its result ignored. Refetch does nothing while disabled.
func (r *Resource[T]) Refetch() {
	r.mu.Lock()
	if !r.enabled || r.closed {
		r.mu.Unlock()
		return
	}
	currentID := r.fetchID.Add(1)
	r.cancelLocked()
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	r.cell.Update(func(s Snapshot[T]) Snapshot[T] {
		s.Loading = true
		s.Err = nil
		s.State = Loading
		return s
	})

	go r.run(ctx, currentID)
}

// Invalidate marks the current data as stale.
func (r *Resource[T]) Invalidate() {
	r.mu.Lock()
	r.lastFetch = time.Time{}
	r.mu.Unlock()
}

// Mutate updates the local data without fetching.
func (r *Resource[T]) Mutate(fn func(T) T) {
	r.cell.Update(func(s Snapshot[T]) Snapshot[T] {
		s.Data = fn(s.Data)
		return s
	})
}

// Wait blocks until no fetch is in progress or ctx is done.
func (r *Resource[T]) Wait(ctx context.Context) (Snapshot[T], error) {
	ch := make(chan struct{}, 1)
	unsub := r.cell.Subscribe(func(s Snapshot[T]) {
		if !s.Loading {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	})
	defer unsub()

	for {
		if s := r.cell.Get(); !s.Loading {
			return s, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return r.cell.Get(), ctx.Err()
		}
	}
}

// Close cancels the fetch in progress and stops reacting to visibility
// changes. A closed resource never fetches again.
func (r *Resource[T]) Close() {
	r.mu.Lock()
	r.closed = true
	r.fetchID.Add(1)
	r.cancelLocked()
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (r *Resource[T]) cancelLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Resource[T]) onShow() {
	r.logger.Debug("visible again, refetching")
	r.Refetch()
}

func (r *Resource[T]) current(id uint64) bool {
	return r.fetchID.Load() == id
}

func (r *Resource[T]) run(ctx context.Context, id uint64) {
	var (
		result T
		ferr   *Error
	)

	maxAttempts := 1 + r.retryCount
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				return
			}
		}
		if !r.current(id) {
			return
		}

		result, ferr = r.attempt(ctx)
		if ferr == nil {
			break
		}
		r.logger.Debug("fetch failed", "attempt", i+1, "error", ferr.Err)
	}

	// Check if cancelled again before updating state
	r.mu.Lock()
	if !r.current(id) {
		r.mu.Unlock()
		return
	}
	r.lastFetch = time.Now()
	r.cancelLocked()
	r.mu.Unlock()

	// A Refetch may still slip in; the update re-checks under the cell lock
	// so a newer Loading state is never overwritten.
	applied := false
	r.cell.Update(func(s Snapshot[T]) Snapshot[T] {
		if !r.current(id) {
			return s
		}
		applied = true
		s.Loading = false
		if ferr != nil {
			s.Err = ferr
			s.State = Failed
			return s
		}
		s.Data = result
		s.Err = nil
		s.State = Ready
		return s
	})
	if !applied {
		return
	}

	if ferr != nil {
		r.logger.Warn("fetch failed", "code", ferr.Code, "error", ferr.Err)
		if r.onError != nil {
			r.onError(ferr)
		}
		return
	}
	if r.onSuccess != nil {
		r.onSuccess(result)
	}
}

func (r *Resource[T]) attempt(ctx context.Context) (result T, ferr *Error) {
	defer func() {
		if v := recover(); v != nil {
			ferr = normalizePanic(v)
		}
	}()
	v, err := r.fetcher(ctx)
	if err != nil {
		return result, Normalize(err)
	}
	return v, nil
}
