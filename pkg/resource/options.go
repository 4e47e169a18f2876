package resource

import (
	"log/slog"
	"time"
)

// Option configures a Resource.
type Option[T any] func(*Resource[T])

// Enabled gates fetching. A disabled resource never runs its fetch function.
func Enabled[T any](enabled bool) Option[T] {
	return func(r *Resource[T]) { r.enabled = enabled }
}

// Deps sets the initial dependency values. See SetDeps.
func Deps[T any](deps ...any) Option[T] {
	return func(r *Resource[T]) { r.deps = deps }
}

// StaleTime sets the duration before data is considered stale. Fetch skips
// the network while data is fresh; Refetch always goes out.
func StaleTime[T any](d time.Duration) Option[T] {
	return func(r *Resource[T]) { r.staleTime = d }
}

// RetryOnError sets the number of retries and delay between them.
func RetryOnError[T any](count int, delay time.Duration) Option[T] {
	return func(r *Resource[T]) {
		r.retryCount = count
		r.retryDelay = delay
	}
}

// OnSuccess registers a callback run after data is successfully loaded.
func OnSuccess[T any](fn func(T)) Option[T] {
	return func(r *Resource[T]) { r.onSuccess = fn }
}

// OnError registers a callback run after loading fails.
func OnError[T any](fn func(*Error)) Option[T] {
	return func(r *Resource[T]) { r.onError = fn }
}

// RefetchOnWindowFocus refetches whenever v goes from hidden to visible.
func RefetchOnWindowFocus[T any](v *Visibility) Option[T] {
	return func(r *Resource[T]) { r.visibility = v }
}

// WithLogger sets the logger.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(r *Resource[T]) { r.logger = l }
}
