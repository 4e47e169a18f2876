package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mohallaa/mohallaa/pkg/optimistic"
)

// View is what a search box shows.
type View struct {
	// Input is the raw text last typed.
	Input string

	// Response holds the results for Response.Query, which may lag behind
	// Input while a query is pending.
	Response Response

	// Loading is true from the first keystroke until the matching response
	// arrives.
	Loading bool
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithDebounce sets the quiescence window.
func WithDebounce(d time.Duration) SearcherOption {
	return func(s *Searcher) { s.wait = d }
}

// WithAfterFunc replaces the timer used for debouncing.
func WithAfterFunc(f AfterFunc) SearcherOption {
	return func(s *Searcher) { s.after = f }
}

// WithSearcherLogger sets the logger.
func WithSearcherLogger(l *slog.Logger) SearcherOption {
	return func(s *Searcher) { s.logger = l }
}

// Searcher turns search box input into debounced aggregator queries. Only
// the response to the latest input is ever shown.
type Searcher struct {
	agg    *Aggregator
	wait   time.Duration
	after  AfterFunc
	logger *slog.Logger

	debouncer *Debouncer
	view      *optimistic.State[View]

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewSearcher creates a Searcher over agg.
func NewSearcher(agg *Aggregator, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		agg:  agg,
		wait: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "searcher")
	s.debouncer = NewDebouncer(s.wait, s.after)
	s.view = optimistic.NewState(View{})
	return s
}

// View returns the current view.
func (s *Searcher) View() View { return s.view.Get() }

// Subscribe registers fn for view changes.
func (s *Searcher) Subscribe(fn func(View)) func() { return s.view.Subscribe(fn) }

// Input records new search box text. Blank text clears the results at once
// and cancels pending work; other text is queried after the debounce window.
func (s *Searcher) Input(text string) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	blank := strings.TrimSpace(text) == ""
	if blank {
		s.cancelLocked()
	}
	s.mu.Unlock()

	if blank {
		s.debouncer.Cancel()
		s.view.Set(View{Input: text})
		return
	}

	s.view.Update(func(v View) View {
		v.Input = text
		v.Loading = true
		return v
	})
	s.debouncer.Trigger(func() { s.run(seq, text) })
}

// Close cancels pending and in-flight queries.
func (s *Searcher) Close() {
	s.debouncer.Cancel()
	s.mu.Lock()
	s.seq++
	s.cancelLocked()
	s.mu.Unlock()
}

func (s *Searcher) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Searcher) run(seq uint64, text string) {
	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		return
	}
	s.cancelLocked()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	resp, err := s.agg.Search(ctx, text)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("search failed", "error", err)
		}
		return
	}

	applied := false
	s.view.Update(func(v View) View {
		s.mu.Lock()
		defer s.mu.Unlock()
		if seq != s.seq {
			return v
		}
		applied = true
		v.Response = resp
		v.Loading = false
		return v
	})
	if !applied {
		s.logger.Debug("dropping stale response", "query", resp.Query)
	}
}
