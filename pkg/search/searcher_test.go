package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mohallaa/mohallaa/pkg/remote"
)

type recordingSource struct {
	mu      sync.Mutex
	queries []string
}

func (s *recordingSource) Kind() Kind { return KindPost }

func (s *recordingSource) Search(_ context.Context, q string, _ int) ([]Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	return []Result{{ID: "hit-" + q, CreatedAt: base}}, nil
}

func (s *recordingSource) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func TestSearcherDebouncesTyping(t *testing.T) {
	clock := &manualClock{}
	src := &recordingSource{}
	s := NewSearcher(NewAggregator([]Source{src}), WithAfterFunc(clock.AfterFunc))

	s.Input("temple")
	clock.Advance(100 * time.Millisecond)
	s.Input("temple ")
	clock.Advance(100 * time.Millisecond)
	s.Input("temple r")
	clock.Advance(100 * time.Millisecond)

	if q := src.seen(); len(q) != 0 {
		t.Fatalf("queries before quiescence = %v", q)
	}
	if !s.View().Loading {
		t.Error("View().Loading = false while debouncing")
	}

	clock.Advance(200 * time.Millisecond)
	q := src.seen()
	if len(q) != 1 || q[0] != "temple r" {
		t.Fatalf("queries = %v, want exactly [temple r]", q)
	}
	v := s.View()
	if v.Loading || v.Response.Query != "temple r" || len(v.Response.Results) != 1 {
		t.Errorf("View() = %+v", v)
	}
}

func TestSearcherBlankInputClears(t *testing.T) {
	clock := &manualClock{}
	src := &recordingSource{}
	s := NewSearcher(NewAggregator([]Source{src}), WithAfterFunc(clock.AfterFunc))

	s.Input("market")
	clock.Advance(DefaultDebounce)
	if len(s.View().Response.Results) != 1 {
		t.Fatalf("View() = %+v", s.View())
	}

	s.Input("mar")
	s.Input("   ")
	clock.Advance(time.Second)

	if q := src.seen(); len(q) != 1 {
		t.Errorf("queries = %v, blank input must not query", q)
	}
	v := s.View()
	if v.Loading || len(v.Response.Results) != 0 {
		t.Errorf("View() = %+v, want cleared", v)
	}
}

func TestSearcherDropsStaleResponse(t *testing.T) {
	clock := &manualClock{}
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := SourceFunc{K: KindPost, Fn: func(_ context.Context, q string, _ int) ([]Result, error) {
		if q == "old" {
			started <- struct{}{}
			<-release
		}
		return []Result{{ID: q}}, nil
	}}
	s := NewSearcher(NewAggregator([]Source{slow}), WithAfterFunc(clock.AfterFunc))

	s.Input("old")
	done := make(chan struct{})
	go func() {
		clock.Advance(DefaultDebounce)
		close(done)
	}()
	<-started

	s.Input("new")
	close(release)
	<-done
	clock.Advance(DefaultDebounce)

	v := s.View()
	if v.Response.Query != "new" || len(v.Response.Results) != 1 || v.Response.Results[0].ID != "new" {
		t.Errorf("View() = %+v, want only the latest response", v)
	}
}

func TestCollectionSource(t *testing.T) {
	mem := remote.NewMemory()
	mem.Seed("posts",
		remote.Row{"id": "p1", "title": "Temple fair", "content": "Sunday", "created_at": "2026-03-01T10:00:00Z"},
		remote.Row{"id": "p2", "title": "Lost cat", "content": "near the temple", "created_at": "2026-03-02T10:00:00Z"},
		remote.Row{"id": "p3", "title": "Bake sale", "content": "cakes", "created_at": "2026-03-03T10:00:00Z"},
	)
	mem.Seed("listings",
		remote.Row{"id": "l1", "title": "Temple bell", "status": "active", "price": "20", "created_at": "2026-03-04T10:00:00Z"},
		remote.Row{"id": "l2", "title": "Temple lamp", "status": "sold", "price": "5", "created_at": "2026-03-05T10:00:00Z"},
	)

	agg := NewAggregator(DefaultSources(mem))
	resp, err := agg.Search(context.Background(), "TEMPLE")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	var got []string
	for _, r := range resp.Results {
		got = append(got, string(r.Kind)+":"+r.ID)
	}
	want := []string{"listing:l1", "post:p2", "post:p1"}
	if len(got) != len(want) {
		t.Fatalf("results = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("results = %v, want %v", got, want)
			break
		}
	}
	if resp.Results[0].Subtitle != "20" {
		t.Errorf("listing subtitle = %q", resp.Results[0].Subtitle)
	}
}
