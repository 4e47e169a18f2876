package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixed(kind Kind, results ...Result) Source {
	return SourceFunc{K: kind, Fn: func(ctx context.Context, q string, limit int) ([]Result, error) {
		return results, nil
	}}
}

func failing(kind Kind, err error) Source {
	return SourceFunc{K: kind, Fn: func(context.Context, string, int) ([]Result, error) {
		return nil, err
	}}
}

func at(kind Kind, id string, minutes int) Result {
	return Result{Kind: kind, ID: id, Title: id, CreatedAt: base.Add(time.Duration(minutes) * time.Minute)}
}

func TestAggregatorMergesByRecency(t *testing.T) {
	agg := NewAggregator([]Source{
		fixed(KindPost, at(KindPost, "p1", 1), at(KindPost, "p2", 5)),
		fixed(KindCommunity, at(KindCommunity, "c1", 3)),
		fixed(KindProfile, at(KindProfile, "u1", 5)),
		fixed(KindEvent),
		fixed(KindListing, at(KindListing, "l1", 4)),
	})

	resp, err := agg.Search(context.Background(), "  temple ")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Query != "temple" {
		t.Errorf("Query = %q", resp.Query)
	}
	var got []string
	for _, r := range resp.Results {
		got = append(got, r.ID)
	}
	want := []string{"p2", "u1", "l1", "c1", "p1"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if resp.Partial() || resp.Err() != nil {
		t.Errorf("unexpected failures: %+v", resp.Failures)
	}
}

func TestAggregatorPartialFailure(t *testing.T) {
	agg := NewAggregator([]Source{
		fixed(KindPost, at(KindPost, "p1", 1)),
		failing(KindCommunity, errors.New("permission denied")),
		fixed(KindProfile, at(KindProfile, "u1", 2)),
		SourceFunc{K: KindEvent, Fn: func(context.Context, string, int) ([]Result, error) {
			panic("nil row")
		}},
		fixed(KindListing),
	})

	resp, err := agg.Search(context.Background(), "temple")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("results = %+v, want 2 from healthy sources", resp.Results)
	}
	if len(resp.Failures) != 2 || resp.Failures[0].Kind != KindCommunity || resp.Failures[1].Kind != KindEvent {
		t.Fatalf("failures = %+v", resp.Failures)
	}
	if !apperrors.IsCategory(resp.Err(), apperrors.CategoryPartial) {
		t.Errorf("Err() = %v, want partial category", resp.Err())
	}
}

func TestAggregatorAllFailed(t *testing.T) {
	boom := errors.New("offline")
	agg := NewAggregator([]Source{failing(KindPost, boom), failing(KindEvent, boom)})
	resp, _ := agg.Search(context.Background(), "x")
	if !apperrors.IsCategory(resp.Err(), apperrors.CategoryRemote) {
		t.Errorf("Err() = %v, want remote category", resp.Err())
	}
}

func TestAggregatorCapsEachSource(t *testing.T) {
	var many []Result
	for i := 0; i < 12; i++ {
		many = append(many, at(KindPost, fmt.Sprintf("p%02d", i), i))
	}
	var gotLimit atomic.Int32
	agg := NewAggregator([]Source{SourceFunc{K: KindPost, Fn: func(_ context.Context, _ string, limit int) ([]Result, error) {
		gotLimit.Store(int32(limit))
		return many, nil
	}}})

	resp, _ := agg.Search(context.Background(), "p")
	if gotLimit.Load() != DefaultLimit {
		t.Errorf("limit passed = %d", gotLimit.Load())
	}
	if len(resp.Results) != DefaultLimit {
		t.Errorf("results = %d, want %d", len(resp.Results), DefaultLimit)
	}
}

func TestAggregatorSourceTimeout(t *testing.T) {
	slow := SourceFunc{K: KindEvent, Fn: func(ctx context.Context, _ string, _ int) ([]Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	agg := NewAggregator([]Source{fixed(KindPost, at(KindPost, "p1", 0)), slow}, WithSourceTimeout(10*time.Millisecond))

	resp, err := agg.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) != 1 || len(resp.Failures) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if !errors.Is(resp.Failures[0].Err, context.DeadlineExceeded) {
		t.Errorf("failure = %v", resp.Failures[0].Err)
	}
}

func TestAggregatorBlankQuery(t *testing.T) {
	var calls atomic.Int32
	agg := NewAggregator([]Source{SourceFunc{K: KindPost, Fn: func(context.Context, string, int) ([]Result, error) {
		calls.Add(1)
		return nil, nil
	}}})
	resp, err := agg.Search(context.Background(), "   ")
	if err != nil || len(resp.Results) != 0 || calls.Load() != 0 {
		t.Errorf("blank query: resp=%+v err=%v calls=%d", resp, err, calls.Load())
	}
}
