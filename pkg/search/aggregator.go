package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
)

// DefaultLimit caps the results taken from each source.
const DefaultLimit = 5

const tracerName = "github.com/mohallaa/mohallaa/pkg/search"

// Source answers queries for one kind of entity.
type Source interface {
	Kind() Kind
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc struct {
	K  Kind
	Fn func(ctx context.Context, query string, limit int) ([]Result, error)
}

func (s SourceFunc) Kind() Kind { return s.K }

func (s SourceFunc) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	return s.Fn(ctx, query, limit)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLimit sets the per-source result cap.
func WithLimit(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithSourceTimeout bounds each source independently. Zero disables it.
func WithSourceTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.sourceTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithMetrics records per-source query counts and latency.
func WithMetrics(m *Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(a *Aggregator) { a.tracer = t }
}

// Aggregator queries several sources and merges their results.
type Aggregator struct {
	sources       []Source
	limit         int
	sourceTimeout time.Duration
	logger        *slog.Logger
	metrics       *Metrics
	tracer        trace.Tracer
}

// NewAggregator creates an Aggregator over sources.
func NewAggregator(sources []Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		sources: sources,
		limit:   DefaultLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "search")
	if a.tracer == nil {
		a.tracer = otel.Tracer(tracerName)
	}
	return a
}

// Search runs query against every source. Blank queries return an empty
// response without querying. Source failures are reported in the response;
// the returned error is non-nil only when ctx ends before the sources answer.
func (a *Aggregator) Search(ctx context.Context, query string) (Response, error) {
	query = strings.TrimSpace(query)
	resp := Response{Query: query, Sources: len(a.sources)}
	if query == "" {
		return resp, nil
	}

	ctx, span := a.tracer.Start(ctx, "search.query", trace.WithAttributes(
		attribute.Int("search.sources", len(a.sources)),
		attribute.Int("search.query_length", len(query)),
	))
	defer span.End()

	var (
		mu       sync.Mutex
		groups   = make([][]Result, len(a.sources))
		failures []Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		g.Go(func() error {
			results, err := a.query(gctx, src, query)
			if err != nil {
				mu.Lock()
				failures = append(failures, Failure{
					Kind:    src.Kind(),
					Message: apperrors.UserMessage(err),
					Err:     err,
				})
				mu.Unlock()
				return nil
			}
			groups[i] = results
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	resp.Results = Merge(groups...)
	resp.Failures = sortFailures(failures)
	span.SetAttributes(
		attribute.Int("search.results", len(resp.Results)),
		attribute.Int("search.failures", len(resp.Failures)),
	)
	if resp.Partial() {
		span.SetStatus(codes.Error, "partial results")
		a.logger.Warn("search partially failed", "query", query, "failures", len(resp.Failures))
	}
	return resp, nil
}

// query runs one source inside its own error boundary.
func (a *Aggregator) query(ctx context.Context, src Source, query string) (results []Result, err error) {
	kind := src.Kind()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			results, err = nil, fmt.Errorf("search: %s source panicked: %v", kind, r)
		}
		a.metrics.observe(kind, err, time.Since(start))
		if err != nil {
			a.logger.Debug("source failed", "kind", kind, "error", err)
		}
	}()

	if a.sourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.sourceTimeout)
		defer cancel()
	}

	results, err = src.Search(ctx, query, a.limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", kind, err)
	}
	if len(results) > a.limit {
		results = results[:a.limit]
	}
	for i := range results {
		if results[i].Kind == "" {
			results[i].Kind = kind
		}
	}
	return results, nil
}

func sortFailures(fs []Failure) []Failure {
	if len(fs) < 2 {
		return fs
	}
	out := make([]Failure, 0, len(fs))
	for _, k := range Kinds {
		for _, f := range fs {
			if f.Kind == k {
				out = append(out, f)
			}
		}
	}
	for _, f := range fs {
		if kindRank(f.Kind) == len(Kinds) {
			out = append(out, f)
		}
	}
	return out
}
