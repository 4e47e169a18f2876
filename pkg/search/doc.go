// Package search implements debounced free-text search across several
// remote collections.
//
// An Aggregator fans one query out to its Sources concurrently. Every source
// has its own error boundary: a failing source is reported in
// Response.Failures while the others still contribute results. Results are
// merged into one list tagged by Kind and ordered by recency.
//
// A Searcher sits in front of an Aggregator and turns keystrokes into
// queries: input is debounced (300ms by default), blank input clears the
// results without querying, and responses to outdated input are discarded.
package search
