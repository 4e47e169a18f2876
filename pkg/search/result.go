package search

import (
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/remote"
)

// Kind tags a result with the collection it came from.
type Kind string

const (
	KindPost      Kind = "post"
	KindCommunity Kind = "community"
	KindProfile   Kind = "profile"
	KindEvent     Kind = "event"
	KindListing   Kind = "listing"
)

// Kinds lists every kind in tie-break order.
var Kinds = []Kind{KindPost, KindCommunity, KindProfile, KindEvent, KindListing}

func kindRank(k Kind) int {
	for i, kk := range Kinds {
		if kk == k {
			return i
		}
	}
	return len(Kinds)
}

// Result is one search hit.
type Result struct {
	Kind      Kind       `json:"kind"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Subtitle  string     `json:"subtitle,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Row       remote.Row `json:"row,omitempty"`
}

// Failure records a source that could not contribute.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Response is the merged outcome of one query.
type Response struct {
	Query    string    `json:"query"`
	Results  []Result  `json:"results"`
	Failures []Failure `json:"failures,omitempty"`

	// Sources is the number of sources queried.
	Sources int `json:"sources"`
}

// Partial reports whether at least one source failed.
func (r Response) Partial() bool { return len(r.Failures) > 0 }

// Err summarizes the failures. It returns nil when every source answered, a
// partial-results error when some did, and a remote failure when none did.
func (r Response) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	kinds := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		kinds[i] = string(f.Kind)
	}
	detail := fmt.Sprintf("failed sources: %s", strings.Join(kinds, ", "))
	if len(r.Failures) >= r.Sources {
		return apperrors.New(apperrors.CodeRemoteFailed).WithDetail(detail).Wrap(r.Failures[0].Err)
	}
	return apperrors.New(apperrors.CodePartialResults).WithDetail(detail)
}

// Merge orders results most recent first. Ties are broken by kind order and
// then by ID so the order is deterministic.
func Merge(groups ...[]Result) []Result {
	var out []Result
	for _, g := range groups {
		out = append(out, g...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if ra, rb := kindRank(a.Kind), kindRank(b.Kind); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
	return out
}
