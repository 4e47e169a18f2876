package remote

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Match reports whether r satisfies the equality and search parts of f.
func (f Filter) Match(r Row) bool {
	for field, want := range f.Eq {
		if !equalValues(r[field], want) {
			return false
		}
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		q = strings.ToLower(q)
		fields := f.SearchFields
		found := false
		for _, field := range fields {
			if strings.Contains(strings.ToLower(r.String(field)), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply filters, orders and limits rows. The input slice is not modified.
func (f Filter) Apply(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	if f.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i][f.OrderBy], out[j][f.OrderBy])
			if c == 0 {
				c = strings.Compare(out[i].ID(), out[j].ID())
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func equalValues(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareValues(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	if a == nil {
		sa = ""
	}
	if b == nil {
		sb = ""
	}
	ta, errA := time.Parse(time.RFC3339Nano, sa)
	tb, errB := time.Parse(time.RFC3339Nano, sb)
	if errA == nil && errB == nil {
		return ta.Compare(tb)
	}
	return strings.Compare(sa, sb)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
