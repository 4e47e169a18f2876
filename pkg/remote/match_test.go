package remote

import "testing"

func TestFilterMatch(t *testing.T) {
	row := Row{"id": "p1", "title": "Temple Run Meetup", "community_id": "c1", "upvotes": int64(3)}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"eq string", Filter{Eq: map[string]any{"community_id": "c1"}}, true},
		{"eq mismatch", Filter{Eq: map[string]any{"community_id": "c2"}}, false},
		{"eq numeric across types", Filter{Eq: map[string]any{"upvotes": 3.0}}, true},
		{"eq missing field", Filter{Eq: map[string]any{"author": "u1"}}, false},
		{"search hit", Filter{Search: "temple r", SearchFields: []string{"title"}}, true},
		{"search miss", Filter{Search: "mosque", SearchFields: []string{"title"}}, false},
		{"search without fields", Filter{Search: "temple"}, false},
		{"blank search ignored", Filter{Search: "   "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(row); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterApplyOrdersAndLimits(t *testing.T) {
	rows := []Row{
		{"id": "a", "created_at": "2024-01-02T00:00:00Z", "score": 1},
		{"id": "b", "created_at": "2024-01-03T00:00:00Z", "score": 3},
		{"id": "c", "created_at": "2024-01-01T00:00:00Z", "score": 2},
	}

	got := Filter{OrderBy: "created_at", Desc: true, Limit: 2}.Apply(rows)
	if len(got) != 2 || got[0].ID() != "b" || got[1].ID() != "a" {
		t.Errorf("desc by created_at = %v", ids(got))
	}

	got = Filter{OrderBy: "score"}.Apply(rows)
	if ids(got) != "acb" {
		t.Errorf("asc by score = %v", ids(got))
	}

	if rows[0].ID() != "a" {
		t.Error("Apply must not reorder its input")
	}
}

func TestRowAccessors(t *testing.T) {
	r := Row{"n": float64(4), "b": true, "s": "x", "i": int64(2)}
	if r.Int("n") != 4 || r.Int("i") != 2 || r.Int("missing") != 0 {
		t.Error("Int accessor")
	}
	if !r.Bool("b") || r.Bool("s") {
		t.Error("Bool accessor")
	}
	if r.String("s") != "x" || r.String("missing") != "" || r.String("n") != "4" {
		t.Error("String accessor")
	}
	if r.Float("i") != 2 {
		t.Error("Float accessor")
	}
}

func ids(rows []Row) string {
	s := ""
	for _, r := range rows {
		s += r.ID()
	}
	return s
}
