package search

import (
	"context"

	"github.com/mohallaa/mohallaa/pkg/remote"
)

// CollectionSource searches one remote collection.
type CollectionSource struct {
	Remote     remote.Remote
	Collection string
	SourceKind Kind

	// Fields are matched case-insensitively against the query.
	Fields []string

	// TitleField and SubtitleField populate Result.Title and Subtitle.
	TitleField    string
	SubtitleField string

	// Eq adds fixed equality constraints, e.g. only active listings.
	Eq map[string]any
}

func (c CollectionSource) Kind() Kind { return c.SourceKind }

// Search reads the newest matching rows of the collection.
func (c CollectionSource) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	rows, err := c.Remote.Read(ctx, c.Collection, remote.Filter{
		Eq:           c.Eq,
		Search:       query,
		SearchFields: c.Fields,
		OrderBy:      remote.FieldCreatedAt,
		Desc:         true,
		Limit:        limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		res := Result{
			Kind:      c.SourceKind,
			ID:        row.ID(),
			Title:     row.String(c.TitleField),
			CreatedAt: row.Time(remote.FieldCreatedAt),
			Row:       row,
		}
		if c.SubtitleField != "" {
			res.Subtitle = row.String(c.SubtitleField)
		}
		out = append(out, res)
	}
	return out, nil
}

// DefaultSources returns the five standard sources over r.
func DefaultSources(r remote.Remote) []Source {
	return []Source{
		CollectionSource{
			Remote: r, Collection: "posts", SourceKind: KindPost,
			Fields: []string{"title", "content"}, TitleField: "title", SubtitleField: "content",
		},
		CollectionSource{
			Remote: r, Collection: "communities", SourceKind: KindCommunity,
			Fields: []string{"name", "description"}, TitleField: "name", SubtitleField: "description",
		},
		CollectionSource{
			Remote: r, Collection: "profiles", SourceKind: KindProfile,
			Fields: []string{"full_name", "username"}, TitleField: "full_name", SubtitleField: "username",
		},
		CollectionSource{
			Remote: r, Collection: "events", SourceKind: KindEvent,
			Fields: []string{"title", "description", "location"}, TitleField: "title", SubtitleField: "location",
		},
		CollectionSource{
			Remote: r, Collection: "listings", SourceKind: KindListing,
			Fields: []string{"title", "description"}, TitleField: "title", SubtitleField: "price",
			Eq: map[string]any{"status": "active"},
		},
	}
}
