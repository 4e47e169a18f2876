package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mohallaa/mohallaa/pkg/remote"
	"github.com/mohallaa/mohallaa/pkg/search"
)

// MaxLimit caps the rows one list request returns.
const MaxLimit = 500

type listRowsInput struct {
	Collection string   `path:"collection" doc:"Collection name"`
	Search     string   `query:"search" doc:"Case-insensitive substring"`
	Fields     []string `query:"fields" doc:"Fields the search applies to"`
	Order      string   `query:"order" doc:"Sort field"`
	Desc       bool     `query:"desc" doc:"Sort descending"`
	Limit      int      `query:"limit" minimum:"0" maximum:"500" doc:"Maximum rows"`
	Eq         []string `query:"eq,explode" doc:"Equality filters as field:value"`
}

// filter builds the remote filter from the query string.
func (in *listRowsInput) filter() (remote.Filter, error) {
	f := remote.Filter{
		Search:       in.Search,
		SearchFields: in.Fields,
		OrderBy:      in.Order,
		Desc:         in.Desc,
		Limit:        in.Limit,
	}
	if f.Limit == 0 || f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	eq, err := parseEq(in.Eq)
	if err != nil {
		return remote.Filter{}, err
	}
	f.Eq = eq
	return f, nil
}

func parseEq(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	eq := make(map[string]any, len(pairs))
	for _, p := range pairs {
		field, value, ok := strings.Cut(p, ":")
		if !ok || field == "" {
			return nil, newAPIError(http.StatusBadRequest, remote.CodeInvalid, "eq must be field:value, got "+p, nil)
		}
		eq[field] = value
	}
	return eq, nil
}

type rowsBody struct {
	Rows []remote.Row `json:"rows"`
}

type writeRowBody struct {
	Op     string         `json:"op" enum:"insert,update,upsert"`
	Key    string         `json:"key,omitempty"`
	Values map[string]any `json:"values"`
}

func (h *handler) registerRows(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-rows",
		Method:      http.MethodGet,
		Path:        "/collections/{collection}/rows",
		Summary:     "List rows",
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *listRowsInput) (*struct {
		Body rowsBody `json:"body"`
	}, error) {
		f, err := input.filter()
		if err != nil {
			return nil, err
		}
		rows, err := h.cfg.Remote.Read(ctx, input.Collection, f)
		if err != nil {
			return nil, handleError(err)
		}
		if rows == nil {
			rows = []remote.Row{}
		}
		return &struct {
			Body rowsBody `json:"body"`
		}{Body: rowsBody{Rows: rows}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "write-row",
		Method:      http.MethodPost,
		Path:        "/collections/{collection}/rows",
		Summary:     "Insert, update or upsert a row",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Collection string       `path:"collection"`
		Body       writeRowBody `json:"body"`
	}) (*struct {
		Body remote.Row `json:"body"`
	}, error) {
		if _, err := requirePrincipal(ctx); err != nil {
			return nil, err
		}
		m := remote.Mutation{
			Op:     remote.Op(input.Body.Op),
			Key:    input.Body.Key,
			Values: remote.Row(input.Body.Values),
		}
		row, err := h.cfg.Remote.Write(ctx, input.Collection, m)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body remote.Row `json:"body"`
		}{Body: row}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-row",
		Method:        http.MethodDelete,
		Path:          "/collections/{collection}/rows/{key}",
		Summary:       "Delete a row",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Collection string `path:"collection"`
		Key        string `path:"key"`
	}) (*struct{}, error) {
		if _, err := requirePrincipal(ctx); err != nil {
			return nil, err
		}
		if err := h.cfg.Remote.Remove(ctx, input.Collection, input.Key); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func (h *handler) registerSearch(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/search",
		Summary:     "Search posts, communities, profiles, events and listings",
		Description: "Sources that fail are listed under failures; the other sources still answer.",
	}, func(ctx context.Context, input *struct {
		Query string `query:"q" doc:"Search text"`
	}) (*struct {
		Body search.Response `json:"body"`
	}, error) {
		resp, err := h.cfg.Search.Search(ctx, input.Query)
		if err != nil {
			return nil, handleError(err)
		}
		if resp.Results == nil {
			resp.Results = []search.Result{}
		}
		return &struct {
			Body search.Response `json:"body"`
		}{Body: resp}, nil
	})
}
