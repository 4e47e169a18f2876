// Package resource loads remote data and exposes it as a small state
// machine: data, loading, error and a manual refetch.
//
// A Resource runs its fetch function when created (if enabled), whenever its
// dependencies change, when Refetch is called, and optionally when a
// Visibility source goes from hidden to visible. Fetch failures are caught,
// normalized into an *Error and stored; they never escape to the caller.
//
// Basic usage:
//
//	profile := resource.New(func(ctx context.Context) (remote.Row, error) {
//	    rows, err := db.Read(ctx, "profiles", remote.Filter{Eq: map[string]any{"id": id}})
//	    ...
//	}, resource.Deps(id), resource.RefetchOnWindowFocus(vis))
//
//	snap := profile.Snapshot()
//	switch {
//	case snap.Loading:
//	case snap.Err != nil:
//	default:
//	    render(snap.Data)
//	}
package resource
