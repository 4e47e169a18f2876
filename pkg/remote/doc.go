// Package remote defines the data-access contract between Mohallaa hooks and
// the backend that stores rows.
//
// A backend exposes named collections of rows. Hooks read with a Filter,
// write with a Mutation, remove by key, and subscribe to a change feed:
//
//	rows, err := r.Read(ctx, "posts", remote.Filter{OrderBy: "created_at", Desc: true, Limit: 20})
//	row, err := r.Write(ctx, "bookmarks", remote.Insert(remote.Row{"post_id": id, "user_id": uid}))
//	err = r.Remove(ctx, "bookmarks", key)
//	unsub, err := r.Subscribe(ctx, "notifications", remote.Filter{Eq: map[string]any{"user_id": uid}}, onChange)
//
// Every row carries a string "id" key and a "created_at" RFC 3339 timestamp
// assigned on insert when absent.
//
// Failures are reported as *Error values with a human-readable message and
// an optional machine code. Memory is a complete in-process backend used in
// tests and local development; the SQLite store and the HTTP client in other
// packages implement the same interface.
package remote
