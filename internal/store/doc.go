// Package store is a SQLite implementation of remote.Remote.
//
// Rows of every collection live in one table as JSON documents keyed by
// (collection, key). Filters are evaluated in Go with remote.Filter.Apply,
// and writes are published to subscribers after they commit.
package store
