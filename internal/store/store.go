package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mohallaa/mohallaa/pkg/remote"
)

// Store keeps rows in SQLite.
type Store struct {
	db     *sql.DB
	broker *remote.Broker
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the time source for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" opens a private in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return New(db, opts...), nil
}

// OpenDB opens the SQLite database with a single connection, so that an
// in-memory database is shared by every query.
func OpenDB(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// New wraps an already migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "store")
	s.broker = remote.NewBroker(s.logger)
	return s
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func validCollection(c string) error {
	if c == "" || strings.ContainsAny(c, "/ ") {
		return remote.Errorf(remote.CodeInvalid, "invalid collection %q", c)
	}
	return nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &remote.Error{Message: op + " failed", Code: remote.CodeUnavailable, Err: err}
}

func decodeRow(data string) (remote.Row, error) {
	var r remote.Row
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, err
	}
	return r, nil
}

// Read returns the rows of collection selected by f. Without an order the
// rows come back by key.
func (s *Store) Read(ctx context.Context, collection string, f remote.Filter) ([]remote.Row, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM records WHERE collection = ? ORDER BY key`, collection)
	if err != nil {
		return nil, unavailable("read "+collection, err)
	}
	defer rows.Close()

	var out []remote.Row
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, unavailable("read "+collection, err)
		}
		r, err := decodeRow(data)
		if err != nil {
			return nil, unavailable("decode "+collection, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read "+collection, err)
	}
	return f.Apply(out), nil
}

// Write applies m to collection and returns the stored row.
func (s *Store) Write(ctx context.Context, collection string, m remote.Mutation) (remote.Row, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("write "+collection, err)
	}
	defer tx.Rollback()

	key := m.Key
	if key == "" {
		key = m.Values.ID()
	}

	var (
		existing remote.Row
		exists   bool
	)
	if key != "" {
		var data string
		err := tx.QueryRowContext(ctx, `SELECT data FROM records WHERE collection = ? AND key = ?`, collection, key).Scan(&data)
		switch {
		case err == nil:
			exists = true
			if existing, err = decodeRow(data); err != nil {
				return nil, unavailable("decode "+collection, err)
			}
		case !errors.Is(err, sql.ErrNoRows):
			return nil, unavailable("write "+collection, err)
		}
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	var (
		stored remote.Row
		kind   remote.ChangeKind
	)
	switch m.Op {
	case remote.OpInsert:
		if key == "" {
			key = uuid.NewString()
		} else if exists {
			return nil, remote.Errorf(remote.CodeConflict, "%s/%s already exists", collection, key)
		}
		stored = m.Values.Clone()
		if stored == nil {
			stored = remote.Row{}
		}
		if _, ok := stored[remote.FieldCreatedAt]; !ok {
			stored[remote.FieldCreatedAt] = now
		}
		kind = remote.ChangeInsert
	case remote.OpUpdate:
		if !exists {
			return nil, remote.Errorf(remote.CodeNotFound, "%s/%s not found", collection, key)
		}
		stored = existing
		for k, v := range m.Values {
			stored[k] = v
		}
		kind = remote.ChangeUpdate
	case remote.OpUpsert:
		if key == "" {
			return nil, remote.Errorf(remote.CodeInvalid, "upsert into %s requires a key", collection)
		}
		stored = m.Values.Clone()
		if stored == nil {
			stored = remote.Row{}
		}
		if exists {
			stored[remote.FieldCreatedAt] = existing[remote.FieldCreatedAt]
			kind = remote.ChangeUpdate
		} else {
			if _, ok := stored[remote.FieldCreatedAt]; !ok {
				stored[remote.FieldCreatedAt] = now
			}
			kind = remote.ChangeInsert
		}
	default:
		return nil, remote.Errorf(remote.CodeInvalid, "unknown op %q", m.Op)
	}

	stored[remote.FieldID] = key
	stored[remote.FieldUpdatedAt] = now
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, remote.Errorf(remote.CodeInvalid, "encode row: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (collection, key, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, key, string(data), stored.String(remote.FieldCreatedAt), now)
	if err != nil {
		return nil, unavailable("write "+collection, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("write "+collection, err)
	}

	// Round-trip through JSON so callers see the same types a Read returns.
	out, err := decodeRow(string(data))
	if err != nil {
		return nil, unavailable("decode "+collection, err)
	}
	s.broker.Publish(remote.Change{Collection: collection, Kind: kind, Key: key, Row: out.Clone()})
	s.logger.Debug("row written", "collection", collection, "key", key, "kind", kind)
	return out, nil
}

// Remove deletes the row with key.
func (s *Store) Remove(ctx context.Context, collection, key string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("remove "+collection, err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM records WHERE collection = ? AND key = ?`, collection, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.Errorf(remote.CodeNotFound, "%s/%s not found", collection, key)
	}
	if err != nil {
		return unavailable("remove "+collection, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND key = ?`, collection, key); err != nil {
		return unavailable("remove "+collection, err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("remove "+collection, err)
	}

	old, err := decodeRow(data)
	if err != nil {
		old = remote.Row{remote.FieldID: key}
	}
	s.broker.Publish(remote.Change{Collection: collection, Kind: remote.ChangeDelete, Key: key, Row: old})
	return nil
}

// Subscribe registers onChange for changes to collection matching f.
func (s *Store) Subscribe(ctx context.Context, collection string, f remote.Filter, onChange func(remote.Change)) (remote.Unsubscribe, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	return s.broker.Subscribe(ctx, collection, f, onChange), nil
}

// Collections lists the collections that hold at least one row.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT collection FROM records ORDER BY collection`)
	if err != nil {
		return nil, unavailable("list collections", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ remote.Remote = (*Store)(nil)
