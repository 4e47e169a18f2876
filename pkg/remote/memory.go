package remote

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Remote. It is safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Row
	broker      *Broker
	now         func() time.Time
	fault       func(method, collection string) error
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Row),
		broker:      NewBroker(nil),
		now:         time.Now,
	}
}

// SetClock overrides the time source used for created_at/updated_at.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetFault installs a hook consulted before every operation; a non-nil
// return fails the operation with that error. method is one of "read",
// "write", "remove" or "subscribe". Pass nil to clear.
func (m *Memory) SetFault(fn func(method, collection string) error) {
	m.mu.Lock()
	m.fault = fn
	m.mu.Unlock()
}

// Seed inserts rows without publishing changes.
func (m *Memory) Seed(collection string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		r = r.Clone()
		if r.ID() == "" {
			r[FieldID] = uuid.NewString()
		}
		if _, ok := r[FieldCreatedAt]; !ok {
			r[FieldCreatedAt] = m.now().UTC().Format(time.RFC3339Nano)
		}
		m.table(collection)[r.ID()] = r
	}
}

func (m *Memory) table(collection string) map[string]Row {
	t, ok := m.collections[collection]
	if !ok {
		t = make(map[string]Row)
		m.collections[collection] = t
	}
	return t
}

func (m *Memory) check(method, collection string) error {
	if m.fault == nil {
		return nil
	}
	return m.fault(method, collection)
}

// Read returns the rows of collection selected by f.
func (m *Memory) Read(ctx context.Context, collection string, f Filter) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("read", collection); err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(m.collections[collection]))
	for _, r := range m.collections[collection] {
		rows = append(rows, r)
	}
	if f.OrderBy == "" {
		f.OrderBy = FieldID
	}
	selected := f.Apply(rows)
	out := make([]Row, len(selected))
	for i, r := range selected {
		out[i] = r.Clone()
	}
	return out, nil
}

// Write applies m to collection and returns the stored row.
func (m *Memory) Write(ctx context.Context, collection string, mut Mutation) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if err := m.check("write", collection); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	key := mut.Key
	if key == "" {
		key = mut.Values.ID()
	}
	t := m.table(collection)
	now := m.now().UTC().Format(time.RFC3339Nano)
	existing, exists := t[key]

	var (
		stored Row
		kind   ChangeKind
	)
	switch mut.Op {
	case OpInsert:
		if key == "" {
			key = uuid.NewString()
		} else if exists {
			m.mu.Unlock()
			return nil, Errorf(CodeConflict, "%s/%s already exists", collection, key)
		}
		stored = mut.Values.Clone()
		if stored == nil {
			stored = Row{}
		}
		if _, ok := stored[FieldCreatedAt]; !ok {
			stored[FieldCreatedAt] = now
		}
		kind = ChangeInsert
	case OpUpdate:
		if !exists {
			m.mu.Unlock()
			return nil, Errorf(CodeNotFound, "%s/%s not found", collection, key)
		}
		stored = existing.Clone()
		for k, v := range mut.Values {
			stored[k] = v
		}
		kind = ChangeUpdate
	case OpUpsert:
		if key == "" {
			m.mu.Unlock()
			return nil, Errorf(CodeInvalid, "upsert into %s requires a key", collection)
		}
		stored = mut.Values.Clone()
		if stored == nil {
			stored = Row{}
		}
		if exists {
			stored[FieldCreatedAt] = existing[FieldCreatedAt]
			kind = ChangeUpdate
		} else {
			if _, ok := stored[FieldCreatedAt]; !ok {
				stored[FieldCreatedAt] = now
			}
			kind = ChangeInsert
		}
	default:
		m.mu.Unlock()
		return nil, Errorf(CodeInvalid, "unknown op %q", mut.Op)
	}

	stored[FieldID] = key
	stored[FieldUpdatedAt] = now
	t[key] = stored
	out := stored.Clone()
	m.mu.Unlock()

	m.broker.Publish(Change{Collection: collection, Kind: kind, Key: key, Row: out})
	return out.Clone(), nil
}

// Remove deletes the row with key.
func (m *Memory) Remove(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.check("remove", collection); err != nil {
		m.mu.Unlock()
		return err
	}
	t := m.table(collection)
	old, ok := t[key]
	if !ok {
		m.mu.Unlock()
		return Errorf(CodeNotFound, "%s/%s not found", collection, key)
	}
	delete(t, key)
	m.mu.Unlock()

	m.broker.Publish(Change{Collection: collection, Kind: ChangeDelete, Key: key, Row: old})
	return nil
}

// Subscribe registers onChange for changes to collection matching f.
func (m *Memory) Subscribe(ctx context.Context, collection string, f Filter, onChange func(Change)) (Unsubscribe, error) {
	m.mu.RLock()
	err := m.check("subscribe", collection)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return m.broker.Subscribe(ctx, collection, f, onChange), nil
}
