package optimistic

// Position says where InsertItem places a new item.
type Position int

const (
	// Front places the item first.
	Front Position = iota
	// Back places the item last.
	Back
)

func indexOf[T any, K comparable](items []T, key func(T) K, id K) int {
	for i, it := range items {
		if key(it) == id {
			return i
		}
	}
	return -1
}

// UpdateItem patches the item identified by id with fn. Reverting puts back
// the item as it was in the snapshot, leaving other items untouched.
func UpdateItem[T any, K comparable](key func(T) K, id K, fn func(T) T) Patch[[]T] {
	return PatchItem(key, id, fn, func(_, snapshot T) T { return snapshot })
}

// PatchItem is UpdateItem with a field-level revert: restore receives the
// item as it is now and as it was in the snapshot, and returns the item to
// keep. Changes made to other fields by concurrent actions survive.
func PatchItem[T any, K comparable](key func(T) K, id K, fn func(T) T, restore func(current, snapshot T) T) Patch[[]T] {
	return Patch[[]T]{
		Apply: func(items []T) []T {
			i := indexOf(items, key, id)
			if i < 0 {
				return items
			}
			out := append([]T(nil), items...)
			out[i] = fn(out[i])
			return out
		},
		Revert: func(current, snapshot []T) []T {
			j := indexOf(snapshot, key, id)
			if j < 0 {
				return current
			}
			i := indexOf(current, key, id)
			if i < 0 {
				return current
			}
			out := append([]T(nil), current...)
			out[i] = restore(out[i], snapshot[j])
			return out
		},
	}
}

// InsertItem adds item at pos. Reverting removes it again.
func InsertItem[T any, K comparable](key func(T) K, item T, pos Position) Patch[[]T] {
	id := key(item)
	return Patch[[]T]{
		Apply: func(items []T) []T {
			out := make([]T, 0, len(items)+1)
			if pos == Front {
				out = append(out, item)
				return append(out, items...)
			}
			out = append(out, items...)
			return append(out, item)
		},
		Revert: func(current, _ []T) []T {
			return removeKey(current, key, id)
		},
	}
}

// RemoveItem removes the item identified by id. Reverting restores the
// snapshot's item at its snapshot position, clamped to the current length.
func RemoveItem[T any, K comparable](key func(T) K, id K) Patch[[]T] {
	return Patch[[]T]{
		Apply: func(items []T) []T {
			return removeKey(items, key, id)
		},
		Revert: func(current, snapshot []T) []T {
			j := indexOf(snapshot, key, id)
			if j < 0 || indexOf(current, key, id) >= 0 {
				return current
			}
			item := snapshot[j]
			if j > len(current) {
				j = len(current)
			}
			out := make([]T, 0, len(current)+1)
			out = append(out, current[:j]...)
			out = append(out, item)
			return append(out, current[j:]...)
		},
	}
}

// ReplaceItem swaps the item identified by id for item. Reverting puts the
// snapshot's item back.
func ReplaceItem[T any, K comparable](key func(T) K, id K, item T) Patch[[]T] {
	return UpdateItem(key, id, func(T) T { return item })
}

// Toggle flips a boolean read by get and written by set. Reverting restores
// the value captured in the snapshot rather than flipping again.
func Toggle[S any](get func(S) bool, set func(S, bool) S) Patch[S] {
	return Patch[S]{
		Apply: func(s S) S { return set(s, !get(s)) },
		Revert: func(current, snapshot S) S {
			return set(current, get(snapshot))
		},
	}
}

// Field sets a value read by get and written by set. Reverting restores the
// value captured in the snapshot.
func Field[S any, V any](get func(S) V, set func(S, V) S, value V) Patch[S] {
	return Patch[S]{
		Apply: func(s S) S { return set(s, value) },
		Revert: func(current, snapshot S) S {
			return set(current, get(snapshot))
		},
	}
}

// ReplaceKey returns a Confirm swapping the item identified by id (usually a
// temporary ID) for the authoritative item. If the authoritative item is
// already present, for example because a push delivered it first, the
// temporary item is dropped.
func ReplaceKey[T any, K comparable](key func(T) K, id K, item T) Confirm[[]T] {
	return func(current []T) []T {
		if indexOf(current, key, key(item)) >= 0 && key(item) != id {
			return removeKey(current, key, id)
		}
		i := indexOf(current, key, id)
		if i < 0 {
			return current
		}
		out := append([]T(nil), current...)
		out[i] = item
		return out
	}
}

// MergeItems folds incoming items into current by key. Known items are
// replaced unless keep reports the key as locally owned; unknown items are
// placed before the existing ones in incoming order. keep may be nil.
func MergeItems[T any, K comparable](key func(T) K, current, incoming []T, keep func(K) bool) []T {
	out := append([]T(nil), current...)
	var fresh []T
	for _, it := range incoming {
		id := key(it)
		if i := indexOf(out, key, id); i >= 0 {
			if keep == nil || !keep(id) {
				out[i] = it
			}
			continue
		}
		if indexOf(fresh, key, id) >= 0 {
			continue
		}
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return out
	}
	return append(fresh, out...)
}

func removeKey[T any, K comparable](items []T, key func(T) K, id K) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if key(it) != id {
			out = append(out, it)
		}
	}
	return out
}
