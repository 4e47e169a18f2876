package resource

import "sync"

// Visibility tracks whether the surface showing resources is visible, for
// example a browser tab or a terminal pane. Resources subscribed with
// RefetchOnWindowFocus refetch on every hidden to visible transition.
type Visibility struct {
	mu      sync.Mutex
	visible bool
	subs    map[uint64]func()
	nextID  uint64
}

// NewVisibility creates a Visibility with the given initial value.
func NewVisibility(visible bool) *Visibility {
	return &Visibility{visible: visible, subs: make(map[uint64]func())}
}

// Visible reports the current value.
func (v *Visibility) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// SetVisible updates the value. Listeners run only when the value goes from
// false to true; repeated calls with the same value do nothing.
func (v *Visibility) SetVisible(visible bool) {
	v.mu.Lock()
	shown := visible && !v.visible
	v.visible = visible
	var fns []func()
	if shown {
		fns = make([]func(), 0, len(v.subs))
		for _, fn := range v.subs {
			fns = append(fns, fn)
		}
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OnShow registers fn for hidden to visible transitions. The returned
// function removes it.
func (v *Visibility) OnShow(fn func()) func() {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.subs[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}
