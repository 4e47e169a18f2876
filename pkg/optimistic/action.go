package optimistic

import "context"

// Outcome is how an optimistic action ended.
type Outcome int

const (
	// OutcomeDropped means the action was never applied: its target was busy,
	// its queue was full, the rate budget was exhausted, or the action was
	// invalid.
	OutcomeDropped Outcome = iota

	// OutcomeConfirmed means the commit succeeded.
	OutcomeConfirmed

	// OutcomeRolledBack means the commit failed and the state was reverted.
	OutcomeRolledBack

	// OutcomeSuperseded means a newer action for the same target took over
	// before this one resolved. The state is left to the newer action.
	OutcomeSuperseded
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeDropped:
		return "dropped"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRolledBack:
		return "rolled-back"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Confirm folds authoritative data returned by a commit into the current
// state. A nil Confirm keeps the optimistic state.
type Confirm[S any] func(current S) S

// Message is a notification shown for one outcome. A zero Message shows
// nothing.
type Message struct {
	Title string
	Text  string
}

// IsZero reports whether m shows nothing.
func (m Message) IsZero() bool { return m.Title == "" && m.Text == "" }

// Messages configures the success and error notifications of an action.
type Messages struct {
	Success Message
	Error   Message
}

// Action is one speculative change and its remote confirmation.
type Action[S any] struct {
	// ID correlates the action with its outcome. Generated when empty.
	ID string

	// Target names the logical entity mutated. Actions with an empty target
	// are never serialized against each other.
	Target string

	// Apply produces the optimistic state.
	Apply func(S) S

	// Revert produces the state to restore after a failed commit, given the
	// current state and the snapshot captured just before Apply ran. Under
	// PolicySupersede the snapshot is taken before the oldest action on the
	// target that has not resolved, so a failure also undoes the actions it
	// displaced. A nil Revert restores the snapshot.
	Revert func(current, snapshot S) S

	// Commit performs the remote operation.
	Commit func(ctx context.Context) (Confirm[S], error)

	// Messages shown on success or failure.
	Messages Messages
}

func (a Action[S]) revert(current, snapshot S) S {
	if a.Revert == nil {
		return snapshot
	}
	return a.Revert(current, snapshot)
}

// Result reports the outcome of an action started with Coordinator.Go.
type Result struct {
	ID      string
	Outcome Outcome
	Err     error
}

// Patch pairs an Apply function with its snapshot-based Revert.
type Patch[S any] struct {
	Apply  func(S) S
	Revert func(current, snapshot S) S
}

// Action builds an Action for target from the patch.
func (p Patch[S]) Action(target string, commit func(ctx context.Context) (Confirm[S], error)) Action[S] {
	return Action[S]{
		Target: target,
		Apply:  p.Apply,
		Revert: p.Revert,
		Commit: commit,
	}
}

// Then returns a patch applying p and then next. Reverting runs in reverse
// order against the same snapshot.
func (p Patch[S]) Then(next Patch[S]) Patch[S] {
	return Patch[S]{
		Apply: func(s S) S { return next.Apply(p.Apply(s)) },
		Revert: func(current, snapshot S) S {
			mid := snapshot
			if p.Apply != nil {
				mid = p.Apply(snapshot)
			}
			current = revertOr(next.Revert, current, mid)
			return revertOr(p.Revert, current, snapshot)
		},
	}
}

func revertOr[S any](fn func(current, snapshot S) S, current, snapshot S) S {
	if fn == nil {
		return snapshot
	}
	return fn(current, snapshot)
}
