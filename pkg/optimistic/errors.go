package optimistic

import (
	"errors"
	"fmt"
)

// ErrTargetBusy is returned when an action is dropped because another action
// for the same target is still pending.
var ErrTargetBusy = errors.New("optimistic: target has a pending action")

// ErrQueueFull is returned when a target's queue cannot accept more actions.
var ErrQueueFull = errors.New("optimistic: target queue full")

// ErrTimeout is returned, wrapped with the commit's error, when a commit does
// not settle within the coordinator's timeout.
var ErrTimeout = errors.New("optimistic: commit timed out")

// ErrBudgetExceeded is returned when actions are submitted faster than the
// coordinator's rate budget allows.
var ErrBudgetExceeded = errors.New("optimistic: action budget exceeded")

// ErrInvalidAction is returned for actions missing Apply or Commit.
var ErrInvalidAction = errors.New("optimistic: action requires Apply and Commit")

// errCommitPanic wraps a panic recovered from Commit.
type errCommitPanic struct {
	value any
}

func (e *errCommitPanic) Error() string {
	return fmt.Sprintf("optimistic: commit panicked: %v", e.value)
}
