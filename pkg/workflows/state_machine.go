package workflows

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change is not allowed by the machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// Onboarding lifecycle statuses
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Per-step statuses
const (
	StepPending   = "pending"
	StepCurrent   = "current"
	StepCompleted = "completed"
)

// StateMachine enforces status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a state machine from an allowed-transition table.
func NewStateMachine(allowed map[string][]string) *StateMachine {
	return &StateMachine{allowedTransitions: allowed}
}

// NewLifecycleMachine returns the machine for the overall onboarding status.
// completed -> in_progress happens on reset, or when a force-completed state
// is recomputed after a later step submission.
func NewLifecycleMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		StatusInProgress: {StatusCompleted},
		StatusCompleted:  {StatusInProgress},
	})
}

// NewStepMachine returns the machine for a single onboarding step.
// Steps may be completed out of order, so pending -> completed is allowed.
// A completed step only leaves that status through a reset, which rebuilds
// the steps instead of transitioning them.
func NewStepMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		StepPending:   {StepCurrent, StepCompleted},
		StepCurrent:   {StepCompleted},
		StepCompleted: {},
	})
}

// CanTransition checks if a status transition is allowed. Staying in the same
// status is always allowed.
func (sm *StateMachine) CanTransition(from, to string) bool {
	if from == to {
		_, exists := sm.allowedTransitions[from]
		return exists
	}
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// Transition returns ErrInvalidTransition when from -> to is not allowed.
func (sm *StateMachine) Transition(from, to string) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}
