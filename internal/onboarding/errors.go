package onboarding

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStateNotFound = errors.New("onboarding state not found")
	ErrUnknownStep   = errors.New("unknown onboarding step")
	ErrStepNotFound  = errors.New("onboarding step not found")
	ErrConflict      = errors.New("onboarding state was modified by another request")
	ErrStorage       = errors.New("onboarding storage failure")
)

// FieldError describes why a single payload field was rejected
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned when a step payload fails its schema check.
// It is never partially applied.
type ValidationError struct {
	StepID StepID
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Reason)
			continue
		}
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.StepID, strings.Join(parts, "; "))
}

// HookError records a failed lifecycle hook. It is logged, never returned to callers.
type HookError struct {
	Hook     string
	StepID   StepID
	TenantID string
	Err      error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s for step %s (tenant %s): %v", e.Hook, e.StepID, e.TenantID, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func unknownStep(id StepID) error {
	return fmt.Errorf("%w: %q", ErrUnknownStep, id)
}
