package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bizhub/platform/platform-backend/pkg/workflows"
)

// Service is the onboarding state machine. It is the only writer of
// OnboardingState; every call loads a fresh copy from the Store.
type Service struct {
	store     Store
	registry  *Registry
	hooks     *Dispatcher
	lifecycle *workflows.StateMachine
	steps     *workflows.StateMachine
	logger    *zap.Logger
	metrics   *Metrics
	now       func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMetrics records transition outcomes
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a new onboarding service
func NewService(store Store, registry *Registry, hooks *Dispatcher, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		registry:  registry,
		hooks:     hooks,
		lifecycle: workflows.NewLifecycleMachine(),
		steps:     workflows.NewStepMachine(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize writes a fresh state for tenantID, overwriting any existing one.
func (s *Service) Initialize(ctx context.Context, tenantID string) (state *OnboardingState, err error) {
	defer func() { s.metrics.observeTransition("initialize", "", err) }()

	version := int64(1)
	existing, err := s.store.Get(ctx, tenantID)
	switch {
	case err == nil:
		version = existing.Version + 1
	case !errors.Is(err, ErrStateNotFound):
		return nil, err
	}

	state = s.newState(tenantID, s.now())
	state.Version = version
	if err := s.store.Put(ctx, state, AnyVersion); err != nil {
		return nil, err
	}

	s.logger.Info("Onboarding initialized", zap.String("tenant_id", tenantID))
	return state, nil
}

// GetState returns the stored state or ErrStateNotFound
func (s *Service) GetState(ctx context.Context, tenantID string) (*OnboardingState, error) {
	return s.store.Get(ctx, tenantID)
}

// GetOrInitialize returns the stored state, initializing it on first access.
func (s *Service) GetOrInitialize(ctx context.Context, tenantID string) (*OnboardingState, error) {
	state, err := s.store.Get(ctx, tenantID)
	if errors.Is(err, ErrStateNotFound) {
		return s.Initialize(ctx, tenantID)
	}
	return state, err
}

// GetStep returns a single step of the tenant's onboarding
func (s *Service) GetStep(ctx context.Context, tenantID string, stepID StepID) (*OnboardingStep, error) {
	if _, err := s.registry.Lookup(stepID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}

	state, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	step, ok := state.Step(stepID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStepNotFound, stepID)
	}
	return step, nil
}

// CompleteStep validates payload for stepID, marks the step completed,
// advances currentStep to the first incomplete step and persists the state.
// Hooks for the step run after the write; their failures do not affect the
// result.
func (s *Service) CompleteStep(ctx context.Context, tenantID string, stepID StepID, payload []byte) (state *OnboardingState, err error) {
	label := StepID("unknown")
	defer func() { s.metrics.observeTransition("complete_step", label, err) }()

	idx, err := s.registry.IndexOf(stepID)
	if err != nil {
		return nil, err
	}
	label = stepID

	state, err = s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	data, err := s.registry.Validate(stepID, payload)
	if err != nil {
		return nil, err
	}

	if idx >= len(state.Steps) || state.Steps[idx].ID != stepID {
		return nil, storageError("complete step", fmt.Errorf("stored state has no step %s at position %d", stepID, idx))
	}
	step := &state.Steps[idx]

	now := s.now()
	before := state.Lifecycle()

	step.Completed = true
	step.Data = data
	step.CompletedAt = &now

	if err := s.recompute(state, now); err != nil {
		return nil, err
	}
	if err := s.lifecycle.Transition(before, state.Lifecycle()); err != nil {
		return nil, err
	}

	expected := state.Version
	state.Version++
	state.UpdatedAt = now
	if err := s.store.Put(ctx, state, expected); err != nil {
		return nil, err
	}

	s.logger.Info("Onboarding step completed",
		zap.String("tenant_id", tenantID),
		zap.String("step_id", string(stepID)),
		zap.Int("current_step", state.CurrentStep),
		zap.Bool("is_completed", state.IsCompleted))

	s.runHooks(ctx, state, stepID, data)
	return state, nil
}

// Reset restores the creation state for an existing tenant
func (s *Service) Reset(ctx context.Context, tenantID string) (state *OnboardingState, err error) {
	defer func() { s.metrics.observeTransition("reset", "", err) }()

	existing, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	state = s.newState(tenantID, s.now())
	state.Version = existing.Version + 1
	state.CreatedAt = existing.CreatedAt
	if err := s.store.Put(ctx, state, AnyVersion); err != nil {
		return nil, err
	}

	s.logger.Info("Onboarding reset",
		zap.String("tenant_id", tenantID),
		zap.String("from", existing.Lifecycle()))
	return state, nil
}

// CompleteOnboarding marks the onboarding completed without requiring every
// step. It skips payload validation and hooks; callers must authorize it
// separately. actorID is recorded on the state.
func (s *Service) CompleteOnboarding(ctx context.Context, tenantID, actorID string) (state *OnboardingState, err error) {
	defer func() { s.metrics.observeTransition("force_complete", "", err) }()

	state, err = s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if state.IsCompleted {
		return state, nil
	}
	if err := s.lifecycle.Transition(state.Lifecycle(), workflows.StatusCompleted); err != nil {
		return nil, err
	}

	now := s.now()
	state.IsCompleted = true
	state.CompletedAt = &now
	state.ForceCompletedBy = actorID

	expected := state.Version
	state.Version++
	state.UpdatedAt = now
	if err := s.store.Put(ctx, state, expected); err != nil {
		return nil, err
	}

	s.logger.Warn("Onboarding force-completed",
		zap.String("tenant_id", tenantID),
		zap.String("actor_id", actorID),
		zap.Int("current_step", state.CurrentStep))
	return state, nil
}

func (s *Service) newState(tenantID string, now time.Time) *OnboardingState {
	defs := s.registry.Definitions()
	steps := make([]OnboardingStep, len(defs))
	for i, def := range defs {
		steps[i] = OnboardingStep{
			ID:          def.ID,
			Title:       def.Title,
			Description: def.Description,
			Status:      workflows.StepPending,
		}
	}
	if len(steps) > 0 {
		steps[0].Status = workflows.StepCurrent
	}

	return &OnboardingState{
		TenantID:    tenantID,
		CurrentStep: 0,
		IsCompleted: false,
		Steps:       steps,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// recompute derives currentStep, isCompleted and step statuses from the
// per-step completed flags. currentStep is the first incomplete step, not the
// previous value plus one, because steps can be completed out of order.
func (s *Service) recompute(state *OnboardingState, now time.Time) error {
	state.CurrentStep = state.FirstIncomplete()
	state.IsCompleted = state.AllCompleted()
	if state.IsCompleted {
		if state.CompletedAt == nil {
			state.CompletedAt = &now
		}
	} else {
		state.CompletedAt = nil
		state.ForceCompletedBy = ""
	}

	for i := range state.Steps {
		step := &state.Steps[i]
		next := workflows.StepPending
		switch {
		case step.Completed:
			next = workflows.StepCompleted
		case i == state.CurrentStep:
			next = workflows.StepCurrent
		}
		if step.Status != "" {
			if err := s.steps.Transition(step.Status, next); err != nil {
				return fmt.Errorf("step %s: %w", step.ID, err)
			}
		}
		step.Status = next
	}
	return nil
}

func (s *Service) runHooks(ctx context.Context, state *OnboardingState, stepID StepID, data StepData) {
	if s.hooks == nil {
		return
	}

	snapshot, err := state.Clone()
	if err != nil {
		s.logger.Error("Failed to snapshot onboarding state for hooks",
			zap.String("tenant_id", state.TenantID),
			zap.Error(err))
		return
	}

	// Hooks outlive a client disconnect; the dispatcher bounds each one.
	failed := s.hooks.Run(context.WithoutCancel(ctx), HookEvent{
		TenantID: state.TenantID,
		StepID:   stepID,
		Data:     data,
		State:    *snapshot,
	})
	if failed > 0 {
		s.logger.Warn("Onboarding step completed with hook failures",
			zap.String("tenant_id", state.TenantID),
			zap.String("step_id", string(stepID)),
			zap.Int("failed_hooks", failed))
	}
}
