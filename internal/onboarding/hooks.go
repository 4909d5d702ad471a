package onboarding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultHookTimeout = 5 * time.Second

// HookEvent is passed to lifecycle hooks after a step has been persisted.
type HookEvent struct {
	TenantID string
	StepID   StepID
	Data     StepData
	// State is a snapshot of the persisted state; hooks must not write it back.
	State OnboardingState
}

// Hook is a best-effort side effect of completing a step
type Hook func(ctx context.Context, event HookEvent) error

type registeredHook struct {
	name string
	fn   Hook
}

// Dispatcher runs the lifecycle hooks registered for a step. Failures,
// panics and timeouts are logged and swallowed.
type Dispatcher struct {
	mu      sync.RWMutex
	hooks   map[StepID][]registeredHook
	timeout time.Duration
	logger  *zap.Logger
	metrics *Metrics
}

type DispatcherOption func(*Dispatcher)

// WithHookTimeout bounds the execution time of each hook
func WithHookTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDispatcherMetrics records hook durations and failures
func WithDispatcherMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher with no hooks
func NewDispatcher(logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		hooks:   make(map[StepID][]registeredHook),
		timeout: defaultHookTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a hook for step. Hooks run in registration order.
func (d *Dispatcher) Register(step StepID, name string, hook Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[step] = append(d.hooks[step], registeredHook{name: name, fn: hook})
}

// RegisterAll adds a hook for every step
func (d *Dispatcher) RegisterAll(name string, hook Hook) {
	for _, def := range stepDefinitions {
		d.Register(def.ID, name, hook)
	}
}

// Hooks returns the names of the hooks registered for step
func (d *Dispatcher) Hooks(step StepID) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.hooks[step]))
	for _, h := range d.hooks[step] {
		names = append(names, h.name)
	}
	return names
}

// Run executes the hooks for event.StepID and returns the number that failed.
func (d *Dispatcher) Run(ctx context.Context, event HookEvent) int {
	d.mu.RLock()
	hooks := append([]registeredHook(nil), d.hooks[event.StepID]...)
	d.mu.RUnlock()

	failed := 0
	for _, h := range hooks {
		start := time.Now()
		err := d.runOne(ctx, h, event)
		d.metrics.observeHook(event.StepID, h.name, time.Since(start), err)
		if err != nil {
			failed++
			hookErr := &HookError{Hook: h.name, StepID: event.StepID, TenantID: event.TenantID, Err: err}
			d.logger.Warn("Lifecycle hook failed",
				zap.String("tenant_id", event.TenantID),
				zap.String("step_id", string(event.StepID)),
				zap.String("hook", h.name),
				zap.Error(hookErr))
		}
	}
	return failed
}

func (d *Dispatcher) runOne(ctx context.Context, h registeredHook, event HookEvent) error {
	hctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("hook panicked: %v", r)
			}
		}()
		done <- h.fn(hctx, event)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		return fmt.Errorf("hook did not finish within %s: %w", d.timeout, hctx.Err())
	}
}
