package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/policy"
)

type memStore struct {
	runs map[string]domain.WorkflowRun
}

func newMemStore() *memStore { return &memStore{runs: map[string]domain.WorkflowRun{}} }

func (m *memStore) CreateRun(_ context.Context, run domain.WorkflowRun) (domain.WorkflowRun, error) {
	if existing, ok := m.runs[run.ID]; ok {
		return existing, nil
	}
	run.State = domain.StatePending
	m.runs[run.ID] = run
	return run, nil
}

func (m *memStore) Load(_ context.Context, runID string) (domain.WorkflowRun, error) {
	run, ok := m.runs[runID]
	if !ok {
		return domain.WorkflowRun{}, ErrNotFound
	}
	return run, nil
}

func (m *memStore) Append(_ context.Context, runID string, events []domain.Event, proj RunProjection) error {
	run := m.runs[runID]
	run.History = append(run.History, events...)
	run.State = proj.State
	run.CurrentStep = proj.CurrentStep
	run.AttemptsForCurrentStep = proj.AttemptsForCurrentStep
	run.Result = proj.Result
	m.runs[runID] = run
	return nil
}

func (m *memStore) ListReady(_ context.Context, limit int) ([]domain.WorkflowRun, error) {
	var out []domain.WorkflowRun
	for _, r := range m.runs {
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memLease struct{ held map[string]bool }

func newMemLease() *memLease { return &memLease{held: map[string]bool{}} }

func (l *memLease) Acquire(_ context.Context, runID string, _ time.Duration) (bool, error) {
	if l.held[runID] {
		return false, nil
	}
	l.held[runID] = true
	return true, nil
}

func (l *memLease) Renew(_ context.Context, runID string, _ time.Duration) (bool, error) {
	return l.held[runID], nil
}

func (l *memLease) Release(_ context.Context, runID string) error {
	delete(l.held, runID)
	return nil
}

func onceRetryPolicy() policy.RetryPolicy {
	return policy.RetryPolicy{
		MaxAttempts:        2,
		InitialInterval:    time.Millisecond,
		BackoffCoefficient: 2,
		MaxInterval:        10 * time.Millisecond,
	}
}

func TestExecuteRunsStepsToCompletion(t *testing.T) {
	store := newMemStore()
	lease := newMemLease()
	eng := New(store, lease, nil)

	run, err := store.CreateRun(context.Background(), domain.WorkflowRun{ID: "run-1", Name: "noop"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	def := WorkflowDef{
		Name: "noop",
		Body: func(rc *RunContext) (*domain.RunResult, error) {
			_, err := rc.Do(Step{
				ID:     "step-a",
				Policy: onceRetryPolicy(),
				Run: func(_ context.Context, _ domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
					return domain.AttemptOK, map[string]string{"ok": "true"}, nil
				},
			})
			if err != nil {
				return nil, err
			}
			return &domain.RunResult{Kind: domain.OutcomeCompleted}, nil
		},
	}

	result := eng.Execute(context.Background(), run, def)
	if result.Kind != domain.OutcomeCompleted {
		t.Fatalf("want completed, got %s: %s", result.Kind, result.Error)
	}

	loaded, err := store.Load(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.State != domain.StateCompleted {
		t.Fatalf("want state completed, got %s", loaded.State)
	}
	if lease.held["run-1"] {
		t.Fatal("lease should be released after Execute returns")
	}
}

func TestExecuteRetriesTransientFailuresThenFails(t *testing.T) {
	store := newMemStore()
	lease := newMemLease()
	eng := New(store, lease, nil)

	run, _ := store.CreateRun(context.Background(), domain.WorkflowRun{ID: "run-2", Name: "flaky"})

	attempts := 0
	def := WorkflowDef{
		Name: "flaky",
		Body: func(rc *RunContext) (*domain.RunResult, error) {
			_, err := rc.Do(Step{
				ID:     "step-a",
				Policy: onceRetryPolicy(),
				Run: func(_ context.Context, _ domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
					attempts++
					return domain.AttemptTransientError, nil, errors.New("boom")
				},
			})
			return nil, err
		},
	}

	result := eng.Execute(context.Background(), run, def)
	if result.Kind != domain.OutcomeFailed {
		t.Fatalf("want failed, got %s", result.Kind)
	}
	if attempts != 2 {
		t.Fatalf("want 2 attempts (MaxAttempts), got %d", attempts)
	}
}

func TestExecuteReflectsCancellationRequestedMidRun(t *testing.T) {
	store := newMemStore()
	lease := newMemLease()
	eng := New(store, lease, nil)

	run, _ := store.CreateRun(context.Background(), domain.WorkflowRun{ID: "run-3", Name: "cancelling"})
	run.State = domain.StateCancelling
	store.runs["run-3"] = run

	def := WorkflowDef{
		Name: "cancelling",
		Body: func(rc *RunContext) (*domain.RunResult, error) {
			_, err := rc.Do(Step{
				ID:     "step-a",
				Policy: onceRetryPolicy(),
				Run: func(_ context.Context, _ domain.IdempotencyKey) (domain.AttemptOutcome, map[string]string, error) {
					t.Fatal("step should not run once cancellation is observed")
					return domain.AttemptOK, nil, nil
				},
			})
			return nil, err
		},
	}

	result := eng.Execute(context.Background(), run, def)
	if result.Kind != domain.OutcomeCancelled {
		t.Fatalf("want cancelled, got %s", result.Kind)
	}
}
