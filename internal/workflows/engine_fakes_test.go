package workflows

import (
	"context"
	"time"

	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/engine"
)

// testStore is a minimal in-memory engine.Store for driving a
// WorkflowDef end-to-end in tests without a real database.
type testStore struct {
	runs map[string]domain.WorkflowRun
}

func newTestStore() *testStore { return &testStore{runs: map[string]domain.WorkflowRun{}} }

func (s *testStore) CreateRun(_ context.Context, run domain.WorkflowRun) (domain.WorkflowRun, error) {
	if existing, ok := s.runs[run.ID]; ok {
		return existing, nil
	}
	run.State = domain.StatePending
	s.runs[run.ID] = run
	return run, nil
}

func (s *testStore) Load(_ context.Context, runID string) (domain.WorkflowRun, error) {
	run, ok := s.runs[runID]
	if !ok {
		return domain.WorkflowRun{}, engine.ErrNotFound
	}
	return run, nil
}

func (s *testStore) Append(_ context.Context, runID string, events []domain.Event, proj engine.RunProjection) error {
	run := s.runs[runID]
	run.History = append(run.History, events...)
	run.State = proj.State
	run.CurrentStep = proj.CurrentStep
	run.Result = proj.Result
	s.runs[runID] = run
	return nil
}

func (s *testStore) ListReady(_ context.Context, limit int) ([]domain.WorkflowRun, error) {
	return nil, nil
}

// testLease always grants the lease; workflow tests exercise a single
// worker so real mutual exclusion is out of scope here.
type testLease struct{}

func (testLease) Acquire(_ context.Context, _ string, _ time.Duration) (bool, error) { return true, nil }
func (testLease) Renew(_ context.Context, _ string, _ time.Duration) (bool, error)   { return true, nil }
func (testLease) Release(_ context.Context, _ string) error                         { return nil }
