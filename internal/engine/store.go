package engine

import (
	"context"
	"time"

	"github.com/zoobzio/cashapp/internal/domain"
)

// Store is the durable history-log interface the engine persists through.
// Implementations MUST append events atomically with a strictly
// increasing per-run Seq (internal/store/postgres is the production
// adapter, backed by pgx/sqlx against the workflow_runs/workflow_events
// tables described in SPEC_FULL.md §3.1).
type Store interface {
	// CreateRun inserts a new pending run, or returns the existing run for
	// the same id unchanged (idempotent submission, §4.8/§8).
	CreateRun(ctx context.Context, run domain.WorkflowRun) (domain.WorkflowRun, error)
	// Load returns a run and its full history by id.
	Load(ctx context.Context, runID string) (domain.WorkflowRun, error)
	// Append adds events to a run's history and updates its projected
	// fields (state, current_step, attempts, next_retry_at) atomically.
	Append(ctx context.Context, runID string, events []domain.Event, projection RunProjection) error
	// ListReady returns runs in a schedulable state: pending, or running
	// with a due next_retry_at. Leases are not consulted here; a run that
	// is leased elsewhere is turned away when Execute fails to acquire it.
	ListReady(ctx context.Context, limit int) ([]domain.WorkflowRun, error)
}

// RunProjection is the cheap-read projection the store maintains
// alongside the append-only history, recomputed by the caller (the
// engine) on every Append.
type RunProjection struct {
	State                  domain.WorkflowState
	CurrentStep            string
	AttemptsForCurrentStep int
	NextRetryAt            time.Time
	Result                 *domain.RunResult
}

// ErrNotFound is returned by Store.Load when no run exists for the id.
var ErrNotFound = storeErr("run not found")

type storeErr string

func (e storeErr) Error() string { return string(e) }
