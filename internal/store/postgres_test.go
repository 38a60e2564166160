package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/engine"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "pgx")), mock
}

func TestCreateRunInsertsThenLoads(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO workflow_runs`).
		WithArgs("run-1", "cash_application", domain.StatePending, "v1", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	runCols := []string{"id", "name", "state", "current_step", "attempts_for_current_step",
		"next_retry_at", "resolver_version", "result_json", "payload_json", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT \* FROM workflow_runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("run-1", "cash_application", string(domain.StatePending), "", 0, nil, "v1", nil, nil, time.Now(), time.Now()))

	eventCols := []string{"run_id", "seq", "kind", "step_id", "attempt", "payload", "recorded_at"}
	mock.ExpectQuery(`SELECT \* FROM workflow_events WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(eventCols))

	run, err := p.CreateRun(context.Background(), domain.WorkflowRun{
		ID: "run-1", Name: "cash_application", ResolverVersion: "v1",
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.State != domain.StatePending {
		t.Fatalf("want pending, got %s", run.State)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoadMissingRunReturnsErrNotFound(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM workflow_runs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := p.Load(context.Background(), "missing")
	if !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("want engine.ErrNotFound for a missing run, got %v", err)
	}
}

func TestAppendWritesEventsAndProjectionInOneTransaction(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO workflow_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE workflow_runs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	events := []domain.Event{
		{Seq: 1, Kind: domain.EventStepStarted, StepID: "extract", RecordedAt: time.Now()},
	}
	proj := engine.RunProjection{State: domain.StateRunning, CurrentStep: "extract"}

	if err := p.Append(context.Background(), "run-1", events, proj); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListReadySelectsPendingAndDueRunning(t *testing.T) {
	p, mock := newMockStore(t)

	runCols := []string{"id", "name", "state", "current_step", "attempts_for_current_step",
		"next_retry_at", "resolver_version", "result_json", "payload_json", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT \* FROM workflow_runs`).
		WithArgs(domain.StatePending, domain.StateRunning, 10).
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("run-1", "collections", string(domain.StatePending), "", 0, nil, "", nil, nil, time.Now(), time.Now()))

	runs, err := p.ListReady(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListReady: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
