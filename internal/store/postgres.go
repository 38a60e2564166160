// Package store implements the durable history-log (internal/engine.Store)
// against Postgres via jackc/pgx/v5 and jmoiron/sqlx, mapping onto the
// workflow_runs / workflow_events tables described in SPEC_FULL.md §3.1.
// Schema migrations live under internal/store/migrations and are applied
// with pressly/goose.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/engine"
)

// Postgres is the production engine.Store implementation.
type Postgres struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type runRow struct {
	ID                     string         `db:"id"`
	Name                   string         `db:"name"`
	State                  string         `db:"state"`
	CurrentStep            sql.NullString `db:"current_step"`
	AttemptsForCurrentStep int            `db:"attempts_for_current_step"`
	NextRetryAt            sql.NullTime   `db:"next_retry_at"`
	ResolverVersion        sql.NullString `db:"resolver_version"`
	ResultJSON             sql.NullString `db:"result_json"`
	PayloadJSON            sql.NullString `db:"payload_json"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

func (r runRow) toDomain() domain.WorkflowRun {
	run := domain.WorkflowRun{
		ID:                     r.ID,
		Name:                   r.Name,
		State:                  domain.WorkflowState(r.State),
		CurrentStep:            r.CurrentStep.String,
		AttemptsForCurrentStep: r.AttemptsForCurrentStep,
		ResolverVersion:        r.ResolverVersion.String,
		Payload:                r.PayloadJSON.String,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
	if r.NextRetryAt.Valid {
		run.NextRetryAt = r.NextRetryAt.Time
	}
	if r.ResultJSON.Valid && r.ResultJSON.String != "" {
		var result domain.RunResult
		if json.Unmarshal([]byte(r.ResultJSON.String), &result) == nil {
			run.Result = &result
		}
	}
	return run
}

// CreateRun inserts a new run, or returns the existing one unchanged if a
// run with the same id was already submitted (§4.8 idempotent start).
func (p *Postgres) CreateRun(ctx context.Context, run domain.WorkflowRun) (domain.WorkflowRun, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, name, state, current_step, attempts_for_current_step, resolver_version, payload_json, created_at, updated_at)
		VALUES ($1, $2, $3, '', 0, $4, NULLIF($5, ''), now(), now())
		ON CONFLICT (id) DO NOTHING
	`, run.ID, run.Name, domain.StatePending, run.ResolverVersion, run.Payload)
	if err != nil {
		return domain.WorkflowRun{}, err
	}
	return p.Load(ctx, run.ID)
}

func (p *Postgres) Load(ctx context.Context, runID string) (domain.WorkflowRun, error) {
	var row runRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM workflow_runs WHERE id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WorkflowRun{}, engine.ErrNotFound
	}
	if err != nil {
		return domain.WorkflowRun{}, err
	}
	run := row.toDomain()

	var eventRows []eventRow
	if err := p.db.SelectContext(ctx, &eventRows, `SELECT * FROM workflow_events WHERE run_id = $1 ORDER BY seq ASC`, runID); err != nil {
		return domain.WorkflowRun{}, err
	}
	for _, er := range eventRows {
		run.History = append(run.History, er.toDomain())
	}
	return run, nil
}

type eventRow struct {
	RunID      string    `db:"run_id"`
	Seq        int       `db:"seq"`
	Kind       string    `db:"kind"`
	StepID     sql.NullString `db:"step_id"`
	Attempt    int       `db:"attempt"`
	Payload    []byte    `db:"payload"`
	RecordedAt time.Time `db:"recorded_at"`
}

type eventPayload struct {
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
	Outcome        domain.AttemptOutcome `json:"outcome,omitempty"`
	ResultHash     string               `json:"result_hash,omitempty"`
	Error          string               `json:"error,omitempty"`
	Note           string               `json:"note,omitempty"`
	State          domain.WorkflowState `json:"state,omitempty"`
}

func (er eventRow) toDomain() domain.Event {
	var payload eventPayload
	_ = json.Unmarshal(er.Payload, &payload)
	return domain.Event{
		Seq:            er.Seq,
		Kind:           domain.EventKind(er.Kind),
		StepID:         er.StepID.String,
		Attempt:        er.Attempt,
		IdempotencyKey: payload.IdempotencyKey,
		Outcome:        payload.Outcome,
		ResultHash:     payload.ResultHash,
		Error:          payload.Error,
		Note:           payload.Note,
		State:          payload.State,
		RecordedAt:     er.RecordedAt,
	}
}

// Append persists events and the recomputed projection in one
// transaction, keeping history and projected fields consistent.
func (p *Postgres) Append(ctx context.Context, runID string, events []domain.Event, proj engine.RunProjection) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, evt := range events {
		payload, err := json.Marshal(eventPayload{
			IdempotencyKey: evt.IdempotencyKey,
			Outcome:        evt.Outcome,
			Error:          evt.Error,
			Note:           evt.Note,
			State:          evt.State,
		})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_events (run_id, seq, kind, step_id, attempt, payload, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, runID, evt.Seq, string(evt.Kind), evt.StepID, evt.Attempt, payload, evt.RecordedAt); err != nil {
			return err
		}
	}

	var resultJSON []byte
	if proj.Result != nil {
		resultJSON, err = json.Marshal(proj.Result)
		if err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE workflow_runs
		SET state = $2, current_step = $3, attempts_for_current_step = $4,
		    next_retry_at = NULLIF($5, '0001-01-01 00:00:00'::timestamp),
		    result_json = NULLIF($6, ''), updated_at = now()
		WHERE id = $1
	`, runID, string(proj.State), proj.CurrentStep, proj.AttemptsForCurrentStep, proj.NextRetryAt, string(resultJSON)); err != nil {
		return err
	}

	return tx.Commit()
}

// ListReady returns runs the scheduler may pick up: pending, or running
// with a due retry, ordered oldest-first for rough fairness.
func (p *Postgres) ListReady(ctx context.Context, limit int) ([]domain.WorkflowRun, error) {
	var rows []runRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT * FROM workflow_runs
		WHERE state = $1 OR (state = $2 AND next_retry_at <= now())
		ORDER BY created_at ASC
		LIMIT $3
	`, domain.StatePending, domain.StateRunning, limit)
	if err != nil {
		return nil, err
	}
	runs := make([]domain.WorkflowRun, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.toDomain())
	}
	return runs, nil
}
