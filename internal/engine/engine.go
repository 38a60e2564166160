// Package engine implements the Workflow Engine (C6): durable execution
// of a named workflow as a sequence of steps, with crash recovery via
// idempotency keys, cooperative cancellation, and per-step retry
// policies evaluated by internal/policy.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/policy"
)

// ErrCancelled is returned by RunContext methods once a CancelRequested
// event has been observed for the run.
var ErrCancelled = errors.New("engine: run was cancelled")

// StepFunc is one workflow step's body. It must be side-effect-idempotent
// under the idempotency key the engine supplies (typically by delegating
// to an activity.Invoker, which labels the underlying collaborator call
// with that same key).
type StepFunc func(ctx context.Context, key domain.IdempotencyKey) (outcome domain.AttemptOutcome, result map[string]string, err error)

// Step bundles a StepFunc with the retry policy and timeout it runs
// under.
type Step struct {
	ID      string
	Policy  policy.RetryPolicy
	Timeout time.Duration
	Run     StepFunc
}

// WorkflowBody is the business logic of a workflow definition (C7): a
// plain Go function that drives the run forward by calling RunContext
// methods for every observable effect. It returns the terminal
// RunResult or an error that the engine maps to `failed`.
type WorkflowBody func(rc *RunContext) (*domain.RunResult, error)

// WorkflowDef names a WorkflowBody for registration with the engine.
type WorkflowDef struct {
	Name string
	Body WorkflowBody
}

// Engine executes workflow runs against a durable Store, coordinating
// cross-worker exclusivity through a Lease.
type Engine struct {
	store Store
	lease Lease
	clock clockz.Clock
}

func New(store Store, lease Lease, clock clockz.Clock) *Engine {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Engine{store: store, lease: lease, clock: clock}
}

// Store exposes the engine's durable store to callers that need to read
// or append outside of an active run, such as the orchestrator façade's
// status/cancel control operations.
func (e *Engine) Store() Store { return e.store }

// RunContext is the handle a WorkflowBody uses to perform durable steps,
// sleep between iterations, and observe cancellation. Every suspension
// point in the engine's execution model funnels through one of its
// methods (§5: awaiting activity result, retry_after sleep,
// inter-iteration sleep).
type RunContext struct {
	ctx   context.Context
	eng   *Engine
	run   *domain.WorkflowRun
	seq   int
}

// Do executes step durably: appends StepStarted, runs it under the
// step's retry policy (sleeping retry_after between attempts), appends
// StepCompleted, and returns the step's result map. A non-retryable or
// exhausted failure is returned as an error for the WorkflowBody to
// route to manual review.
func (rc *RunContext) Do(step Step) (map[string]string, error) {
	attempt := 0
	for {
		attempt++
		if err := rc.checkCancelled(); err != nil {
			return nil, err
		}

		key := domain.IdempotencyKey{RunID: rc.run.ID, StepID: step.ID, Attempt: attempt}
		rc.append(domain.Event{
			Kind:           domain.EventStepStarted,
			StepID:         step.ID,
			Attempt:        attempt,
			IdempotencyKey: key.String(),
			RecordedAt:     rc.eng.clock.Now(),
		}, RunProjection{
			State:                  domain.StateRunning,
			CurrentStep:            step.ID,
			AttemptsForCurrentStep: attempt,
		})

		stepCtx := rc.ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			stepCtx, cancel = rc.eng.clock.WithTimeout(rc.ctx, step.Timeout)
		}
		outcome, result, runErr := step.Run(stepCtx, key)
		if cancel != nil {
			cancel()
		}

		rc.append(domain.Event{
			Kind:       domain.EventStepCompleted,
			StepID:     step.ID,
			Attempt:    attempt,
			Outcome:    outcome,
			Error:      errString(runErr),
			RecordedAt: rc.eng.clock.Now(),
		}, RunProjection{State: domain.StateRunning, CurrentStep: step.ID, AttemptsForCurrentStep: attempt})

		if outcome == domain.AttemptOK {
			return result, nil
		}

		kind := policy.Classify(outcome)
		decision := step.Policy.Evaluate(attempt, kind)
		if !decision.ShouldRetry {
			if runErr == nil {
				runErr = errors.New("engine: step failed with outcome " + string(outcome))
			}
			return nil, runErr
		}
		if err := rc.Sleep(decision.RetryAfter); err != nil {
			return nil, err
		}
	}
}

// Sleep is the retry_after / inter-iteration suspension point. It
// returns ErrCancelled immediately if the run is cancelled mid-sleep.
func (rc *RunContext) Sleep(d time.Duration) error {
	if d <= 0 {
		return rc.checkCancelled()
	}
	select {
	case <-rc.eng.clock.After(d):
		return rc.checkCancelled()
	case <-rc.ctx.Done():
		return ErrCancelled
	}
}

func (rc *RunContext) checkCancelled() error {
	if rc.run.State == domain.StateCancelling {
		return ErrCancelled
	}
	if stored, err := rc.eng.store.Load(rc.ctx, rc.run.ID); err == nil {
		for _, evt := range stored.History {
			if evt.Kind == domain.EventCancelRequested {
				rc.run.State = domain.StateCancelling
				return ErrCancelled
			}
		}
	}
	select {
	case <-rc.ctx.Done():
		return ErrCancelled
	default:
		return nil
	}
}

func (rc *RunContext) append(evt domain.Event, proj RunProjection) {
	rc.seq++
	evt.Seq = rc.seq
	rc.run.History = append(rc.run.History, evt)
	proj.NextRetryAt = rc.run.NextRetryAt
	_ = rc.eng.store.Append(rc.ctx, rc.run.ID, []domain.Event{evt}, proj)
}

// ResolverVersion exposes the resolver snapshot version captured when the
// run began, so matching stays deterministic across retries (§5).
func (rc *RunContext) ResolverVersion() string { return rc.run.ResolverVersion }

func (rc *RunContext) RunID() string { return rc.run.ID }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Execute runs def against run under lease, from whatever point history
// indicates. Crash recovery relies on step-level idempotency: a step
// that was StepStarted but never StepCompleted before a crash is simply
// re-invoked, and the collaborator behind it is expected to deduplicate
// on the idempotency key (§4.2, §8 property 4).
func (e *Engine) Execute(ctx context.Context, run domain.WorkflowRun, def WorkflowDef) domain.RunResult {
	held, err := e.lease.Acquire(ctx, run.ID, 30*time.Second)
	if err != nil || !held {
		return domain.RunResult{Kind: domain.OutcomeFailed, Error: "lease not acquired"}
	}
	defer e.lease.Release(ctx, run.ID)

	runCopy := run
	rc := &RunContext{ctx: ctx, eng: e, run: &runCopy, seq: len(run.History)}

	result, bodyErr := def.Body(rc)
	final := domain.RunResult{Kind: domain.OutcomeFailed}
	if bodyErr != nil {
		if errors.Is(bodyErr, ErrCancelled) {
			final = domain.RunResult{Kind: domain.OutcomeCancelled}
		} else {
			final = domain.RunResult{Kind: domain.OutcomeFailed, Error: bodyErr.Error()}
		}
	} else if result != nil {
		final = *result
	}

	rc.append(domain.Event{Kind: domain.EventRunCompleted, State: stateForOutcome(final.Kind), RecordedAt: e.clock.Now()},
		RunProjection{State: stateForOutcome(final.Kind), Result: &final})
	return final
}

func stateForOutcome(k domain.RunOutcomeKind) domain.WorkflowState {
	switch k {
	case domain.OutcomeCompleted:
		return domain.StateCompleted
	case domain.OutcomeManualReview:
		return domain.StateAwaitingReview
	case domain.OutcomeCancelled:
		return domain.StateCancelled
	default:
		return domain.StateFailed
	}
}
