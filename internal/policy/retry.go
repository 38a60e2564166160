// Package policy implements the retry/backoff decision the workflow engine
// consults before re-attempting a failed step. It is deliberately a pure
// function of (attempt, error kind) — it owns no clock and schedules
// nothing itself; the engine (internal/engine) is the one component
// allowed to actually sleep or set a timer, which keeps replay
// deterministic.
package policy

import (
	"math"
	"time"

	"github.com/zoobzio/cashapp/internal/domain"
)

// ErrorKind mirrors the classification the activity invoker (C2) assigns
// to a collaborator failure before handing it to the policy.
type ErrorKind string

const (
	KindTransientCollaborator ErrorKind = "transient_collaborator"
	KindPermanentCollaborator ErrorKind = "permanent_collaborator"
	KindTimeout               ErrorKind = "timeout"
	KindCancelled             ErrorKind = "cancelled"
	KindInvalidInput          ErrorKind = "invalid_input"
	KindEngineInternal        ErrorKind = "engine_internal"
	KindDataQuality           ErrorKind = "data_quality"
)

// RetryPolicy is the (initial_interval, max_interval, coefficient,
// max_attempts, non_retryable) tuple attached per workflow step.
type RetryPolicy struct {
	InitialInterval   time.Duration
	MaxInterval       time.Duration
	BackoffCoefficient float64
	MaxAttempts       int
	NonRetryable      map[ErrorKind]bool
}

// Decision is what the policy tells the engine to do after a failed attempt.
type Decision struct {
	ShouldRetry bool
	RetryAfter  time.Duration
}

// Evaluate implements delay = min(initial · coefficient^(n-1), max_interval)
// for attempt n (1-indexed, the attempt that just failed), and refuses to
// retry once attempts has reached MaxAttempts or the error kind is marked
// non-retryable for this step.
func (p RetryPolicy) Evaluate(attempt int, kind ErrorKind) Decision {
	if p.NonRetryable[kind] {
		return Decision{ShouldRetry: false}
	}
	if attempt >= p.MaxAttempts {
		return Decision{ShouldRetry: false}
	}

	coefficient := p.BackoffCoefficient
	if coefficient <= 0 {
		coefficient = 1
	}
	delay := float64(p.InitialInterval) * math.Pow(coefficient, float64(attempt-1))
	if max := float64(p.MaxInterval); p.MaxInterval > 0 && delay > max {
		delay = max
	}
	return Decision{ShouldRetry: true, RetryAfter: time.Duration(delay)}
}

// Default policies, named after the step shape they suit. Individual
// workflow definitions (internal/workflows) pick one of these, or
// construct a bespoke RetryPolicy, per step.
var (
	ReadPolicy = RetryPolicy{
		InitialInterval:    time.Second,
		MaxInterval:        time.Minute,
		BackoffCoefficient: 2,
		MaxAttempts:        3,
		NonRetryable: map[ErrorKind]bool{
			KindInvalidInput: true,
			KindCancelled:    true,
		},
	}

	WritePolicy = RetryPolicy{
		InitialInterval:    5 * time.Second,
		MaxInterval:        3 * time.Minute,
		BackoffCoefficient: 2,
		MaxAttempts:        3,
		NonRetryable: map[ErrorKind]bool{
			KindInvalidInput: true,
			KindCancelled:    true,
		},
	}

	NotifyPolicy = RetryPolicy{
		InitialInterval:    2 * time.Second,
		MaxInterval:        2 * time.Minute,
		BackoffCoefficient: 2,
		MaxAttempts:        3,
		NonRetryable: map[ErrorKind]bool{
			KindInvalidInput: true,
			KindCancelled:    true,
		},
	}

	// FetchPolicy is for collaborator reads that front a bulk ERP/ledger
	// lookup (fetch_invoice_details): five attempts, 2s to 2m backoff.
	FetchPolicy = RetryPolicy{
		InitialInterval:    2 * time.Second,
		MaxInterval:        2 * time.Minute,
		BackoffCoefficient: 2,
		MaxAttempts:        5,
		NonRetryable: map[ErrorKind]bool{
			KindInvalidInput: true,
			KindCancelled:    true,
		},
	}
)

// Classify maps a collaborator-facing outcome to an ErrorKind, the single
// choke point through which every collaborator error passes before the
// engine ever sees it — per the design note that the engine never
// propagates a collaborator's native error type to the workflow.
func Classify(outcome domain.AttemptOutcome) ErrorKind {
	switch outcome {
	case domain.AttemptTimeout:
		return KindTimeout
	case domain.AttemptCancelled:
		return KindCancelled
	case domain.AttemptPermanentError:
		return KindPermanentCollaborator
	default:
		return KindTransientCollaborator
	}
}
