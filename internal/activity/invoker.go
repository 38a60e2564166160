// Package activity implements the Activity Invoker (C2): calling a
// collaborator with a start-to-close timeout, heartbeat tracking, and
// cooperative cancellation, labeling every call with a stable idempotency
// key so collaborators can deduplicate writes.
package activity

import (
	"context"
	"errors"
	"sync"
	"time"

	pipz "github.com/zoobzio/cashapp/internal/pipeline"

	"github.com/zoobzio/cashapp/internal/domain"
)

// ErrHeartbeatTimeout is returned when a collaborator goes silent for
// longer than the configured heartbeat timeout.
var ErrHeartbeatTimeout = errors.New("activity: heartbeat timeout exceeded")

// Collaborator is anything the invoker can call: given a context carrying
// the idempotency key and a heartbeat sink, produce a result or an error.
// Collaborators that support progress reporting call HeartbeatFunc as they
// work; the invoker does not require it.
type Collaborator[In, Out any] func(ctx context.Context, key domain.IdempotencyKey, heartbeat HeartbeatFunc, in In) (Out, error)

// HeartbeatFunc lets a collaborator report liveness during a long call.
type HeartbeatFunc func(note string)

// Spec configures one invocation: the timeouts the invoker enforces
// around a single Collaborator call. The circuit breaker's failure
// threshold is not part of Spec; it is BreakerThreshold.
type Spec struct {
	StartToCloseTimeout time.Duration
	HeartbeatTimeout    time.Duration
}

// Invoker wraps a Collaborator with timeout, heartbeat-liveness tracking,
// circuit-breaking, and cancellation, built on the pipeline substrate's
// Timeout and CircuitBreaker connectors so the same clock-injectable,
// signal-emitting machinery the rest of the engine uses backs activity
// calls too. The breaker is built once in New and reused across every
// Invoke call, per the connector's own stateful-reuse contract.
type Invoker[In, Out any] struct {
	name         pipz.Name
	spec         Spec
	collaborator Collaborator[In, Out]
	breaker      *pipz.CircuitBreaker[call[In, Out]]

	mu            sync.Mutex
	lastHeartbeat time.Time
	latestNote    string
}

// BreakerThreshold is the default consecutive-failure count that opens
// an activity's circuit breaker before it has recovered once (§4.2
// outcome classification: a collaborator persistently failing should
// fail fast rather than exhaust every caller's own timeout budget).
const BreakerThreshold = 5

// BreakerResetTimeout is the default cooldown before a tripped breaker
// allows one trial call through again.
const BreakerResetTimeout = 30 * time.Second

func New[In, Out any](name pipz.Name, spec Spec, collaborator Collaborator[In, Out]) *Invoker[In, Out] {
	iv := &Invoker[In, Out]{name: name, spec: spec, collaborator: collaborator}

	wrapped := pipz.Apply[call[In, Out]](name+"-invoke", func(pctx context.Context, c call[In, Out]) (call[In, Out], error) {
		result, err := iv.collaborator(pctx, c.key, c.heartbeat, c.input)
		c.output, c.collabErr = result, err
		return c, err
	})

	timeout := spec.StartToCloseTimeout
	if timeout <= 0 {
		timeout = time.Hour
	}
	timed := pipz.NewTimeout[call[In, Out]](name+"-timeout", wrapped, timeout)
	iv.breaker = pipz.NewCircuitBreaker[call[In, Out]](name+"-breaker", timed, BreakerThreshold, BreakerResetTimeout)
	return iv
}

// call carries one invocation's input, its per-call heartbeat sink, and
// (once processed) its output and collaborator error, all inside the
// single homogeneous value pipz processors require - no closure-captured
// mutable state, so the wrapped chain is safe to build once and share
// across concurrent Invoke calls.
type call[In, Out any] struct {
	key       domain.IdempotencyKey
	input     In
	heartbeat HeartbeatFunc
	output    Out
	collabErr error
}

func (c call[In, Out]) Clone() call[In, Out] { return c }

// Invoke runs the wrapped collaborator under the configured timeout and
// circuit breaker, classifying the outcome per §4.2 and §7: context
// deadline and heartbeat timeout map to AttemptTimeout (the latter with
// ErrHeartbeatTimeout), ctx.Err()==Canceled maps to AttemptCancelled, and
// every other collaborator failure is reported as AttemptTransientError;
// the invoker does not mark any collaborator error permanent.
func (iv *Invoker[In, Out]) Invoke(ctx context.Context, key domain.IdempotencyKey, in In) (Out, domain.AttemptOutcome, error) {
	var zero Out

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()

	iv.mu.Lock()
	iv.lastHeartbeat = time.Now()
	iv.mu.Unlock()

	hbExpired := make(chan struct{})
	if iv.spec.HeartbeatTimeout > 0 {
		go iv.watchHeartbeat(heartbeatCtx, func() {
			close(hbExpired)
			cancelHeartbeat()
		})
	}

	hb := func(note string) {
		iv.mu.Lock()
		iv.lastHeartbeat = time.Now()
		iv.latestNote = note
		iv.mu.Unlock()
	}

	processed, perr := iv.breaker.Process(heartbeatCtx, call[In, Out]{key: key, input: in, heartbeat: hb})
	if perr != nil {
		select {
		case <-hbExpired:
			return zero, domain.AttemptTimeout, ErrHeartbeatTimeout
		default:
		}
		if perr.Timeout {
			return zero, domain.AttemptTimeout, perr
		}
		if perr.Canceled {
			return zero, domain.AttemptCancelled, perr
		}
		if processed.collabErr != nil {
			return zero, domain.AttemptPermanentError, processed.collabErr
		}
		return zero, domain.AttemptTransientError, perr
	}
	if processed.collabErr != nil {
		return zero, domain.AttemptTransientError, processed.collabErr
	}
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return zero, domain.AttemptCancelled, ctx.Err()
		}
		return zero, domain.AttemptTimeout, ctx.Err()
	}
	return processed.output, domain.AttemptOK, nil
}

func (iv *Invoker[In, Out]) watchHeartbeat(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(iv.spec.HeartbeatTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			iv.mu.Lock()
			stale := time.Since(iv.lastHeartbeat) > iv.spec.HeartbeatTimeout
			iv.mu.Unlock()
			if stale {
				cancel()
				return
			}
		}
	}
}

// LatestNote returns the most recent heartbeat note recorded, for the
// engine to project into a run's status view.
func (iv *Invoker[In, Out]) LatestNote() string {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.latestNote
}
