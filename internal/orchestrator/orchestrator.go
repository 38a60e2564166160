// Package orchestrator implements the Orchestrator Façade (C8): the one
// surface callers use to start, observe, and cancel workflow runs. It
// derives deterministic run ids, tracks active-run capacity for
// admission control, and exports Prometheus metrics alongside an HTTP
// control surface (see server.go).
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zoobzio/cashapp/internal/domain"
	"github.com/zoobzio/cashapp/internal/engine"
)

// Status is the façade's view of a run, independent of the underlying
// domain.WorkflowState naming.
type Status string

const (
	StatusAccepted             Status = "accepted"
	StatusRejectedInvalid      Status = "rejected_invalid_payload"
	StatusRejectedOverloaded   Status = "rejected_overloaded"
	StatusNotFound             Status = "not_found"
	StatusConflict             Status = "conflict"
)

// ErrOverloaded is returned by Start when active-run capacity is
// exhausted, so callers can retry with backoff per §5.
var ErrOverloaded = errors.New("orchestrator: at capacity")

// WorkflowFactory builds the WorkflowDef for one submission. Each
// registered workflow name maps to exactly one factory.
type WorkflowFactory func(payload Payload) (engine.WorkflowDef, error)

// Payload is the generic submission envelope: an id and value date feed
// the deterministic run_id derivation, the rest rides through to the
// named workflow's factory untouched.
type Payload struct {
	ID        string
	ValueDate time.Time
	ClientID  string
	Body      map[string]string
}

// Facade is the orchestrator: it owns workflow registration, admission
// control, and metrics, and drives the engine.
type Facade struct {
	eng       *engine.Engine
	workflows map[string]WorkflowFactory
	maxActive int64
	active    int64

	metrics metricSet

	mu sync.Mutex
}

type metricSet struct {
	started  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	activeG  *prometheus.GaugeVec
}

// New builds a Facade backed by eng, admitting at most maxActive
// concurrently-running runs before Start returns ErrOverloaded.
func New(eng *engine.Engine, reg prometheus.Registerer, maxActive int64) *Facade {
	ms := metricSet{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cashapp_runs_started_total",
			Help: "Workflow runs started, by workflow name and client.",
		}, []string{"name", "client"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cashapp_run_duration_seconds",
			Help:    "Workflow run duration in seconds, by workflow name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name"}),
		activeG: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cashapp_active_runs",
			Help: "Currently executing runs, by workflow name.",
		}, []string{"name"}),
	}
	if reg != nil {
		reg.MustRegister(ms.started, ms.duration, ms.activeG)
	}
	return &Facade{eng: eng, workflows: map[string]WorkflowFactory{}, maxActive: maxActive, metrics: ms}
}

// Register binds a workflow name to the factory that builds its
// WorkflowDef from a submission payload.
func (f *Facade) Register(name string, factory WorkflowFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workflows[name] = factory
}

// StartResult is what Start returns to a caller.
type StartResult struct {
	RunID  string
	Status Status
}

// Start derives a deterministic run id from (name, payload.id,
// payload.value_date) and submits the run. A repeat submission with the
// same derived id returns the existing run rather than creating a new
// one (§4.8 idempotent-by-payload-id).
func (f *Facade) Start(ctx context.Context, name string, payload Payload) (StartResult, error) {
	f.mu.Lock()
	factory, ok := f.workflows[name]
	f.mu.Unlock()
	if !ok || payload.ID == "" {
		return StartResult{Status: StatusRejectedInvalid}, nil
	}

	if atomic.LoadInt64(&f.active) >= f.maxActive {
		return StartResult{Status: StatusRejectedOverloaded}, ErrOverloaded
	}

	def, err := factory(payload)
	if err != nil {
		return StartResult{Status: StatusRejectedInvalid}, nil
	}

	runID := DeriveRunID(name, payload.ID, payload.ValueDate)

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return StartResult{Status: StatusRejectedInvalid}, nil
	}

	run, err := f.eng.Store().CreateRun(ctx, domain.WorkflowRun{
		ID:        runID,
		Name:      name,
		State:     domain.StatePending,
		CreatedAt: payload.ValueDate,
		Payload:   string(payloadJSON),
	})
	if err != nil {
		return StartResult{}, err
	}
	if run.State != domain.StatePending {
		return StartResult{RunID: runID, Status: StatusConflict}, nil
	}

	f.metrics.started.WithLabelValues(name, payload.ClientID).Inc()
	atomic.AddInt64(&f.active, 1)
	f.metrics.activeG.WithLabelValues(name).Set(float64(atomic.LoadInt64(&f.active)))
	go f.runTracked(name, run, def)

	return StartResult{RunID: runID, Status: StatusAccepted}, nil
}

// runTracked executes def against run to completion, maintaining the
// active-run gauge and duration histogram around it. The caller has
// already incremented f.active and decides whether that happens on its
// own goroutine (Start's fire-and-forget submission) or on one of
// PollReady's semaphore-bounded workers (a resumed run).
func (f *Facade) runTracked(name string, run domain.WorkflowRun, def engine.WorkflowDef) {
	defer func() {
		atomic.AddInt64(&f.active, -1)
		f.metrics.activeG.WithLabelValues(name).Set(float64(atomic.LoadInt64(&f.active)))
	}()
	started := time.Now()
	f.eng.Execute(context.Background(), run, def)
	f.metrics.duration.WithLabelValues(name).Observe(time.Since(started).Seconds())
}

// PollReady lists runs the store considers schedulable — newly pending,
// or running with a due retry that a crashed worker never got back to —
// and re-dispatches up to workers of them concurrently. The engine's
// per-run Redis lease (internal/lease) makes this safe to call from any
// number of workers at once: a run already being executed elsewhere
// simply fails Acquire and Execute returns immediately (§5 "parallel
// workers; each worker pulls ready workflow runs"). It returns the
// number of runs it dispatched.
func (f *Facade) PollReady(ctx context.Context, limit, workers int) (int, error) {
	runs, err := f.eng.Store().ListReady(ctx, limit)
	if err != nil {
		return 0, err
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var dispatched int64

	for _, run := range runs {
		if atomic.LoadInt64(&f.active) >= f.maxActive {
			break
		}

		f.mu.Lock()
		factory, ok := f.workflows[run.Name]
		f.mu.Unlock()
		if !ok {
			continue
		}
		var payload Payload
		if err := json.Unmarshal([]byte(run.Payload), &payload); err != nil {
			continue
		}
		def, err := factory(payload)
		if err != nil {
			continue
		}

		atomic.AddInt64(&f.active, 1)
		f.metrics.activeG.WithLabelValues(run.Name).Set(float64(atomic.LoadInt64(&f.active)))
		atomic.AddInt64(&dispatched, 1)

		sem <- struct{}{}
		wg.Add(1)
		run := run
		go func() {
			defer func() { <-sem; wg.Done() }()
			f.runTracked(run.Name, run, def)
		}()
	}
	wg.Wait()

	return int(atomic.LoadInt64(&dispatched)), nil
}

// RunScheduler polls PollReady every interval until ctx is cancelled,
// resuming runs that were mid-flight when a worker crashed or that
// became due for retry while nobody was watching. cmd/cashappd runs
// this as a background goroutine alongside the HTTP server.
func (f *Facade) RunScheduler(ctx context.Context, interval time.Duration, limit, workers int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = f.PollReady(ctx, limit, workers)
		}
	}
}

// StatusView is the façade's read model of one run.
type StatusView struct {
	RunID         string
	State         domain.WorkflowState
	CurrentStep   string
	Result        *domain.RunResult
	LastHeartbeat time.Time
}

// Status returns the current view of a run, or StatusNotFound.
func (f *Facade) Status(ctx context.Context, runID string) (StatusView, Status, error) {
	run, err := f.eng.Store().Load(ctx, runID)
	if errors.Is(err, engine.ErrNotFound) {
		return StatusView{}, StatusNotFound, nil
	}
	if err != nil {
		return StatusView{}, "", err
	}
	return StatusView{
		RunID:       run.ID,
		State:       run.State,
		CurrentStep: run.CurrentStep,
		Result:      run.Result,
	}, StatusAccepted, nil
}

// Cancel requests cancellation of a run. The run's owning worker
// observes the request at its next suspension point (§5); Cancel itself
// only records the request and returns the pre-cancellation state.
func (f *Facade) Cancel(ctx context.Context, runID string) (domain.WorkflowState, Status, error) {
	run, err := f.eng.Store().Load(ctx, runID)
	if errors.Is(err, engine.ErrNotFound) {
		return "", StatusNotFound, nil
	}
	if err != nil {
		return "", "", err
	}
	if run.State == domain.StateCompleted || run.State == domain.StateFailed ||
		run.State == domain.StateCancelled || run.State == domain.StateAwaitingReview {
		return run.State, StatusConflict, nil
	}
	if err := f.eng.Store().Append(ctx, runID, []domain.Event{{
		Kind:       domain.EventCancelRequested,
		RecordedAt: time.Now(),
	}}, engine.RunProjection{State: domain.StateCancelling, CurrentStep: run.CurrentStep}); err != nil {
		return "", "", err
	}
	return domain.StateCancelling, StatusAccepted, nil
}

// Stats is a point-in-time snapshot for the `stats()` control operation.
type Stats struct {
	ActiveRuns int64
}

func (f *Facade) Stats() Stats {
	return Stats{ActiveRuns: atomic.LoadInt64(&f.active)}
}

// DeriveRunID computes the stable FNV-1a hash the façade uses as a run
// id, so that resubmitting the same (name, payload id, value date)
// always addresses the same run — never uuid.New(), which would make
// duplicate submission detection impossible (§4.8).
func DeriveRunID(name, payloadID string, valueDate time.Time) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", name, payloadID, valueDate.UTC().Unix())
	return fmt.Sprintf("%s-%016x", name, h.Sum64())
}
