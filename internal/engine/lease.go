package engine

import (
	"context"
	"time"
)

// Lease is the per-run mutual-exclusion primitive from §5: a worker must
// hold a run's lease to execute it. Engine.Execute acquires the lease
// once with a fixed TTL and releases it on return; it does not renew the
// lease during the run, and a lease that expires mid-run is not noticed
// by the running workflow. internal/lease provides the Redis-backed (SET NX PX + PEXPIRE)
// production implementation.
type Lease interface {
	// Acquire attempts to take the lease for runID, returning false if
	// another worker already holds it.
	Acquire(ctx context.Context, runID string, ttl time.Duration) (bool, error)
	// Renew extends a held lease's TTL; returns false if the lease was
	// lost (expired or stolen) in the meantime.
	Renew(ctx context.Context, runID string, ttl time.Duration) (bool, error)
	// Release gives up a held lease early (on terminal completion).
	Release(ctx context.Context, runID string) error
}
