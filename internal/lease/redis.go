// Package lease implements the per-run lease manager from §5 on top of
// Redis SET NX PX / PEXPIRE, the mutual-exclusion primitive the workflow
// engine uses to ensure a run is never executed by two workers at once.
package lease

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld names the condition where the caller's token no longer
// matches the key in Redis (lease expired or stolen). Manager's methods
// do not return it: Renew reports that case as false with a nil error,
// and Release treats it as a no-op.
var ErrNotHeld = errors.New("lease: not held by this owner")

const keyPrefix = "cashapp:lease:"

// Manager acquires, renews, and releases per-run leases against Redis.
// It satisfies internal/engine.Lease.
type Manager struct {
	client *redis.Client
	owner  string
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client, owner: uuid.NewString()}
}

func (m *Manager) Acquire(ctx context.Context, runID string, ttl time.Duration) (bool, error) {
	ok, err := m.client.SetNX(ctx, keyPrefix+runID, m.owner, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// renewScript extends the TTL only if the calling owner still holds the
// key, preventing a worker that lost its lease from clobbering another
// worker's freshly-acquired one.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

func (m *Manager) Renew(ctx context.Context, runID string, ttl time.Duration) (bool, error) {
	res, err := renewScript.Run(ctx, m.client, []string{keyPrefix + runID}, m.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func (m *Manager) Release(ctx context.Context, runID string) error {
	_, err := releaseScript.Run(ctx, m.client, []string{keyPrefix + runID}, m.owner).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
