package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewManager(client), mr
}

func TestAcquireExclusive(t *testing.T) {
	m1, mr := newTestManager(t)
	client2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m2 := NewManager(client2)

	ctx := context.Background()
	ok, err := m1.Acquire(ctx, "run-1", 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected m1 to acquire, ok=%v err=%v", ok, err)
	}

	ok, err = m2.Acquire(ctx, "run-1", 5*time.Second)
	if err != nil || ok {
		t.Fatalf("expected m2 to fail acquiring held lease, ok=%v err=%v", ok, err)
	}
}

func TestRenewFailsAfterRelease(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	if ok, err := m.Acquire(ctx, "run-2", 5*time.Second); err != nil || !ok {
		t.Fatalf("acquire failed: ok=%v err=%v", ok, err)
	}
	if err := m.Release(ctx, "run-2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err := m.Renew(ctx, "run-2", 5*time.Second)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if ok {
		t.Fatalf("expected renew to fail after release")
	}
}

func TestExpiredLeaseCanBeReacquired(t *testing.T) {
	m1, mr := newTestManager(t)
	client2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	m2 := NewManager(client2)
	ctx := context.Background()

	if ok, _ := m1.Acquire(ctx, "run-3", time.Second); !ok {
		t.Fatalf("acquire failed")
	}
	mr.FastForward(2 * time.Second)

	ok, err := m2.Acquire(ctx, "run-3", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected m2 to acquire expired lease, ok=%v err=%v", ok, err)
	}
}
