package perf

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
)

type fakeConn struct {
	healthy atomic.Bool
	closed  atomic.Bool
}

func newFakeConn() *fakeConn {
	c := &fakeConn{}
	c.healthy.Store(true)
	return c
}

func (c *fakeConn) Healthy() bool { return c.healthy.Load() && !c.closed.Load() }
func (c *fakeConn) Close() error  { c.closed.Store(true); return nil }

func TestPoolGetAndRelease(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MaxConnections: 3, MaxRetries: 0}, func(ctx context.Context) (Conn, error) {
		return newFakeConn(), nil
	})
	defer pool.Close()

	lease, err := pool.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pool.LeasedCount() != 1 {
		t.Fatalf("leased = %d", pool.LeasedCount())
	}
	lease.Release()
	if pool.LeasedCount() != 0 || pool.IdleCount() != 1 {
		t.Fatalf("leased=%d idle=%d", pool.LeasedCount(), pool.IdleCount())
	}
}

func TestPoolReusesIdleConnection(t *testing.T) {
	var dials int32
	pool := NewConnectionPool(PoolConfig{MaxConnections: 3, MaxRetries: 0}, func(ctx context.Context) (Conn, error) {
		atomic.AddInt32(&dials, 1)
		return newFakeConn(), nil
	})
	defer pool.Close()

	lease1, err := pool.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	lease1.Release()

	lease2, err := pool.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	lease2.Release()

	if atomic.LoadInt32(&dials) != 1 {
		t.Fatalf("expected 1 dial, got %d", dials)
	}
}

func TestPoolExhaustion(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MaxConnections: 1, MaxRetries: 0}, func(ctx context.Context) (Conn, error) {
		return newFakeConn(), nil
	})
	defer pool.Close()

	lease, err := pool.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	_, err = pool.Get(context.Background())
	if auditerr.KindOf(err) != auditerr.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
	lease.Release()
}

func TestPoolRetriesTransientDialErrors(t *testing.T) {
	var attempts int32
	pool := NewConnectionPool(PoolConfig{MaxConnections: 1, MaxRetries: 2, RetryDelay: time.Millisecond},
		func(ctx context.Context) (Conn, error) {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return nil, errors.New("transient")
			}
			return newFakeConn(), nil
		})
	defer pool.Close()

	lease, err := pool.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	lease.Release()
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestPoolGetFailsAfterExhaustingRetries(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MaxConnections: 1, MaxRetries: 1, RetryDelay: time.Millisecond},
		func(ctx context.Context) (Conn, error) {
			return nil, errors.New("down")
		})
	defer pool.Close()

	_, err := pool.Get(context.Background())
	if auditerr.KindOf(err) != auditerr.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestPoolDiscardsUnhealthyOnRelease(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MaxConnections: 2, MaxRetries: 0}, func(ctx context.Context) (Conn, error) {
		return newFakeConn(), nil
	})
	defer pool.Close()

	lease, err := pool.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	fc := lease.Conn().(*fakeConn)
	fc.healthy.Store(false)
	lease.Release()

	if pool.IdleCount() != 0 {
		t.Fatalf("expected unhealthy connection not to be returned to idle, idle = %d", pool.IdleCount())
	}
}

func TestPoolWarm(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{MinConnections: 2, MaxConnections: 5}, func(ctx context.Context) (Conn, error) {
		return newFakeConn(), nil
	})
	defer pool.Close()

	if err := pool.Warm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if pool.IdleCount() != 2 {
		t.Fatalf("idle = %d, want 2", pool.IdleCount())
	}
}

func TestPoolEvictsIdleConnectionsPastTimeout(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{
		MaxConnections:      2,
		HealthCheckInterval: 5 * time.Millisecond,
		IdleTimeout:         10 * time.Millisecond,
	}, func(ctx context.Context) (Conn, error) {
		return newFakeConn(), nil
	})
	defer pool.Close()

	lease, err := pool.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	lease.Release()

	time.Sleep(30 * time.Millisecond)
	if pool.IdleCount() != 0 {
		t.Fatalf("expected idle connection to be evicted, idle = %d", pool.IdleCount())
	}
}
