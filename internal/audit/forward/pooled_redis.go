/*
Copyright 2025 Hodei Audit Trail Contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package forward

import (
	"context"
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/perf"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/telemetry"
)

// redisLeasable is the Conn a ConnectionPool manages for the redis adapter:
// healthy/closeable like any pooled connection, but also able to hand back
// the RedisEvaler ForwardBatch needs. Both the real goRedisEvaler wrapper
// and fakes in tests satisfy it.
type redisLeasable interface {
	perf.Conn
	evaler() RedisEvaler
}

// redisConn adapts a goRedisEvaler to redisLeasable so a ConnectionPool can
// manage a bounded set of them instead of a single shared client.
type redisConn struct {
	c goRedisEvaler
}

func (rc redisConn) Healthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return rc.c.c.Ping(ctx).Err() == nil
}

func (rc redisConn) Close() error {
	return rc.c.c.Close()
}

func (rc redisConn) evaler() RedisEvaler { return rc.c }

// PooledRedisForwarder fronts the same idempotent-push logic RedisForwarder
// uses with a bounded perf.ConnectionPool, placing a real connection pool
// between the circuit breaker and the forwarder the way the pipeline's
// batcher -> backpressure -> breaker -> pool -> forwarder chain calls for,
// rather than a single long-lived client shared across every call.
type PooledRedisForwarder struct {
	pool      *perf.ConnectionPool
	markerTTL time.Duration
}

// NewPooledRedisForwarder constructs a PooledRedisForwarder and dials
// poolConfig.MinConnections up front so the first ForwardBatch after
// startup doesn't pay full connection-setup latency.
func NewPooledRedisForwarder(addr string, markerTTL time.Duration, poolConfig perf.PoolConfig) *PooledRedisForwarder {
	dial := func(ctx context.Context) (perf.Conn, error) {
		return redisConn{c: newGoRedisEvaler(addr)}, nil
	}
	f := newPooledRedisForwarder(dial, markerTTL, poolConfig)
	// Best-effort: ForwardBatch still dials on demand if warming fails.
	_ = f.pool.Warm(context.Background())
	return f
}

// newPooledRedisForwarder is the dialer-injectable constructor tests use to
// exercise the pool-leasing logic against a fake redisLeasable instead of a
// real Redis server.
func newPooledRedisForwarder(dial perf.Dialer, markerTTL time.Duration, poolConfig perf.PoolConfig) *PooledRedisForwarder {
	return &PooledRedisForwarder{pool: perf.NewConnectionPool(poolConfig, dial), markerTTL: markerTTL}
}

// ForwardBatch leases a pooled connection, delegates to a RedisForwarder
// built around it, and always releases the lease back to the pool.
func (p *PooledRedisForwarder) ForwardBatch(ctx context.Context, batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}
	lease, err := p.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer func() {
		lease.Release()
		telemetry.ObservePoolOccupancy(p.pool.LeasedCount(), p.pool.IdleCount())
	}()

	conn := lease.Conn().(redisLeasable)
	inner := NewRedisForwarder(conn.evaler(), p.markerTTL)
	return inner.ForwardBatch(ctx, batch)
}

// Close stops the pool's eviction loop and closes every idle connection.
// Forwarder does not declare Close; callers that need it type-assert for
// it, the way cmd/audit-ingest's shutdown wiring does.
func (p *PooledRedisForwarder) Close() error {
	return p.pool.Close()
}
