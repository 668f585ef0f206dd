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

package perf

import (
	"context"
	"sync"
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
)

// Conn is the minimal lifecycle a pooled connection must support.
type Conn interface {
	// Healthy reports whether the connection is still usable.
	Healthy() bool
	// Close releases any underlying resources.
	Close() error
}

// Dialer creates a new Conn. Implementations talk to whatever downstream
// the pool is fronting (Kafka brokers, a Postgres instance, a Redis
// cluster); the pool itself is transport-agnostic.
type Dialer func(ctx context.Context) (Conn, error)

// PoolConfig configures a ConnectionPool.
type PoolConfig struct {
	MinConnections      int
	MaxConnections      int
	ConnectionTimeout   time.Duration
	HealthCheckInterval time.Duration
	IdleTimeout         time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
}

type pooledConn struct {
	conn     Conn
	lastUsed time.Time
}

// ConnectionPool is a bounded pool of Conns with idle eviction and
// bounded-retry acquisition for transient dial errors.
type ConnectionPool struct {
	config PoolConfig
	dial   Dialer

	mu        sync.Mutex
	idle      []*pooledConn
	numLeased int

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewConnectionPool constructs a pool. dial is used both to pre-warm
// MinConnections and to create connections on demand up to MaxConnections.
func NewConnectionPool(config PoolConfig, dial Dialer) *ConnectionPool {
	p := &ConnectionPool{config: config, dial: dial, stopChan: make(chan struct{})}
	if config.HealthCheckInterval > 0 {
		p.wg.Add(1)
		go p.evictLoop()
	}
	return p
}

// Lease is a borrowed connection; callers must call Release exactly once.
type Lease struct {
	pool *ConnectionPool
	conn Conn
}

// Conn returns the underlying connection.
func (l *Lease) Conn() Conn { return l.conn }

// Release returns the connection to the pool. A connection that has become
// unhealthy is closed and discarded instead of being returned to the idle
// set.
func (l *Lease) Release() {
	l.pool.release(l.conn)
}

// Get acquires a connection, retrying failed dials up to MaxRetries times
// with RetryDelay between attempts; a dial error of kind InvalidArgument is
// not transient and is not retried. It returns a
// ResourceExhausted error if the pool is already at MaxConnections with no
// idle connection available, and an Unavailable error if every retry
// attempt to dial a fresh connection failed.
func (p *ConnectionPool) Get(ctx context.Context) (*Lease, error) {
	if conn, ok := p.tryTakeIdle(); ok {
		return &Lease{pool: p, conn: conn}, nil
	}

	p.mu.Lock()
	if p.numLeased >= p.config.MaxConnections {
		p.mu.Unlock()
		return nil, auditerr.New(auditerr.ResourceExhausted, "connection pool exhausted")
	}
	p.numLeased++
	p.mu.Unlock()

	conn, err := p.dialWithRetry(ctx)
	if err != nil {
		p.mu.Lock()
		p.numLeased--
		p.mu.Unlock()
		return nil, auditerr.Wrap(auditerr.Unavailable, "dial connection", err)
	}
	return &Lease{pool: p, conn: conn}, nil
}

func (p *ConnectionPool) tryTakeIdle() (Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.idle) > 0 {
		last := len(p.idle) - 1
		pc := p.idle[last]
		p.idle = p.idle[:last]
		if !pc.conn.Healthy() {
			_ = pc.conn.Close()
			continue
		}
		p.numLeased++
		return pc.conn, true
	}
	return nil, false
}

func (p *ConnectionPool) dialWithRetry(ctx context.Context) (Conn, error) {
	var lastErr error
	attempts := p.config.MaxRetries + 1
	for i := 0; i < attempts; i++ {
		dialCtx := ctx
		var cancel context.CancelFunc
		if p.config.ConnectionTimeout > 0 {
			dialCtx, cancel = context.WithTimeout(ctx, p.config.ConnectionTimeout)
		}
		conn, err := p.dial(dialCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if auditerr.KindOf(err) == auditerr.InvalidArgument {
			break
		}
		if i < attempts-1 && p.config.RetryDelay > 0 {
			select {
			case <-time.After(p.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (p *ConnectionPool) release(conn Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.numLeased--
	if !conn.Healthy() {
		_ = conn.Close()
		return
	}
	p.idle = append(p.idle, &pooledConn{conn: conn, lastUsed: time.Now()})
}

// Warm dials up to MinConnections idle connections ahead of demand.
func (p *ConnectionPool) Warm(ctx context.Context) error {
	for i := 0; i < p.config.MinConnections; i++ {
		conn, err := p.dialWithRetry(ctx)
		if err != nil {
			return auditerr.Wrap(auditerr.Unavailable, "warm connection", err)
		}
		p.mu.Lock()
		p.idle = append(p.idle, &pooledConn{conn: conn, lastUsed: time.Now()})
		p.mu.Unlock()
	}
	return nil
}

// IdleCount returns the number of currently idle connections.
func (p *ConnectionPool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// LeasedCount returns the number of connections currently checked out.
func (p *ConnectionPool) LeasedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numLeased
}

func (p *ConnectionPool) evictLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.stopChan:
			return
		}
	}
}

func (p *ConnectionPool) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.IdleTimeout <= 0 {
		return
	}
	now := time.Now()
	kept := p.idle[:0]
	for _, pc := range p.idle {
		if !pc.conn.Healthy() || now.Sub(pc.lastUsed) > p.config.IdleTimeout {
			_ = pc.conn.Close()
			continue
		}
		kept = append(kept, pc)
	}
	p.idle = kept
}

// Close stops the eviction loop and closes every idle connection. Leased
// connections in flight are the caller's responsibility to Release first.
func (p *ConnectionPool) Close() error {
	close(p.stopChan)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pc := range p.idle {
		_ = pc.conn.Close()
	}
	p.idle = nil
	return nil
}
