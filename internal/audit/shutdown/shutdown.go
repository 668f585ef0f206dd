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

// Package shutdown coordinates the Running -> Draining -> Completed
// lifecycle: on an OS termination signal, components are drained in
// registration order (batcher first, pool last), all sharing one deadline
// set by the global shutdown timeout (a component gets whatever time is
// left, not a separate slice), and the process exits after an additional
// force-shutdown delay.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// State is a point in the Running -> Draining -> Completed lifecycle.
type State int

const (
	Running State = iota
	Draining
	Completed
)

func (s State) String() string {
	switch s {
	case Draining:
		return "draining"
	case Completed:
		return "completed"
	default:
		return "running"
	}
}

// Config configures a Coordinator.
type Config struct {
	// ShutdownTimeout bounds the entire drain sequence.
	ShutdownTimeout time.Duration
	// ForceShutdownDelay is how long the process waits after Completed
	// before the caller should exit, giving load balancers time to stop
	// routing new connections.
	ForceShutdownDelay time.Duration
}

// DefaultConfig mirrors the reference implementation's defaults.
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout:    30 * time.Second,
		ForceShutdownDelay: 5 * time.Second,
	}
}

// Component is a unit of work drained during shutdown. Shutdown must
// respect ctx's deadline and return promptly once it expires.
type Component interface {
	Name() string
	Shutdown(ctx context.Context) error
}

type funcComponent struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcComponent) Name() string                      { return f.name }
func (f funcComponent) Shutdown(ctx context.Context) error { return f.fn(ctx) }

// NewComponent adapts a plain function into a Component, for callers that
// don't want to define a named type just to satisfy the interface (e.g.
// wrapping SmartBatcher.Flush or ConnectionPool.Close at the call site).
func NewComponent(name string, fn func(ctx context.Context) error) Component {
	return funcComponent{name: name, fn: fn}
}

// Coordinator drives the shutdown state machine and the ordered component
// drain. The zero value is not usable; construct with New.
type Coordinator struct {
	config Config
	logger *zap.Logger

	mu         sync.RWMutex
	state      State
	components []Component
}

// New constructs a Coordinator in the Running state.
func New(config Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{config: config, logger: logger, state: Running}
}

// AddComponent registers a component to be drained, in the order added,
// when Shutdown runs.
func (c *Coordinator) AddComponent(comp Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, comp)
	c.logger.Info("shutdown component registered", zap.String("component", comp.Name()))
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Admitting reports whether the façade should still admit new work. It is
// false from the moment Shutdown is called, before any component has
// actually finished draining.
func (c *Coordinator) Admitting() bool {
	return c.State() == Running
}

// Healthy satisfies httpapi.HealthChecker: the service reports unhealthy
// (and so stops receiving new traffic from a load balancer) as soon as
// draining begins.
func (c *Coordinator) Healthy() bool {
	return c.State() == Running
}

// Shutdown transitions Running -> Draining, drains every registered
// component in registration order within config.ShutdownTimeout overall,
// then transitions to Completed. A component that errors or times out is
// logged and does not abort the remaining sequence.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return
	}
	c.state = Draining
	components := append([]Component(nil), c.components...)
	c.mu.Unlock()

	c.logger.Info("shutdown initiated", zap.Int("components", len(components)))

	deadline := time.Now().Add(c.config.ShutdownTimeout)
	drainCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for _, comp := range components {
		c.drainOne(drainCtx, comp)
	}

	c.mu.Lock()
	c.state = Completed
	c.mu.Unlock()
	c.logger.Info("shutdown completed")
}

func (c *Coordinator) drainOne(ctx context.Context, comp Component) {
	c.logger.Info("draining component", zap.String("component", comp.Name()))
	if err := comp.Shutdown(ctx); err != nil {
		c.logger.Error("component failed to drain cleanly",
			zap.String("component", comp.Name()), zap.Error(err))
	}
}

// WaitForSignal blocks until SIGINT or SIGTERM arrives (or ctx is done)
// and returns the signal received, or nil if ctx ended first.
func WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sig
	case <-ctx.Done():
		return nil
	}
}

// Run blocks waiting for a termination signal, then runs Shutdown and
// sleeps ForceShutdownDelay before returning, so callers can simply
// `shutdown.Run(context.Background(), coordinator)` at the tail of main.
func Run(ctx context.Context, c *Coordinator) {
	sig := WaitForSignal(ctx)
	c.logger.Info("termination signal received", zap.Any("signal", sig))
	c.Shutdown(ctx)
	time.Sleep(c.config.ForceShutdownDelay)
}
