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

// Package perf holds the admission-control components that sit between the
// ingestion façade and the downstream forwarder: the smart batcher, the
// backpressure controller, the circuit breaker, and the connection pool.
package perf

import (
	"sync"
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
)

// BatchingPolicy selects how SmartBatcher decides a batch is ready to flush.
type BatchingPolicy struct {
	Kind PolicyKind

	// TimeBased
	MaxTime time.Duration

	// SizeBased
	MaxSize int

	// Hybrid: flush on whichever of MaxTime/MaxSize triggers first.

	// Adaptive
	TargetThroughput int
	MinBatchSize     int
	MaxBatchSize     int
	MinTime          time.Duration
}

// PolicyKind enumerates the four batching policies.
type PolicyKind int

const (
	TimeBased PolicyKind = iota
	SizeBased
	Hybrid
	Adaptive
)

// BatcherConfig configures a SmartBatcher.
type BatcherConfig struct {
	MaxQueueSize   int
	Policy         BatchingPolicy
	FlushTimeout   time.Duration
	AdaptiveTuning bool

	// BackpressureController, if set, is consulted on every AddEvent call;
	// Moderate/Heavy pressure can shed an event before it reaches the
	// queue bound.
	BackpressureController *BackpressureController

	// EnableMetrics is carried in the config but not read by the batcher,
	// which stays metrics-library-agnostic; callers record AddOutcome
	// values themselves (see internal/audit/telemetry).
	EnableMetrics bool
}

// AddOutcome is the three-way result of AddEvent, matching the component
// design's Accepted/Shed/Rejected contract.
type AddOutcome int

const (
	Accepted AddOutcome = iota
	Shed
	Rejected
)

func (o AddOutcome) String() string {
	switch o {
	case Shed:
		return "shed"
	case Rejected:
		return "rejected"
	default:
		return "accepted"
	}
}

// SmartBatcher accumulates events in FIFO order and decides, per its
// configured policy, when a batch is ready to flush.
type SmartBatcher struct {
	mu     sync.Mutex
	config BatcherConfig
	queue  [][]byte

	firstEventAt time.Time

	// adaptive state
	lastFlush      time.Time
	observedEvents int
	currentMaxSize int
	currentMaxTime time.Duration
}

// NewSmartBatcher constructs a SmartBatcher from config.
func NewSmartBatcher(config BatcherConfig) *SmartBatcher {
	b := &SmartBatcher{config: config, lastFlush: time.Now()}
	if config.Policy.Kind == Adaptive {
		b.currentMaxSize = config.Policy.MinBatchSize
		b.currentMaxTime = config.Policy.MaxTime
		if b.currentMaxSize <= 0 {
			b.currentMaxSize = 1
		}
	}
	return b
}

// AddEvent appends data to the queue, returning Rejected with a
// ResourceExhausted error if MaxQueueSize is exceeded, Shed (no error) if the
// configured BackpressureController sheds the event, or Accepted.
func (b *SmartBatcher) AddEvent(data []byte) (AddOutcome, error) {
	if b.config.BackpressureController != nil {
		b.config.BackpressureController.SetQueueSize(b.PendingCount())
		if outcome, admitted := b.config.BackpressureController.AdmitDecision(); !admitted {
			_ = outcome
			return Shed, nil
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.MaxQueueSize > 0 && len(b.queue) >= b.config.MaxQueueSize {
		return Rejected, auditerr.New(auditerr.ResourceExhausted, "batcher queue is full")
	}
	if len(b.queue) == 0 {
		b.firstEventAt = time.Now()
	}
	b.queue = append(b.queue, data)
	b.observedEvents++
	if b.config.BackpressureController != nil {
		b.config.BackpressureController.RecordArrival()
	}
	return Accepted, nil
}

// ShouldFlush reports whether the current queue satisfies the configured
// policy's flush condition.
func (b *SmartBatcher) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shouldFlushLocked()
}

func (b *SmartBatcher) shouldFlushLocked() bool {
	if len(b.queue) == 0 {
		return false
	}
	p := b.config.Policy
	switch p.Kind {
	case TimeBased:
		return time.Since(b.firstEventAt) >= p.MaxTime
	case SizeBased:
		return len(b.queue) >= p.MaxSize
	case Hybrid:
		return len(b.queue) >= p.MaxSize || time.Since(b.firstEventAt) >= p.MaxTime
	case Adaptive:
		return len(b.queue) >= b.currentMaxSize || time.Since(b.firstEventAt) >= b.currentMaxTime
	default:
		return false
	}
}

// Flush drains and returns the queued events in FIFO order, resetting the
// batcher for the next batch. It returns nil if the queue is empty.
func (b *SmartBatcher) Flush() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *SmartBatcher) flushLocked() [][]byte {
	if len(b.queue) == 0 {
		return nil
	}
	out := b.queue
	b.queue = nil

	if b.config.Policy.Kind == Adaptive && b.config.AdaptiveTuning {
		b.retuneAdaptiveLocked(len(out))
	}
	b.lastFlush = time.Now()
	return out
}

// retuneAdaptiveLocked adjusts the Adaptive policy's current batch size
// toward the configured target throughput, based on the rate of flushes
// observed so far. Called with b.mu held.
func (b *SmartBatcher) retuneAdaptiveLocked(lastBatchSize int) {
	p := b.config.Policy
	elapsed := time.Since(b.lastFlush)
	if elapsed <= 0 {
		return
	}
	observedRate := float64(lastBatchSize) / elapsed.Seconds()

	switch {
	case p.TargetThroughput > 0 && observedRate < float64(p.TargetThroughput):
		b.currentMaxSize = min(b.currentMaxSize*2, p.MaxBatchSize)
		b.currentMaxTime = max(b.currentMaxTime/2, p.MinTime)
	case p.TargetThroughput > 0 && observedRate > float64(p.TargetThroughput)*1.5:
		b.currentMaxSize = max(b.currentMaxSize/2, p.MinBatchSize)
		b.currentMaxTime = min(b.currentMaxTime*2, p.MaxTime)
	}
	if b.currentMaxSize < 1 {
		b.currentMaxSize = 1
	}
}

// PendingCount reports how many events are currently queued.
func (b *SmartBatcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
