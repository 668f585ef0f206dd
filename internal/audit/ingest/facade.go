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

// Package ingest implements the ingestion façade: the two operations
// external producers call, publish_event and publish_batch, kept
// transport-agnostic so the HTTP and gRPC surfaces can both delegate to it.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/perf"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/telemetry"
)

// Options carries per-call knobs producers may set. Empty today; reserved
// for forwarder routing hints as the downstream router's contract firms up.
type Options struct{}

// Receipt is returned for a single accepted event.
type Receipt struct {
	ReceiptID   string
	ReceiptTime time.Time
}

// EventResult is one event's outcome within a PublishBatch call. Err is nil
// for accepted events.
type EventResult struct {
	Index int
	Receipt
	Err error
}

// BatchResult is the aggregate outcome of PublishBatch. Per-event failures
// surface by index in Results without aborting the rest of the batch.
type BatchResult struct {
	Results  []EventResult
	Accepted int
	Failed   int
}

// Admitter reports whether the façade should still admit new work. The
// graceful-shutdown coordinator satisfies this so that PublishEvent and
// PublishBatch stop accepting events the instant draining begins, per the
// shutdown state machine's "stop admitting new work at the façade" step.
type Admitter interface {
	Admitting() bool
}

// Facade is the ingestion façade: accepts events from producers, validates
// them, consults the circuit breaker for downstream health, and hands
// accepted events to the batcher.
type Facade struct {
	batcher      *perf.SmartBatcher
	breaker      *perf.CircuitBreaker // optional; nil means no breaker gating
	maxBatchSize int
	logger       *zap.Logger
	now          func() time.Time
	admitter     Admitter // optional; nil means always admitting
}

// SetAdmitter wires the graceful-shutdown coordinator (or any Admitter) so
// the façade stops accepting work once draining starts.
func (f *Facade) SetAdmitter(a Admitter) {
	f.admitter = a
}

func (f *Facade) admitting() bool {
	return f.admitter == nil || f.admitter.Admitting()
}

var errDraining = auditerr.New(auditerr.Unavailable, "service is draining, not admitting new events")

// New constructs a Facade. breaker may be nil to skip circuit-breaker
// gating (e.g. in tests, or deployments without a forwarder yet wired).
func New(batcher *perf.SmartBatcher, breaker *perf.CircuitBreaker, maxBatchSize int, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{
		batcher:      batcher,
		breaker:      breaker,
		maxBatchSize: maxBatchSize,
		logger:       logger,
		now:          time.Now,
	}
}

// PublishEvent validates and enqueues a single event, returning a receipt.
func (f *Facade) PublishEvent(ctx context.Context, tenantID string, event model.Event, opts Options) (Receipt, error) {
	if err := ctxErr(ctx); err != nil {
		return Receipt{}, err
	}
	if !f.admitting() {
		return Receipt{}, errDraining
	}
	if err := validateEvent(tenantID, event); err != nil {
		return Receipt{}, err
	}
	if f.breaker != nil && !f.breaker.Allow() {
		telemetry.ObserveBreakerState(f.breaker.CurrentState(), 0)
		return Receipt{}, perf.ErrOpen
	}

	data, err := json.Marshal(event)
	if err != nil {
		return Receipt{}, auditerr.Wrap(auditerr.Internal, "marshal event", err)
	}

	outcome, err := f.batcher.AddEvent(data)
	telemetry.ObserveAddOutcome(outcome)
	if err != nil {
		return Receipt{}, err
	}
	if outcome == perf.Shed {
		return Receipt{}, auditerr.New(auditerr.ResourceExhausted, "event shed by backpressure controller")
	}

	receipt := Receipt{ReceiptID: uuid.NewString(), ReceiptTime: f.now()}
	f.logger.Debug("event published",
		zap.String("tenant_id", tenantID),
		zap.String("event_id", event.ID),
		zap.String("receipt_id", receipt.ReceiptID),
	)
	return receipt, nil
}

// PublishBatch validates the batch size, then validates and enqueues each
// event independently: a bad event at index i surfaces as Results[i].Err
// without preventing the rest of the batch from being processed.
func (f *Facade) PublishBatch(ctx context.Context, tenantID string, events []model.Event, opts Options) (BatchResult, error) {
	if err := ctxErr(ctx); err != nil {
		return BatchResult{}, err
	}
	if !f.admitting() {
		return BatchResult{}, errDraining
	}
	if err := validateBatchSize(len(events), f.maxBatchSize); err != nil {
		return BatchResult{}, err
	}
	if f.breaker != nil && !f.breaker.Allow() {
		telemetry.ObserveBreakerState(f.breaker.CurrentState(), 0)
		return BatchResult{}, perf.ErrOpen
	}

	results := make([]EventResult, len(events))
	var accepted, failed int
	for i, event := range events {
		receipt, err := f.publishWithoutBreakerCheck(tenantID, event)
		results[i] = EventResult{Index: i, Receipt: receipt, Err: err}
		if err != nil {
			failed++
		} else {
			accepted++
		}
	}

	f.logger.Info("batch published",
		zap.String("tenant_id", tenantID),
		zap.Int("accepted", accepted),
		zap.Int("failed", failed),
	)
	return BatchResult{Results: results, Accepted: accepted, Failed: failed}, nil
}

// publishWithoutBreakerCheck implements the per-event half of PublishEvent;
// the breaker is already checked once per batch in PublishBatch.
func (f *Facade) publishWithoutBreakerCheck(tenantID string, event model.Event) (Receipt, error) {
	if err := validateEvent(tenantID, event); err != nil {
		return Receipt{}, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return Receipt{}, auditerr.Wrap(auditerr.Internal, "marshal event", err)
	}
	outcome, err := f.batcher.AddEvent(data)
	telemetry.ObserveAddOutcome(outcome)
	if err != nil {
		return Receipt{}, err
	}
	if outcome == perf.Shed {
		return Receipt{}, auditerr.New(auditerr.ResourceExhausted, "event shed by backpressure controller")
	}
	return Receipt{ReceiptID: uuid.NewString(), ReceiptTime: f.now()}, nil
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return auditerr.Wrap(auditerr.Cancelled, "publish cancelled", ctx.Err())
	default:
		return nil
	}
}
