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

// Package telemetry exposes the ingestion pipeline's Prometheus metrics:
// admission outcomes, batch sizes, circuit-breaker dwell time, pool lease
// wait, digest-chain length, and the batch-coalescing-ratio KPI.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/perf"
)

var (
	eventsAdmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_admitted_total",
		Help: "Total events accepted by the smart batcher.",
	})
	eventsShedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_shed_total",
		Help: "Total events shed by the backpressure controller.",
	})
	eventsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_rejected_total",
		Help: "Total events rejected at the batcher (queue full).",
	})
	batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_batch_size",
		Help:    "Distribution of event counts per flushed batch.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 4096},
	})
	batchesForwardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_batches_forwarded_total",
		Help: "Total batches handed to a forwarder.",
	})
	coalescingRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_batch_coalescing_ratio",
		Help: "Fraction of writes avoided by batching: 1 - batches_forwarded/events_admitted, since process start.",
	})
	breakerStateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_circuit_breaker_state",
		Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open.",
	})
	breakerDwellSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audit_circuit_breaker_dwell_seconds",
		Help:    "Time spent in a circuit breaker state before transitioning out of it.",
		Buckets: prometheus.DefBuckets,
	}, []string{"state"})
	breakerRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_circuit_breaker_rejected_total",
		Help: "Total calls fast-failed by an open circuit breaker.",
	})
	poolLeaseWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_pool_lease_wait_seconds",
		Help:    "Time callers waited to acquire a pooled connection.",
		Buckets: prometheus.DefBuckets,
	})
	poolLeasedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_pool_leased_connections",
		Help: "Connections currently leased out of the pool.",
	})
	poolIdleGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_pool_idle_connections",
		Help: "Connections currently idle in the pool.",
	})
	digestChainLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audit_digest_chain_length",
		Help: "Number of entries in a tenant's digest chain.",
	}, []string{"tenant_id"})
	digestCycleErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_digest_cycle_errors_total",
		Help: "Total digest worker cycles that failed.",
	})
	backpressureDwellSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audit_backpressure_dwell_seconds",
		Help:    "Time spent at a given backpressure level.",
		Buckets: prometheus.DefBuckets,
	}, []string{"level"})
)

func init() {
	prometheus.MustRegister(
		eventsAdmittedTotal, eventsShedTotal, eventsRejectedTotal,
		batchSize, batchesForwardedTotal, coalescingRatio,
		breakerStateGauge, breakerDwellSeconds, breakerRejectedTotal,
		poolLeaseWaitSeconds, poolLeasedGauge, poolIdleGauge,
		digestChainLength, digestCycleErrorsTotal, backpressureDwellSeconds,
	)
}

// running totals backing the coalescing-ratio gauge; plain atomics rather
// than a windowed aggregator since the ratio only needs to be directionally
// right between scrapes.
var (
	admittedCount    atomic.Int64
	forwardedBatches atomic.Int64
)

// ObserveAddOutcome records a SmartBatcher.AddEvent outcome.
func ObserveAddOutcome(outcome perf.AddOutcome) {
	switch outcome {
	case perf.Accepted:
		eventsAdmittedTotal.Inc()
		admittedCount.Add(1)
	case perf.Shed:
		eventsShedTotal.Inc()
	case perf.Rejected:
		eventsRejectedTotal.Inc()
	}
}

// ObserveBatchFlushed records a batch handed off to a forwarder and updates
// the coalescing-ratio gauge.
func ObserveBatchFlushed(eventCount int) {
	if eventCount <= 0 {
		return
	}
	batchSize.Observe(float64(eventCount))
	batchesForwardedTotal.Inc()
	forwardedBatches.Add(1)
	refreshCoalescingRatio()
}

func refreshCoalescingRatio() {
	admitted := admittedCount.Load()
	batches := forwardedBatches.Load()
	if admitted == 0 {
		coalescingRatio.Set(0)
		return
	}
	coalescingRatio.Set(1 - float64(batches)/float64(admitted))
}

// ObserveBreakerState records the circuit breaker's current state and how
// long it dwelled in the previous state before transitioning.
func ObserveBreakerState(state perf.State, dwell time.Duration) {
	breakerStateGauge.Set(float64(state))
	if dwell > 0 {
		breakerDwellSeconds.WithLabelValues(previousStateLabel(state)).Observe(dwell.Seconds())
	}
	if state == perf.Open {
		breakerRejectedTotal.Inc()
	}
}

func previousStateLabel(current perf.State) string {
	switch current {
	case perf.Open:
		return "closed"
	case perf.HalfOpen:
		return "open"
	default:
		return "half-open"
	}
}

// ObservePoolLeaseWait records how long a caller waited for Pool.Get.
func ObservePoolLeaseWait(d time.Duration) {
	poolLeaseWaitSeconds.Observe(d.Seconds())
}

// ObservePoolOccupancy records the pool's current leased/idle split.
func ObservePoolOccupancy(leased, idle int) {
	poolLeasedGauge.Set(float64(leased))
	poolIdleGauge.Set(float64(idle))
}

// ObserveDigestChainLength records a tenant's digest chain length after a
// successful digest cycle.
func ObserveDigestChainLength(tenantID string, length int) {
	digestChainLength.WithLabelValues(tenantID).Set(float64(length))
}

// ObserveDigestCycleError increments the digest worker error counter.
func ObserveDigestCycleError() {
	digestCycleErrorsTotal.Inc()
}

// ObserveBackpressureDwell records time spent at a backpressure level
// before the controller moved to another level.
func ObserveBackpressureDwell(level perf.Level, d time.Duration) {
	backpressureDwellSeconds.WithLabelValues(level.String()).Observe(d.Seconds())
}

// Handler returns the /metrics HTTP handler for mounting into a service's
// router, e.g. alongside httpapi.Server's own routes.
func Handler() http.Handler {
	return promhttp.Handler()
}
