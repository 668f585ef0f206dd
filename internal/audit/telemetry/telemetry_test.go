package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/perf"
)

func TestObserveAddOutcomeIncrementsMatchingCounter(t *testing.T) {
	before := testutil.ToFloat64(eventsAdmittedTotal)
	ObserveAddOutcome(perf.Accepted)
	after := testutil.ToFloat64(eventsAdmittedTotal)
	if after != before+1 {
		t.Fatalf("expected admitted counter to increment, before=%v after=%v", before, after)
	}

	before = testutil.ToFloat64(eventsShedTotal)
	ObserveAddOutcome(perf.Shed)
	after = testutil.ToFloat64(eventsShedTotal)
	if after != before+1 {
		t.Fatalf("expected shed counter to increment, before=%v after=%v", before, after)
	}
}

func TestObserveBatchFlushedUpdatesCoalescingRatio(t *testing.T) {
	admittedCount.Store(0)
	forwardedBatches.Store(0)

	admittedCount.Store(100)
	ObserveBatchFlushed(10)

	got := testutil.ToFloat64(coalescingRatio)
	want := 1 - float64(1)/float64(100)
	if got != want {
		t.Fatalf("expected ratio %v, got %v", want, got)
	}
}

func TestObserveBatchFlushedIgnoresEmptyBatch(t *testing.T) {
	before := testutil.ToFloat64(batchesForwardedTotal)
	ObserveBatchFlushed(0)
	after := testutil.ToFloat64(batchesForwardedTotal)
	if before != after {
		t.Fatal("expected empty batch to be a no-op")
	}
}

func TestObserveBreakerStateSetsGaugeAndDwell(t *testing.T) {
	ObserveBreakerState(perf.Open, 5*time.Second)
	if got := testutil.ToFloat64(breakerStateGauge); got != float64(perf.Open) {
		t.Fatalf("expected gauge set to Open, got %v", got)
	}
	before := testutil.ToFloat64(breakerRejectedTotal)
	ObserveBreakerState(perf.Open, time.Second)
	after := testutil.ToFloat64(breakerRejectedTotal)
	if after != before+1 {
		t.Fatal("expected rejected counter to increment while Open")
	}
}

func TestObservePoolOccupancySetsGauges(t *testing.T) {
	ObservePoolOccupancy(3, 7)
	if got := testutil.ToFloat64(poolLeasedGauge); got != 3 {
		t.Fatalf("expected leased gauge 3, got %v", got)
	}
	if got := testutil.ToFloat64(poolIdleGauge); got != 7 {
		t.Fatalf("expected idle gauge 7, got %v", got)
	}
}

func TestObserveDigestChainLengthIsPerTenant(t *testing.T) {
	ObserveDigestChainLength("tenant-a", 12)
	if got := testutil.ToFloat64(digestChainLength.WithLabelValues("tenant-a")); got != 12 {
		t.Fatalf("expected 12, got %v", got)
	}
}

func TestHandlerReturnsNonNil(t *testing.T) {
	if Handler() == nil {
		t.Fatal("expected non-nil handler")
	}
}
