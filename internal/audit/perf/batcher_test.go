package perf

import (
	"testing"
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
)

func mustAccept(t *testing.T, b *SmartBatcher, data string) {
	t.Helper()
	outcome, err := b.AddEvent([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if outcome != Accepted {
		t.Fatalf("expected Accepted, got %v", outcome)
	}
}

func TestSizeBasedFlushesAtThreshold(t *testing.T) {
	b := NewSmartBatcher(BatcherConfig{
		MaxQueueSize: 100,
		Policy:       BatchingPolicy{Kind: SizeBased, MaxSize: 3},
	})
	for i := 0; i < 2; i++ {
		mustAccept(t, b, "e")
	}
	if b.ShouldFlush() {
		t.Fatal("expected no flush below size threshold")
	}
	mustAccept(t, b, "e")
	if !b.ShouldFlush() {
		t.Fatal("expected flush at size threshold")
	}
	batch := b.Flush()
	if len(batch) != 3 {
		t.Fatalf("batch size = %d", len(batch))
	}
	if b.PendingCount() != 0 {
		t.Fatal("expected queue to be empty after flush")
	}
}

func TestTimeBasedFlushesAfterDuration(t *testing.T) {
	b := NewSmartBatcher(BatcherConfig{
		MaxQueueSize: 100,
		Policy:       BatchingPolicy{Kind: TimeBased, MaxTime: 20 * time.Millisecond},
	})
	mustAccept(t, b, "e")
	if b.ShouldFlush() {
		t.Fatal("expected no flush before max time elapses")
	}
	time.Sleep(25 * time.Millisecond)
	if !b.ShouldFlush() {
		t.Fatal("expected flush after max time elapses")
	}
}

func TestHybridFlushesOnEitherCondition(t *testing.T) {
	b := NewSmartBatcher(BatcherConfig{
		MaxQueueSize: 100,
		Policy:       BatchingPolicy{Kind: Hybrid, MaxSize: 5, MaxTime: time.Hour},
	})
	for i := 0; i < 5; i++ {
		mustAccept(t, b, "e")
	}
	if !b.ShouldFlush() {
		t.Fatal("expected hybrid flush on size trigger")
	}
}

func TestAddEventRejectsWhenQueueFull(t *testing.T) {
	b := NewSmartBatcher(BatcherConfig{
		MaxQueueSize: 2,
		Policy:       BatchingPolicy{Kind: SizeBased, MaxSize: 10},
	})
	mustAccept(t, b, "e")
	mustAccept(t, b, "e")
	outcome, err := b.AddEvent([]byte("e"))
	if outcome != Rejected {
		t.Fatalf("expected Rejected, got %v", outcome)
	}
	if auditerr.KindOf(err) != auditerr.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
}

func TestAddEventShedByBackpressure(t *testing.T) {
	bp := NewBackpressureController(BackpressureConfig{
		QueueSizeWarnings: WarningTriplet{Light: 1, Moderate: 2, Heavy: 3},
	})
	b := NewSmartBatcher(BatcherConfig{
		MaxQueueSize:           100,
		Policy:                 BatchingPolicy{Kind: SizeBased, MaxSize: 10},
		BackpressureController: bp,
	})
	bp.SetQueueSize(10) // force Heavy before the first AddEvent call
	outcome, err := b.AddEvent([]byte("e"))
	if outcome != Shed || err != nil {
		t.Fatalf("expected Shed/nil, got %v/%v", outcome, err)
	}
	if b.PendingCount() != 0 {
		t.Fatal("shed event must not reach the queue")
	}
}

func TestFlushPreservesFIFOOrder(t *testing.T) {
	b := NewSmartBatcher(BatcherConfig{
		MaxQueueSize: 10,
		Policy:       BatchingPolicy{Kind: SizeBased, MaxSize: 3},
	})
	for _, e := range []string{"a", "b", "c"} {
		mustAccept(t, b, e)
	}
	batch := b.Flush()
	for i, want := range []string{"a", "b", "c"} {
		if string(batch[i]) != want {
			t.Fatalf("batch[%d] = %q, want %q", i, batch[i], want)
		}
	}
}

func TestAdaptivePolicyFlushesWithinBounds(t *testing.T) {
	b := NewSmartBatcher(BatcherConfig{
		MaxQueueSize: 100,
		Policy: BatchingPolicy{
			Kind:             Adaptive,
			TargetThroughput: 1000,
			MinBatchSize:     2,
			MaxBatchSize:     10,
			MinTime:          time.Millisecond,
			MaxTime:          10 * time.Millisecond,
		},
	})
	for i := 0; i < 2; i++ {
		mustAccept(t, b, "e")
	}
	if !b.ShouldFlush() {
		t.Fatal("expected adaptive flush at minimum batch size")
	}
	batch := b.Flush()
	if len(batch) != 2 {
		t.Fatalf("batch size = %d", len(batch))
	}
}
