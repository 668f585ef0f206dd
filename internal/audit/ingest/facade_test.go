package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/perf"
)

func newTestFacade(maxBatchSize int) (*Facade, *perf.SmartBatcher) {
	b := perf.NewSmartBatcher(perf.BatcherConfig{
		MaxQueueSize: 100,
		Policy:       perf.BatchingPolicy{Kind: perf.SizeBased, MaxSize: 1000},
	})
	return New(b, nil, maxBatchSize, nil), b
}

func TestPublishEventAccepts(t *testing.T) {
	f, b := newTestFacade(10)
	receipt, err := f.PublishEvent(context.Background(), "tenant-1", model.Event{ID: "e1", TenantID: "tenant-1", Name: "login"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.ReceiptID == "" {
		t.Fatal("expected non-empty receipt id")
	}
	if b.PendingCount() != 1 {
		t.Fatalf("expected 1 queued event, got %d", b.PendingCount())
	}
}

func TestPublishEventRejectsEmptyTenant(t *testing.T) {
	f, _ := newTestFacade(10)
	_, err := f.PublishEvent(context.Background(), "", model.Event{ID: "e1"}, Options{})
	if auditerr.KindOf(err) != auditerr.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestPublishEventRejectsEmptyEventID(t *testing.T) {
	f, _ := newTestFacade(10)
	_, err := f.PublishEvent(context.Background(), "tenant-1", model.Event{TenantID: "tenant-1"}, Options{})
	if auditerr.KindOf(err) != auditerr.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestPublishEventRejectsMismatchedTenant(t *testing.T) {
	f, _ := newTestFacade(10)
	_, err := f.PublishEvent(context.Background(), "tenant-1", model.Event{ID: "e1", TenantID: "tenant-2"}, Options{})
	if auditerr.KindOf(err) != auditerr.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestPublishEventRejectsCancelledContext(t *testing.T) {
	f, _ := newTestFacade(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.PublishEvent(ctx, "tenant-1", model.Event{ID: "e1", TenantID: "tenant-1", Name: "login"}, Options{})
	if auditerr.KindOf(err) != auditerr.Cancelled {
		t.Fatalf("expected Cancelled, got %v", err)
	}
}

func TestPublishEventOpenBreakerIsUnavailable(t *testing.T) {
	b := perf.NewSmartBatcher(perf.BatcherConfig{MaxQueueSize: 10, Policy: perf.BatchingPolicy{Kind: perf.SizeBased, MaxSize: 10}})
	breaker := perf.NewCircuitBreaker(perf.CircuitBreakerConfig{FailureThreshold: 1, AutoRecovery: false, Timeout: time.Hour})
	breaker.RecordFailure()
	f := New(b, breaker, 10, nil)
	_, err := f.PublishEvent(context.Background(), "tenant-1", model.Event{ID: "e1", TenantID: "tenant-1", Name: "login"}, Options{})
	if auditerr.KindOf(err) != auditerr.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestPublishEventResourceExhaustedWhenQueueFull(t *testing.T) {
	b := perf.NewSmartBatcher(perf.BatcherConfig{MaxQueueSize: 1, Policy: perf.BatchingPolicy{Kind: perf.SizeBased, MaxSize: 10}})
	f := New(b, nil, 10, nil)
	if _, err := f.PublishEvent(context.Background(), "t", model.Event{ID: "e1", TenantID: "t", Name: "login"}, Options{}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	_, err := f.PublishEvent(context.Background(), "t", model.Event{ID: "e2", TenantID: "t", Name: "login"}, Options{})
	if auditerr.KindOf(err) != auditerr.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
}

func TestPublishBatchHappyPath(t *testing.T) {
	f, b := newTestFacade(1000)
	events := make([]model.Event, 100)
	for i := range events {
		events[i] = model.Event{ID: "e", TenantID: "t", Name: "login"}
	}
	result, err := f.PublishBatch(context.Background(), "t", events, Options{})
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if result.Accepted != 100 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if b.PendingCount() != 100 {
		t.Fatalf("expected 100 queued events, got %d", b.PendingCount())
	}
}

func TestPublishBatchRejectsOversizedBatch(t *testing.T) {
	f, _ := newTestFacade(10)
	events := make([]model.Event, 11)
	_, err := f.PublishBatch(context.Background(), "t", events, Options{})
	if auditerr.KindOf(err) != auditerr.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestPublishBatchRejectsEmptyBatch(t *testing.T) {
	f, _ := newTestFacade(10)
	_, err := f.PublishBatch(context.Background(), "t", nil, Options{})
	if auditerr.KindOf(err) != auditerr.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestPublishBatchSurfacesFailedIndicesWithoutAborting(t *testing.T) {
	f, _ := newTestFacade(10)
	events := []model.Event{
		{ID: "e1", TenantID: "t", Name: "login"},
		{TenantID: "t", Name: "login"}, // missing ID: fails validation
		{ID: "e3", TenantID: "t", Name: "login"},
	}
	result, err := f.PublishBatch(context.Background(), "t", events, Options{})
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if result.Accepted != 2 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Results[1].Err == nil {
		t.Fatal("expected index 1 to carry an error")
	}
	if result.Results[0].Err != nil || result.Results[2].Err != nil {
		t.Fatal("expected indices 0 and 2 to succeed")
	}
}

type fakeAdmitter struct{ admitting bool }

func (f fakeAdmitter) Admitting() bool { return f.admitting }

func TestPublishEventRejectsWhenNotAdmitting(t *testing.T) {
	f, _ := newTestFacade(10)
	f.SetAdmitter(fakeAdmitter{admitting: false})
	_, err := f.PublishEvent(context.Background(), "t", model.Event{ID: "e1", TenantID: "t", Name: "login"}, Options{})
	if auditerr.KindOf(err) != auditerr.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestPublishBatchRejectsWhenNotAdmitting(t *testing.T) {
	f, _ := newTestFacade(10)
	f.SetAdmitter(fakeAdmitter{admitting: false})
	_, err := f.PublishBatch(context.Background(), "t", []model.Event{{ID: "e1", TenantID: "t", Name: "login"}}, Options{})
	if auditerr.KindOf(err) != auditerr.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestPublishedEventMarshalsToJSON(t *testing.T) {
	f, b := newTestFacade(10)
	if _, err := f.PublishEvent(context.Background(), "t", model.Event{ID: "e1", TenantID: "t", Name: "login"}, Options{}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	batch := b.Flush()
	if len(batch) != 1 {
		t.Fatalf("expected 1 queued event, got %d", len(batch))
	}
	var got model.Event
	if err := json.Unmarshal(batch[0], &got); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if got.ID != "e1" || got.Name != "login" {
		t.Fatalf("unexpected roundtrip: %+v", got)
	}
}
