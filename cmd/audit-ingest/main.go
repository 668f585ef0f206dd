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

// Package main is the Control service entry point: it wires the smart
// batcher, backpressure controller, circuit breaker and a forwarder adapter
// behind the ingestion façade, and serves PublishEvent/PublishBatch/
// HealthCheck over HTTP on AUDIT_CONTROL_ADDR.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/forward"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/httpapi"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/ingest"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/perf"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/shutdown"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/telemetry"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	controlAddr := flag.String("control_addr", envOr("AUDIT_CONTROL_ADDR", ":8080"), "Control service listen address")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address")

	maxBatchSize := flag.Int("max_batch_size", 1000, "Maximum events accepted per PublishBatch call")
	queueSize := flag.Int("queue_size", 10000, "Smart batcher's bounded queue capacity")
	batchMaxSize := flag.Int("batch_max_size", 256, "Flush a batch once it reaches this many events")
	adaptiveTuning := flag.Bool("adaptive_tuning", true, "Let an Adaptive-policy batcher retune its size target from observed flush rates; no effect with this service's SizeBased policy")

	bpLightWarn := flag.Int("backpressure_light", 5000, "Queue depth at which pressure becomes Light")
	bpModerateWarn := flag.Int("backpressure_moderate", 7500, "Queue depth at which pressure becomes Moderate")
	bpHeavyWarn := flag.Int("backpressure_heavy", 9000, "Queue depth at which pressure becomes Heavy")
	bpSampleProbability := flag.Float64("backpressure_sample_probability", 0.5, "Coin-flip admit probability at Moderate pressure")
	bpAutoRecovery := flag.Bool("backpressure_auto_recovery", true, "Allow pressure to recover once queue depth falls")
	bpRecoveryDelay := flag.Duration("backpressure_recovery_delay", 2*time.Second, "Dwell time below the current level before stepping down one level")

	breakerFailureThreshold := flag.Int("breaker_failure_threshold", 5, "Consecutive forwarder failures before the circuit opens")
	breakerSuccessThreshold := flag.Int("breaker_success_threshold", 2, "Consecutive half-open successes before the circuit closes")
	breakerTimeout := flag.Duration("breaker_timeout", 30*time.Second, "How long the circuit stays open before probing again")
	breakerErrorRateThreshold := flag.Float64("breaker_error_rate_threshold", 0.5, "Rolling error rate that also trips the circuit open")
	breakerMinRequests := flag.Int("breaker_min_requests", 20, "Minimum requests in the rolling window before the error-rate trip applies")
	breakerRollingWindow := flag.Duration("breaker_rolling_window", time.Minute, "Rolling window the error-rate trip condition is evaluated over")

	forwarderAdapter := flag.String("forwarder", "kafka", "Downstream forwarder adapter: kafka, redis, or postgres")
	kafkaTopic := flag.String("kafka_topic", "audit-events", "Kafka topic the forwarder publishes to")
	redisAddr := flag.String("redis_addr", "", "Redis address for the redis forwarder adapter")
	redisMarkerTTLSeconds := flag.Int("redis_marker_ttl_seconds", 86400, "TTL in seconds for the redis forwarder's idempotency markers")
	redisPoolSize := flag.Int("redis_pool_size", 0, "If > 0, the redis adapter leases from a bounded pool of this many connections instead of sharing one client")
	flushInterval := flag.Duration("flush_interval", 100*time.Millisecond, "How often the background loop checks whether the batcher is ready to flush")

	shutdownTimeout := flag.Duration("shutdown_timeout", 30*time.Second, "Overall budget for draining components on shutdown")
	forceShutdownDelay := flag.Duration("force_shutdown_delay", 5*time.Second, "Extra delay after drain completes before the process exits")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	forwarder, err := forward.Build(*forwarderAdapter, forward.Options{
		KafkaTopic:     *kafkaTopic,
		RedisAddr:      *redisAddr,
		RedisMarkerTTL: *redisMarkerTTLSeconds,
		RedisPoolSize:  *redisPoolSize,
	})
	if err != nil {
		logger.Fatal("build forwarder", zap.Error(err))
	}

	backpressure := perf.NewBackpressureController(perf.BackpressureConfig{
		QueueSizeWarnings: perf.WarningTriplet{Light: *bpLightWarn, Moderate: *bpModerateWarn, Heavy: *bpHeavyWarn},
		SampleProbability: *bpSampleProbability,
		AutoRecovery:      *bpAutoRecovery,
		RecoveryDelay:     *bpRecoveryDelay,
	})

	batcher := perf.NewSmartBatcher(perf.BatcherConfig{
		MaxQueueSize:           *queueSize,
		Policy:                 perf.BatchingPolicy{Kind: perf.SizeBased, MaxSize: *batchMaxSize},
		AdaptiveTuning:         *adaptiveTuning,
		BackpressureController: backpressure,
		EnableMetrics:          true,
	})

	breaker := perf.NewCircuitBreaker(perf.CircuitBreakerConfig{
		FailureThreshold:    *breakerFailureThreshold,
		SuccessThreshold:    *breakerSuccessThreshold,
		Timeout:             *breakerTimeout,
		ErrorRateThreshold:  *breakerErrorRateThreshold,
		MinRequestThreshold: *breakerMinRequests,
		RollingWindow:       *breakerRollingWindow,
		AutoRecovery:        true,
	})

	facade := ingest.New(batcher, breaker, *maxBatchSize, logger)

	coordinator := shutdown.New(shutdown.Config{
		ShutdownTimeout:    *shutdownTimeout,
		ForceShutdownDelay: *forceShutdownDelay,
	}, logger)
	facade.SetAdmitter(coordinator)

	loop := newFlushLoop(batcher, forwarder, *flushInterval, logger)
	loop.Start()
	coordinator.AddComponent(shutdown.NewComponent("flush-loop", func(context.Context) error {
		loop.Stop()
		return nil
	}))
	coordinator.AddComponent(shutdown.NewComponent("batcher", func(ctx context.Context) error {
		drainBatcher(ctx, batcher, forwarder, logger)
		return nil
	}))
	if closer, ok := forwarder.(interface{ Close() error }); ok {
		coordinator.AddComponent(shutdown.NewComponent("forwarder-pool", func(context.Context) error {
			return closer.Close()
		}))
	}

	server := httpapi.NewServer(facade, coordinator, logger)

	go func() {
		logger.Info("control service listening", zap.String("addr", *controlAddr))
		if err := server.ListenAndServe(*controlAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("control service exited", zap.Error(err))
		}
	}()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", telemetry.Handler())
			metricsServer := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			logger.Info("metrics endpoint listening", zap.String("addr", *metricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint exited", zap.Error(err))
			}
		}()
	}

	shutdown.Run(context.Background(), coordinator)
	logger.Info("exiting")
}

// flushLoop periodically checks whether the batcher's policy says a batch is
// ready, and if so flushes it to the forwarder.
type flushLoop struct {
	batcher   *perf.SmartBatcher
	forwarder forward.Forwarder
	interval  time.Duration
	logger    *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

func newFlushLoop(batcher *perf.SmartBatcher, forwarder forward.Forwarder, interval time.Duration, logger *zap.Logger) *flushLoop {
	return &flushLoop{batcher: batcher, forwarder: forwarder, interval: interval, logger: logger, stopChan: make(chan struct{})}
}

func (l *flushLoop) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run()
	}()
}

func (l *flushLoop) Stop() {
	if !atomic.CompareAndSwapUint32(&l.stopped, 0, 1) {
		return
	}
	close(l.stopChan)
	l.wg.Wait()
}

func (l *flushLoop) run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if l.batcher.ShouldFlush() {
				drainBatcher(context.Background(), l.batcher, l.forwarder, l.logger)
			}
		case <-l.stopChan:
			return
		}
	}
}

// drainBatcher flushes whatever is in the batcher's queue and hands it to
// the forwarder. The flush loop calls it on each tick that finds a batch
// ready, and the batcher's shutdown component calls it once more before the
// process exits.
func drainBatcher(ctx context.Context, batcher *perf.SmartBatcher, forwarder forward.Forwarder, logger *zap.Logger) {
	raw := batcher.Flush()
	if len(raw) == 0 {
		return
	}
	telemetry.ObserveBatchFlushed(len(raw))

	entries := make([]forward.Entry, 0, len(raw))
	for _, payload := range raw {
		var event model.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.Error("undecodable event dropped during batch drain", zap.Error(err))
			continue
		}
		entries = append(entries, forward.Entry{EventID: event.ID, TenantID: event.TenantID, Payload: payload})
	}
	if err := forwarder.ForwardBatch(ctx, entries); err != nil {
		logger.Error("batch forward failed", zap.Error(err), zap.Int("events", len(entries)))
	}
}
