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
	"sync/atomic"
	"time"
)

// bucketCount is the number of fixed-width time buckets RateStat keeps,
// giving a rolling window made of bucketCount independent counters instead
// of a single lock-guarded slice of timestamps. This trades exact
// event-level pruning (as BackpressureController.arrivals does) for
// constant-time, allocation-free increments on the ingestion hot path.
const bucketCount = 10

// RateStat is a lock-free approximate arrival-rate counter over a rolling
// window, built from fixed-width atomic bucket counters instead of a
// lock-guarded list of timestamps. It has exactly one hot counter at a
// time (the current bucket), so a single atomic.Int64 per bucket is
// already contention-free across goroutines incrementing concurrently,
// with the window's resolution bounded by bucketCount rather than by
// per-event bookkeeping.
type RateStat struct {
	window     time.Duration
	bucketSpan time.Duration

	buckets  [bucketCount]atomic.Int64
	bucketAt [bucketCount]atomic.Int64 // unix nanos marking each bucket's span start
}

// NewRateStat constructs a RateStat tracking arrivals over window.
func NewRateStat(window time.Duration) *RateStat {
	return &RateStat{window: window, bucketSpan: window / bucketCount}
}

func (r *RateStat) bucketIndex(t time.Time) int {
	return int((t.UnixNano() / int64(r.bucketSpan)) % bucketCount)
}

// Record increments the bucket for the current instant, resetting it first
// if it has rolled over from a previous window.
func (r *RateStat) Record() {
	now := time.Now()
	idx := r.bucketIndex(now)
	spanStart := now.UnixNano() / int64(r.bucketSpan)

	if r.bucketAt[idx].Swap(spanStart) != spanStart {
		r.buckets[idx].Store(0)
	}
	r.buckets[idx].Add(1)
}

// Rate returns the approximate events-per-second rate over the configured
// window, counting only buckets whose span start still falls inside it.
func (r *RateStat) Rate() float64 {
	now := time.Now()
	currentSpan := now.UnixNano() / int64(r.bucketSpan)
	oldestValidSpan := currentSpan - bucketCount + 1

	var total int64
	for i := 0; i < bucketCount; i++ {
		span := r.bucketAt[i].Load()
		if span >= oldestValidSpan && span <= currentSpan {
			total += r.buckets[i].Load()
		}
	}
	return float64(total) / r.window.Seconds()
}
