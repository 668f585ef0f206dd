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

package forward

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// LoggingProducer is a dependency-free Producer that logs what it would
// have sent. It lets the ingestion service start up with the "kafka"
// adapter selected before a real broker is wired in. Not for production
// use.
type LoggingProducer struct{}

// Produce implements Producer by printing the message instead of sending it.
func (LoggingProducer) Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[kafka-forward] topic=%s key=%s bytes=%d headers=%v\n", topic, string(key), len(value), headers)
	return nil
}

// goRedisEvaler adapts a real *redis.Client to the RedisEvaler interface so
// ForwardBatch can be exercised against a fake in tests and a live server in
// production through the same code path.
type goRedisEvaler struct{ c *redis.Client }

func newGoRedisEvaler(addr string) goRedisEvaler {
	return goRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g goRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// Options holds the knobs Build needs to construct an adapter.
type Options struct {
	RedisAddr      string
	RedisMarkerTTL int // seconds; 0 uses the adapter's default
	KafkaTopic     string

	// RedisPoolSize bounds how many pooled Redis connections the redis
	// adapter leases from, rather than sharing one client across every
	// ForwardBatch call. 0 falls back to a single unpooled client.
	RedisPoolSize int
}
