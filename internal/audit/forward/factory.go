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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/perf"
)

// Build constructs a Forwarder for the named adapter.
//
// Supported adapters:
//   - "kafka": publishes to the configured topic. Uses a logging producer
//     until a real one is wired in by the caller (see NewKafkaForwarder).
//   - "redis": pushes onto a per-tenant list guarded by an idempotency
//     marker. Requires opts.RedisAddr.
//   - "postgres": requires a caller-supplied *sql.DB; use NewPostgresForwarder
//     directly since there is no connection string convention this factory
//     should own.
func Build(adapter string, opts Options) (Forwarder, error) {
	switch adapter {
	case "kafka":
		topic := opts.KafkaTopic
		if topic == "" {
			topic = "audit-events"
		}
		return NewKafkaForwarder(LoggingProducer{}, topic), nil
	case "redis":
		if opts.RedisAddr == "" {
			return nil, errors.New("forward: redis adapter requires RedisAddr")
		}
		ttl := time.Duration(opts.RedisMarkerTTL) * time.Second
		if opts.RedisPoolSize > 0 {
			return NewPooledRedisForwarder(opts.RedisAddr, ttl, perf.PoolConfig{
				MinConnections:      1,
				MaxConnections:      opts.RedisPoolSize,
				ConnectionTimeout:   5 * time.Second,
				HealthCheckInterval: 30 * time.Second,
				IdleTimeout:         5 * time.Minute,
				MaxRetries:          2,
				RetryDelay:          100 * time.Millisecond,
			}), nil
		}
		client := newGoRedisEvaler(opts.RedisAddr)
		return NewRedisForwarder(client, ttl), nil
	case "postgres":
		return nil, errors.New("forward: postgres adapter requires a *sql.DB; call NewPostgresForwarder directly")
	default:
		return nil, fmt.Errorf("forward: unknown adapter %q", adapter)
	}
}

// BuildPostgres is the postgres-specific constructor. Build does not call
// it (Build's "postgres" case returns an error); it is kept separate
// because it needs a live *sql.DB rather than a string option.
func BuildPostgres(db *sql.DB) Forwarder {
	return NewPostgresForwarder(db)
}
