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
	"errors"
	"fmt"
	"time"
)

// RedisEvaler abstracts the minimal surface ForwardBatch needs from a Redis
// client, so tests can substitute a fake instead of dialing a real server.
// *redis.Client satisfies this via goRedisEvaler in clients.go.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// redisLuaForward idempotently records one event's delivery and pushes its
// payload onto the tenant's stream list:
//  1. SETNX a per-event marker
//  2. if newly set, RPUSH the payload onto the tenant's queue and EXPIRE the
//     marker for leak protection
//
// A redelivery of the same event id is a no-op.
const redisLuaForward = `
local markerKey = KEYS[1]
local queueKey = KEYS[2]
local payload = ARGV[1]
local ttlSeconds = tonumber(ARGV[2])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('RPUSH', queueKey, payload)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

func redisMarkerKey(eventID string) string { return fmt.Sprintf("audit:delivered:%s", eventID) }
func redisQueueKey(tenantID string) string { return fmt.Sprintf("audit:queue:%s", tenantID) }

// RedisForwarder pushes entries onto a per-tenant Redis list, guarded by an
// idempotency marker keyed on the event ID.
type RedisForwarder struct {
	client    RedisEvaler
	markerTTL time.Duration
}

// NewRedisForwarder constructs a RedisForwarder. markerTTL bounds how long
// delivery markers persist; pick a value comfortably larger than the
// forwarder's retry window.
func NewRedisForwarder(client RedisEvaler, markerTTL time.Duration) *RedisForwarder {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisForwarder{client: client, markerTTL: markerTTL}
}

// ForwardBatch applies each entry with a single EVAL per entry.
func (r *RedisForwarder) ForwardBatch(ctx context.Context, batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}
	for _, e := range batch {
		if e.EventID == "" {
			return errors.New("forward: Entry.EventID must be set")
		}
		keys := []string{redisMarkerKey(e.EventID), redisQueueKey(e.TenantID)}
		args := []interface{}{e.Payload, int(r.markerTTL.Seconds())}
		if _, err := r.client.Eval(ctx, redisLuaForward, keys, args...); err != nil {
			return fmt.Errorf("redis eval event=%s: %w", e.EventID, err)
		}
	}
	return nil
}
