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

// Producer is a minimal abstraction over a Kafka client. We intentionally
// avoid importing a specific Kafka client library per the ingestion
// façade's transport-agnostic Non-goal; callers wire a concrete producer
// (e.g. a Sarama-backed one) at the edges.
//
// Requirements for a conforming implementation:
//   - idempotent producer enabled (enable.idempotence=true)
//   - use Entry.EventID as the message key so broker dedup and per-key
//     ordering are both preserved
//   - acks=all
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaForwarder publishes each entry as a Kafka message keyed by event ID.
// It does not apply any state itself; materialization is the consumer's
// responsibility, which must track the last-applied event ID per tenant
// and ignore duplicates.
type KafkaForwarder struct {
	producer       Producer
	topic          string
	defaultTimeout time.Duration
}

// NewKafkaForwarder constructs a KafkaForwarder publishing to topic.
func NewKafkaForwarder(p Producer, topic string) *KafkaForwarder {
	return &KafkaForwarder{producer: p, topic: topic, defaultTimeout: 10 * time.Second}
}

// ForwardBatch publishes every entry, stopping at the first error.
func (k *KafkaForwarder) ForwardBatch(ctx context.Context, batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && k.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.defaultTimeout)
		defer cancel()
	}

	for _, e := range batch {
		if e.EventID == "" {
			return errors.New("forward: Entry.EventID must be set")
		}
		headers := map[string]string{"tenant_id": e.TenantID, "content-type": "application/octet-stream"}
		if err := k.producer.Produce(ctx, k.topic, []byte(e.EventID), e.Payload, headers); err != nil {
			return fmt.Errorf("kafka produce event=%s: %w", e.EventID, err)
		}
	}
	return nil
}
