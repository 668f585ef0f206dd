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

// Package forward delivers admitted batches of audit events to a
// downstream router. Every adapter accepts an idempotency key per event
// (the event's own ID) and must treat a redelivery of the same ID as a
// no-op.
package forward

import "context"

// Forwarder is the interface every downstream adapter (Kafka, Redis,
// Postgres) satisfies. Implementations must be safe to retry: forwarding
// the same event ID twice must not duplicate its effect downstream.
type Forwarder interface {
	ForwardBatch(ctx context.Context, batch []Entry) error
}

// Entry is the adapter-facing shape of one audit event to forward.
type Entry struct {
	EventID  string
	TenantID string
	Payload  []byte // the event, already serialized by the caller
}
