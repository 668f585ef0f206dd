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

// Package model holds the data types shared across audit-core components:
// the event, batch, key, digest and manifest shapes from the data model.
package model

import "time"

// Category distinguishes the CloudTrail-style event classes.
type Category int

const (
	CategoryManagement Category = iota
	CategoryData
	CategoryInsight
)

func (c Category) String() string {
	switch c {
	case CategoryData:
		return "data"
	case CategoryInsight:
		return "insight"
	default:
		return "management"
	}
}

// Event is an immutable audit record. Producers create events; the pipeline
// never mutates one after it is enqueued.
type Event struct {
	ID             string         `json:"id" validate:"required"`
	Name           string         `json:"name" validate:"required"`
	Category       Category       `json:"category"`
	ReadOnly       bool           `json:"read_only"`
	ResourceHRN    string         `json:"resource_hrn"`
	TenantID       string         `json:"tenant_id" validate:"required"`
	UserID         string         `json:"user_id"`
	TraceID        string         `json:"trace_id"`
	ResourcePath   string         `json:"resource_path"`
	HTTPMethod     string         `json:"http_method,omitempty"`
	HTTPStatus     int            `json:"http_status,omitempty"`
	SourceIP       string         `json:"source_ip,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	AdditionalData map[string]any `json:"additional_data,omitempty"`
	EventTime      time.Time      `json:"event_time"`
}

// SigningKey is the persisted shape of a tenant's Ed25519 signing key.
// PrivateKeyOpaque is whatever the key store chose to persist for the
// private half (e.g. encrypted bytes); the core never assumes a format for
// it beyond "what the store gave back on Load".
type SigningKey struct {
	ID               string
	TenantID         string
	PublicKey        []byte
	PrivateKeyOpaque []byte
	CreatedAt        time.Time
	ExpiresAt        time.Time
	IsActive         bool
	Version          int
}

// DefaultKeyLifetime is the default signing key lifetime (90 days).
const DefaultKeyLifetime = 90 * 24 * time.Hour

// Digest is one entry in a tenant's tamper-evident digest chain.
type Digest struct {
	ID               string
	TenantID         string
	Hash             string
	Signature        []byte
	Timestamp        time.Time
	PreviousDigestID string // empty for the first digest in a chain
	TotalFiles       int
	TotalBytes       int64
}

// KeyManifest is the publishable view of a tenant's keys.
type KeyManifest struct {
	Version       string
	IssuedAt      time.Time
	Keys          []SigningKey
	ManifestHash  string
	RootSignature []byte
}
