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

// Package digest maintains the per-tenant, append-only chain of log digests
// that makes tampering with archived audit logs detectable.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
)

// FileHash is one (path, hex digest, size) triple contributed to a digest.
type FileHash struct {
	Path string
	Hash string
	Size int64
}

// Chain is an in-memory, per-tenant append-only digest chain. Production
// deployments should back this with a durable store; Chain is the
// development/testing adapter and the shape any durable adapter should
// match.
type Chain struct {
	mu      sync.RWMutex
	digests map[string][]model.Digest // tenantID -> digests in append order
}

// NewChain constructs an empty Chain.
func NewChain() *Chain {
	return &Chain{digests: make(map[string][]model.Digest)}
}

// Append computes the SHA-256 of previousDigestID followed by the
// sorted-by-path concatenation of the file hashes, and appends a new Digest
// carrying that hex hash to tenantID's chain. previousDigestID must name the chain's current
// tip, or be empty if this is the chain's first entry; Append rejects a
// mismatched tip with a Validation error so a digest worker racing against
// a concurrent append fails loudly instead of forking the chain.
func (c *Chain) Append(tenantID string, start, end time.Time, files []FileHash, previousDigestID string) (model.Digest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chain := c.digests[tenantID]
	tipID := ""
	if len(chain) > 0 {
		tipID = chain[len(chain)-1].ID
	}
	if tipID != previousDigestID {
		return model.Digest{}, auditerr.New(auditerr.Validation,
			fmt.Sprintf("chain tip is %q, not %q", tipID, previousDigestID))
	}

	sorted := make([]FileHash, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	h.Write([]byte(previousDigestID))
	var totalBytes int64
	for _, f := range sorted {
		h.Write([]byte(f.Hash))
		totalBytes += f.Size
	}

	d := model.Digest{
		ID:               fmt.Sprintf("digest-%s-%d", tenantID, end.UnixNano()),
		TenantID:         tenantID,
		Hash:             hex.EncodeToString(h.Sum(nil)),
		Timestamp:        end,
		PreviousDigestID: previousDigestID,
		TotalFiles:       len(files),
		TotalBytes:       totalBytes,
	}
	c.digests[tenantID] = append(chain, d)
	return d, nil
}

// AttachSignature stores sig against digestID, mutating the already
// appended entry in place. Callers use this once the digest worker has
// obtained a signature from the key manager, since signing happens after
// the chain has already committed the entry's hash.
func (c *Chain) AttachSignature(tenantID, digestID string, sig []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	chain := c.digests[tenantID]
	for i := range chain {
		if chain[i].ID == digestID {
			chain[i].Signature = sig
			return nil
		}
	}
	return auditerr.New(auditerr.NotFound, "digest not found: "+digestID)
}

// LatestDigest returns the most recently appended digest for tenantID, or
// ok=false if the chain is empty.
func (c *Chain) LatestDigest(tenantID string) (model.Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	chain := c.digests[tenantID]
	if len(chain) == 0 {
		return model.Digest{}, false
	}
	return chain[len(chain)-1], true
}

// Length returns the number of digests appended so far for tenantID.
func (c *Chain) Length(tenantID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.digests[tenantID])
}

// ListDigests returns tenantID's digests with Timestamp within [start, end].
// A zero start or end means unbounded on that side.
func (c *Chain) ListDigests(tenantID string, start, end time.Time) []model.Digest {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.Digest
	for _, d := range c.digests[tenantID] {
		if !start.IsZero() && d.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && d.Timestamp.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// VerifyDigest reports whether digestID exists in any tenant's chain.
func (c *Chain) VerifyDigest(digestID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, chain := range c.digests {
		for _, d := range chain {
			if d.ID == digestID {
				return true
			}
		}
	}
	return false
}

// VerifyChain reports whether tenantID's chain is continuous: the first
// entry has an empty PreviousDigestID and every subsequent entry's
// PreviousDigestID names its immediate predecessor.
func (c *Chain) VerifyChain(tenantID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	chain := c.digests[tenantID]
	for i, d := range chain {
		if i == 0 {
			if d.PreviousDigestID != "" {
				return false
			}
			continue
		}
		if d.PreviousDigestID != chain[i-1].ID {
			return false
		}
	}
	return true
}
