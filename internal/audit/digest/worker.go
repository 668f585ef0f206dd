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

package digest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
	auditcrypto "github.com/rubentxu/hodei-audit-trail/internal/audit/crypto"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/keymanager"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/telemetry"
)

// WorkerConfig configures one tenant's periodic digest cycle.
type WorkerConfig struct {
	// LogsDir is the base directory holding per-tenant log segment files.
	LogsDir string
	// Window is the span of log history each cycle covers.
	Window time.Duration
	// Interval is how often the worker runs a cycle.
	Interval time.Duration
	// Timeout bounds a single cycle; a cycle that exceeds it is abandoned
	// without partially committing to the chain.
	Timeout time.Duration
}

// Result reports the outcome of one digest cycle.
type Result struct {
	DigestID       string
	FilesProcessed int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// noFilesDigestID marks a cycle that found nothing to hash.
const noFilesDigestID = "no-files"

// Worker periodically scans a tenant's log directory, hashes new segment
// files, extends the tenant's digest chain, and signs the result with the
// tenant's active signing key.
type Worker struct {
	hasher *auditcrypto.Hasher
	keys   *keymanager.Manager
	chain  *Chain
	config WorkerConfig

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// NewWorker constructs a Worker. keys may be nil, in which case digests are
// appended unsigned (Signature stays empty).
func NewWorker(hasher *auditcrypto.Hasher, keys *keymanager.Manager, chain *Chain, config WorkerConfig) *Worker {
	return &Worker{
		hasher:   hasher,
		keys:     keys,
		chain:    chain,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Start launches the background loop that runs a cycle for tenantID on
// every Interval tick.
func (w *Worker) Start(tenantID string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(tenantID)
	}()
}

// Stop signals the loop to exit and waits for it to finish its current
// cycle, if any.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	close(w.stopChan)
	w.wg.Wait()
}

func (w *Worker) loop(tenantID string) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.RunOnce(context.Background(), tenantID); err != nil {
				telemetry.ObserveDigestCycleError()
				fmt.Printf("ERROR: digest cycle failed for tenant %s: %v\n", tenantID, err)
			}
		case <-w.stopChan:
			return
		}
	}
}

// RunOnce executes a single digest cycle for tenantID: find this window's
// log files, hash them, extend the chain, and sign the new digest. A cycle
// that exceeds config.Timeout returns a Cancelled error without touching
// the chain.
func (w *Worker) RunOnce(ctx context.Context, tenantID string) (Result, error) {
	cycleStart := time.Now()

	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	end := cycleStart
	start := end.Add(-w.config.Window)

	paths, err := w.findLogFiles(tenantID, start, end)
	if err != nil {
		return Result{}, fmt.Errorf("find log files: %w", err)
	}

	if len(paths) == 0 {
		return Result{
			DigestID:  noFilesDigestID,
			StartTime: start,
			EndTime:   end,
			Duration:  time.Since(cycleStart),
		}, nil
	}

	if ctx.Err() != nil {
		return Result{}, auditerr.Wrap(auditerr.Cancelled, "digest cycle abandoned", ctx.Err())
	}

	fileHashes, err := w.hashLogFiles(paths)
	if err != nil {
		return Result{}, fmt.Errorf("hash log files: %w", err)
	}

	if ctx.Err() != nil {
		return Result{}, auditerr.Wrap(auditerr.Cancelled, "digest cycle abandoned", ctx.Err())
	}

	prevID := ""
	if latest, ok := w.chain.LatestDigest(tenantID); ok {
		prevID = latest.ID
	}

	d, err := w.chain.Append(tenantID, start, end, fileHashes, prevID)
	if err != nil {
		return Result{}, fmt.Errorf("extend chain: %w", err)
	}
	telemetry.ObserveDigestChainLength(tenantID, w.chain.Length(tenantID))

	if w.keys != nil {
		if sig, signErr := w.signDigest(ctx, tenantID, d.Hash); signErr == nil {
			_ = w.chain.AttachSignature(tenantID, d.ID, sig)
		} else {
			fmt.Printf("WARN: failed to sign digest %s: %v\n", d.ID, signErr)
		}
	}

	return Result{
		DigestID:       d.ID,
		FilesProcessed: len(paths),
		StartTime:      start,
		EndTime:        end,
		Duration:       time.Since(cycleStart),
	}, nil
}

func (w *Worker) signDigest(ctx context.Context, tenantID, hash string) ([]byte, error) {
	key, err := w.keys.GetActiveKey(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	signer := auditcrypto.NewSigner()
	return signer.Sign(key.PrivateKeyOpaque, []byte(hash))
}

// findLogFiles returns every regular file directly under LogsDir/tenantID
// whose modification time falls within [start, end].
func (w *Worker) findLogFiles(tenantID string, start, end time.Time) ([]string, error) {
	tenantDir := filepath.Join(w.config.LogsDir, tenantID)
	entries, err := os.ReadDir(tenantDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		if info.ModTime().Before(start) || info.ModTime().After(end) {
			continue
		}
		paths = append(paths, filepath.Join(tenantDir, e.Name()))
	}
	return paths, nil
}

func (w *Worker) hashLogFiles(paths []string) ([]FileHash, error) {
	results, err := w.hasher.HashFiles(paths)
	if err != nil {
		return nil, err
	}
	out := make([]FileHash, len(results))
	for i, r := range results {
		out[i] = FileHash{Path: r.Path, Hash: r.Hash, Size: r.Size}
	}
	return out, nil
}
