package digest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	auditcrypto "github.com/rubentxu/hodei-audit-trail/internal/audit/crypto"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/keymanager"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/keystore"
)

func TestRunOnceNoFiles(t *testing.T) {
	w := NewWorker(auditcrypto.NewHasher(), nil, NewChain(), WorkerConfig{
		LogsDir:  t.TempDir(),
		Window:   time.Hour,
		Interval: time.Minute,
		Timeout:  time.Second,
	})

	result, err := w.RunOnce(context.Background(), "tenant1")
	if err != nil {
		t.Fatal(err)
	}
	if result.DigestID != noFilesDigestID || result.FilesProcessed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunOnceHashesAndChainsAndSigns(t *testing.T) {
	logsDir := t.TempDir()
	tenantDir := filepath.Join(logsDir, "tenant1")
	if err := os.MkdirAll(tenantDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tenantDir, "seg-1.log"), []byte("entries"), 0o600); err != nil {
		t.Fatal(err)
	}

	keyStore := keystore.NewFileStore(t.TempDir())
	keyMgr := keymanager.New(auditcrypto.NewSigner(), keyStore, nil)
	if _, err := keyMgr.GenerateKey(context.Background(), "tenant1"); err != nil {
		t.Fatal(err)
	}

	chain := NewChain()
	w := NewWorker(auditcrypto.NewHasher(), keyMgr, chain, WorkerConfig{
		LogsDir:  logsDir,
		Window:   24 * time.Hour,
		Interval: time.Minute,
		Timeout:  5 * time.Second,
	})

	result, err := w.RunOnce(context.Background(), "tenant1")
	if err != nil {
		t.Fatal(err)
	}
	if result.FilesProcessed != 1 {
		t.Fatalf("files processed = %d", result.FilesProcessed)
	}

	latest, ok := chain.LatestDigest("tenant1")
	if !ok {
		t.Fatal("expected a digest to be chained")
	}
	if latest.ID != result.DigestID {
		t.Fatalf("digest id mismatch: %q != %q", latest.ID, result.DigestID)
	}
	if len(latest.Signature) == 0 {
		t.Fatal("expected the digest to be signed since a key manager was configured")
	}
}

func TestStartStop(t *testing.T) {
	w := NewWorker(auditcrypto.NewHasher(), nil, NewChain(), WorkerConfig{
		LogsDir:  t.TempDir(),
		Window:   time.Hour,
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
	})
	w.Start("tenant1")
	time.Sleep(30 * time.Millisecond)
	w.Stop()
	w.Stop() // idempotent
}
