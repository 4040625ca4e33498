package receipts

import (
	"testing"
	"time"

	"github.com/zeusbus/zeus/internal/vfs"
)

func newTestFS(t *testing.T) *vfs.VFS {
	t.Helper()
	fs, err := vfs.New(t.TempDir(), false)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}
	return fs
}

func TestHasFalseWhenReceiptMissing(t *testing.T) {
	fs := newTestFS(t)
	s := New(fs)
	if s.Has("hoplite-1", "env-1") {
		t.Fatalf("expected Has to be false when no receipt file exists")
	}
}

func TestHasTrueForAcceptedReceipt(t *testing.T) {
	fs := newTestFS(t)
	s := New(fs)
	if err := fs.AtomicWrite([]byte(`{"id":"env-1","status":"accepted"}`), "bus", "receipts", "hoplite-1", "env-1.json"); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	if !s.Has("hoplite-1", "env-1") {
		t.Fatalf("expected Has to be true for accepted receipt")
	}
}

func TestHasFalseForRejectedReceipt(t *testing.T) {
	fs := newTestFS(t)
	s := New(fs)
	if err := fs.AtomicWrite([]byte(`{"id":"env-1","status":"rejected"}`), "bus", "receipts", "hoplite-1", "env-1.json"); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	if s.Has("hoplite-1", "env-1") {
		t.Fatalf("expected Has to be false for a non-accepted status")
	}
}

func TestGateMissingHeartbeatIsUnhealthy(t *testing.T) {
	fs := newTestFS(t)
	g := NewGate(fs)
	healthy, reason := g.Health("hoplite-1", time.Minute, time.Unix(1700000000, 0))
	if healthy {
		t.Fatalf("expected unhealthy with no heartbeat file")
	}
	if reason == "" {
		t.Errorf("expected a reason string")
	}
}

func TestGateFreshNumericHeartbeatIsHealthy(t *testing.T) {
	fs := newTestFS(t)
	g := NewGate(fs)
	now := time.Unix(1700000000, 0)
	if err := fs.AtomicWrite([]byte(`{"updated_at":1700000000}`), "bus", "caps", "hoplite-1.json"); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	healthy, reason := g.Health("hoplite-1", time.Minute, now.Add(10*time.Second))
	if !healthy {
		t.Fatalf("expected healthy, got reason %q", reason)
	}
}

func TestGateStaleHeartbeatIsUnhealthy(t *testing.T) {
	fs := newTestFS(t)
	g := NewGate(fs)
	if err := fs.AtomicWrite([]byte(`{"updated_at":1700000000}`), "bus", "caps", "hoplite-1.json"); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	healthy, reason := g.Health("hoplite-1", time.Minute, time.Unix(1700000200, 0))
	if healthy {
		t.Fatalf("expected unhealthy for stale heartbeat")
	}
	if reason == "" {
		t.Errorf("expected a reason string")
	}
}

func TestGateISOTimestampHeartbeatIsHealthy(t *testing.T) {
	fs := newTestFS(t)
	g := NewGate(fs)
	if err := fs.AtomicWrite([]byte(`{"updated_at":"2023-11-14T22:13:20Z"}`), "bus", "caps", "hoplite-1.json"); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	// 2023-11-14T22:13:20Z == unix 1700000000.
	healthy, reason := g.Health("hoplite-1", time.Minute, time.Unix(1700000010, 0))
	if !healthy {
		t.Fatalf("expected healthy for ISO timestamp, got reason %q", reason)
	}
}

func TestGateQueueBusOptOutIsUnhealthy(t *testing.T) {
	fs := newTestFS(t)
	g := NewGate(fs)
	if err := fs.AtomicWrite([]byte(`{"updated_at":1700000000,"supports":{"queue_bus":false}}`), "bus", "caps", "hoplite-1.json"); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	healthy, reason := g.Health("hoplite-1", time.Minute, time.Unix(1700000000, 0))
	if healthy {
		t.Fatalf("expected unhealthy when queue_bus support is disabled")
	}
	if reason == "" {
		t.Errorf("expected a reason string")
	}
}

func TestProcessedLedgerPathSanitizesRecipient(t *testing.T) {
	got := ProcessedLedgerPath("../../etc")
	want := "bus/processed/etc.json"
	if got != want {
		t.Errorf("ProcessedLedgerPath = %q, want %q", got, want)
	}
}
