package producer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zeusbus/zeus/internal/envelope"
	"github.com/zeusbus/zeus/internal/fleet"
	"github.com/zeusbus/zeus/internal/queue"
	"github.com/zeusbus/zeus/internal/vfs"
)

func TestResolveSymbolicTargetPolemarch(t *testing.T) {
	kind, ref, owner, err := ResolveSymbolicTarget("polemarch", fleet.Identity{AgentID: "h1", ParentID: "p1"})
	if err != nil {
		t.Fatalf("ResolveSymbolicTarget: %v", err)
	}
	if kind != envelope.TargetAgent || ref != "p1" || owner != "" {
		t.Errorf("got (%v,%v,%v)", kind, ref, owner)
	}
}

func TestResolveSymbolicTargetPolemarchMissingParent(t *testing.T) {
	_, _, _, err := ResolveSymbolicTarget("polemarch", fleet.Identity{AgentID: "h1"})
	if !errors.Is(err, ErrMissingSenderID) {
		t.Fatalf("expected ErrMissingSenderID, got %v", err)
	}
}

func TestResolveSymbolicTargetPhalanx(t *testing.T) {
	kind, ref, owner, err := ResolveSymbolicTarget("phalanx", fleet.Identity{AgentID: "h1", ParentID: "p1"})
	if err != nil {
		t.Fatalf("ResolveSymbolicTarget: %v", err)
	}
	if kind != envelope.TargetPhalanx || ref != "phalanx-p1" || owner != "p1" {
		t.Errorf("got (%v,%v,%v)", kind, ref, owner)
	}
}

func TestResolveSymbolicTargetHopliteAndAgentPrefixes(t *testing.T) {
	kind, ref, _, err := ResolveSymbolicTarget("hoplite:h9", fleet.Identity{AgentID: "p1"})
	if err != nil || kind != envelope.TargetHoplite || ref != "h9" {
		t.Fatalf("got (%v,%v,%v)", kind, ref, err)
	}

	kind, ref, _, err = ResolveSymbolicTarget("agent:h9", fleet.Identity{})
	if err != nil || kind != envelope.TargetAgent || ref != "h9" {
		t.Fatalf("got (%v,%v,%v)", kind, ref, err)
	}
}

func TestResolveSymbolicTargetPlainIDFallback(t *testing.T) {
	kind, ref, owner, err := ResolveSymbolicTarget("some-display-name", fleet.Identity{})
	if err != nil {
		t.Fatalf("ResolveSymbolicTarget: %v", err)
	}
	if kind != envelope.TargetAgent || ref != "some-display-name" || owner != "" {
		t.Errorf("got (%v,%v,%v)", kind, ref, owner)
	}
}

func TestResolveSymbolicTargetRejectsEmpty(t *testing.T) {
	_, _, _, err := ResolveSymbolicTarget("   ", fleet.Identity{})
	if !errors.Is(err, ErrUnresolvableTarget) {
		t.Fatalf("expected ErrUnresolvableTarget, got %v", err)
	}
}

func TestReadPayloadFileRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	tmpRoot, err := vfs.New(root, false)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}

	outside := filepath.Join(filepath.Dir(root), "outside.txt")
	if err := os.WriteFile(outside, []byte("nope"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	defer os.Remove(outside)

	if _, err := ReadPayloadFile(tmpRoot, outside); !errors.Is(err, ErrPathEscapesRoot) {
		t.Fatalf("expected ErrPathEscapesRoot, got %v", err)
	}
}

func TestReadPayloadFileReadsConfinedFile(t *testing.T) {
	root := t.TempDir()
	tmpRoot, err := vfs.New(root, false)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}

	path := filepath.Join(root, "payload.txt")
	if err := os.WriteFile(path, []byte("hello there"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadPayloadFile(tmpRoot, path)
	if err != nil {
		t.Fatalf("ReadPayloadFile: %v", err)
	}
	if got != "hello there" {
		t.Errorf("got %q", got)
	}
}

func TestEnqueueOutboundPersistsEnvelope(t *testing.T) {
	fs, err := vfs.New(t.TempDir(), false)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}
	store, err := queue.New(fs)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	p := New(store, nil)

	id, err := p.EnqueueOutbound(EnqueueParams{
		Sender:        fleet.Identity{AgentID: "hippeus-1", Name: "hippeus-1"},
		TargetKind:    envelope.TargetAgent,
		TargetRef:     "hoplite-1",
		TargetAgentID: "hoplite-1",
		Message:       "hello",
	}, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("EnqueueOutbound: %v", err)
	}
	if id == "" {
		t.Fatalf("expected non-empty envelope id")
	}

	paths, err := store.ListNew()
	if err != nil {
		t.Fatalf("ListNew: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected 1 enqueued envelope, got %d", len(paths))
	}
}

func TestEnqueueOutboundRejectsEmptyMessage(t *testing.T) {
	fs, err := vfs.New(t.TempDir(), false)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}
	store, err := queue.New(fs)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	p := New(store, nil)

	_, err = p.EnqueueOutbound(EnqueueParams{
		Sender:     fleet.Identity{AgentID: "hippeus-1"},
		TargetKind: envelope.TargetAgent,
		TargetRef:  "hoplite-1",
		Message:    "   ",
	}, time.Unix(1700000000, 0))
	if err == nil {
		t.Fatalf("expected error for blank message")
	}
}
