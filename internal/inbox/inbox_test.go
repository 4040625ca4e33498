package inbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/zeusbus/zeus/internal/envelope"
	"github.com/zeusbus/zeus/internal/vfs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	fs, err := vfs.New(t.TempDir(), false)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}
	return New(fs)
}

func testEnvelope(now time.Time) *envelope.Envelope {
	return envelope.New(envelope.NewParams{
		SourceName:    "hippeus-1",
		SourceAgentID: "hippeus-1",
		TargetKind:    envelope.TargetAgent,
		TargetRef:     "hoplite-1",
		Message:       "hello there",
		Now:           now,
	}, func() string { return "env-1" })
}

func TestDeliverWritesUnderSanitizedRecipient(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(1700000000, 0)
	e := testEnvelope(now)

	if err := s.Deliver("hoplite-1", e, now); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	names, err := s.ListPending("hoplite-1")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(names))
	}
}

func TestDeliverRejectsEmptyRecipient(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(1700000000, 0)
	e := testEnvelope(now)

	if err := s.Deliver("   ", e, now); err == nil {
		t.Fatalf("expected error for blank recipient id")
	}
}

func TestDeliverSanitizesTraversalAttemptInRecipient(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(1700000000, 0)
	e := testEnvelope(now)

	if err := s.Deliver("../../etc", e, now); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	names, err := s.ListPending("etc")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected sanitized recipient id to collapse to 'etc', got %d entries", len(names))
	}
}

func TestDeliveredMessageRoundTripsSourceFields(t *testing.T) {
	s := newTestStore(t)
	now := time.Unix(1700000000, 0)
	e := testEnvelope(now)
	e.SourceRole = "hippeus"

	if err := s.Deliver("hoplite-1", e, now); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	fs, err := vfs.New(s.fs.Root(), false)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}
	entries, err := fs.ReadDir("bus", "inbox", "hoplite-1", "new")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}

	raw, err := fs.ReadFile("bus", "inbox", "hoplite-1", "new", entries[0].Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.SourceRole != "hippeus" || msg.ID != e.ID || msg.Message != e.Message {
		t.Errorf("message fields did not round trip: %+v", msg)
	}
}
