package notify

import "testing"

type recordingSink struct {
	calls []string
}

func (s *recordingSink) Notify(envelopeID, reason string) {
	s.calls = append(s.calls, envelopeID+"|"+reason)
}

func TestNoticeEmitsOncePerDistinctReason(t *testing.T) {
	sink := &recordingSink{}
	l := NewLedger(sink)

	if !l.Notice("env-1", "missing @zeus_agent id") {
		t.Fatalf("expected first Notice to emit")
	}
	if l.Notice("env-1", "missing @zeus_agent id") {
		t.Fatalf("expected repeated identical reason to be suppressed")
	}
	if len(sink.calls) != 1 {
		t.Fatalf("expected exactly 1 delivered notice, got %d", len(sink.calls))
	}
}

func TestNoticeEmitsAgainWhenReasonChanges(t *testing.T) {
	sink := &recordingSink{}
	l := NewLedger(sink)

	l.Notice("env-1", "reason A")
	if !l.Notice("env-1", "reason B") {
		t.Fatalf("expected a changed reason to emit again")
	}
	if len(sink.calls) != 2 {
		t.Fatalf("expected 2 delivered notices, got %d", len(sink.calls))
	}
}

func TestClearResetsLastReason(t *testing.T) {
	sink := &recordingSink{}
	l := NewLedger(sink)

	l.Notice("env-1", "reason A")
	l.Clear("env-1")
	if !l.Notice("env-1", "reason A") {
		t.Fatalf("expected Notice to emit again after Clear")
	}
}

func TestDistinctEnvelopesTrackedIndependently(t *testing.T) {
	sink := &recordingSink{}
	l := NewLedger(sink)

	if !l.Notice("env-1", "reason A") {
		t.Fatalf("expected emit for env-1")
	}
	if !l.Notice("env-2", "reason A") {
		t.Fatalf("expected emit for env-2 despite same reason text")
	}
}
