package fleet

import (
	"testing"

	"github.com/zeusbus/zeus/internal/vfs"
)

func newTestPriorities(t *testing.T) *Priorities {
	t.Helper()
	fs, err := vfs.New(t.TempDir(), false)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}
	return LoadPriorities(fs)
}

func TestGetDefaultsWhenUnset(t *testing.T) {
	p := newTestPriorities(t)
	if got := p.Get("hoplite-1"); got != DefaultPriority {
		t.Errorf("Get = %d, want default %d", got, DefaultPriority)
	}
	if p.IsPaused("hoplite-1") {
		t.Errorf("expected unset priority to not be paused")
	}
}

func TestIsPausedAtThreshold(t *testing.T) {
	p := newTestPriorities(t)
	p.Set("hoplite-1", PausedThreshold)
	if !p.IsPaused("hoplite-1") {
		t.Errorf("expected priority == threshold to be paused")
	}
}

func TestResetIfPausedOnlyActsWhenPaused(t *testing.T) {
	p := newTestPriorities(t)
	p.Set("hoplite-1", 2)
	if p.ResetIfPaused("hoplite-1") {
		t.Errorf("expected no reset for a non-paused priority")
	}

	p.Set("hoplite-2", PausedThreshold+1)
	if !p.ResetIfPaused("hoplite-2") {
		t.Errorf("expected reset for a paused priority")
	}
	if got := p.Get("hoplite-2"); got != DefaultPriority {
		t.Errorf("Get after reset = %d, want %d", got, DefaultPriority)
	}
}

func TestPrioritiesSaveThenLoadRoundTrips(t *testing.T) {
	fs, err := vfs.New(t.TempDir(), false)
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}
	p := LoadPriorities(fs)
	p.Set("hoplite-1", 5)
	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := LoadPriorities(fs)
	if got := reloaded.Get("hoplite-1"); got != 5 {
		t.Errorf("reloaded Get = %d, want 5", got)
	}
}
