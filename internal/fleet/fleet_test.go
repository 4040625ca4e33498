package fleet

import "testing"

func snapshotFixture() *Snapshot {
	return &Snapshot{
		Agents: []Agent{
			{AgentID: "p1", Name: "polemarch-1", Role: RolePolemarch},
			{AgentID: "h1", Name: "hoplite-1", Role: RoleHoplite, ParentID: "p1", PhalanxID: "phalanx-p1", Authoritative: true},
			{AgentID: "h2", Name: "hoplite-2", Role: RoleHoplite, ParentID: "p1", PhalanxID: "phalanx-p1", Authoritative: false},
			{AgentID: "h3", Name: "duplicate", Role: RoleHoplite, ParentID: "p1", PhalanxID: "phalanx-p1", Authoritative: true},
			{AgentID: "h4", Name: "duplicate", Role: RoleHoplite, ParentID: "p1", PhalanxID: "phalanx-p1", Authoritative: true},
		},
	}
}

func TestHoplitesOfExcludesNonAuthoritative(t *testing.T) {
	snap := snapshotFixture()
	hoplites := snap.HoplitesOf("p1")
	if len(hoplites) != 3 {
		t.Fatalf("expected 3 authoritative hoplites, got %d", len(hoplites))
	}
	for _, h := range hoplites {
		if h.AgentID == "h2" {
			t.Errorf("non-authoritative hoplite h2 should have been excluded")
		}
	}
}

func TestByNameReportsAmbiguity(t *testing.T) {
	snap := snapshotFixture()
	matches := snap.ByName("duplicate")
	if len(matches) != 2 {
		t.Fatalf("expected 2 ambiguous matches, got %d", len(matches))
	}
	if len(snap.ByName("hoplite-1")) != 1 {
		t.Errorf("expected exactly 1 match for a unique name")
	}
}

func TestStaticProviderSetUpdatesSnapshot(t *testing.T) {
	first := &Snapshot{Agents: []Agent{{AgentID: "a"}}}
	p := NewStaticProvider(first)
	snap, err := p.Snapshot()
	if err != nil || len(snap.Agents) != 1 {
		t.Fatalf("unexpected initial snapshot: %v %v", snap, err)
	}

	second := &Snapshot{Agents: []Agent{{AgentID: "a"}, {AgentID: "b"}}}
	p.Set(second)
	snap, _ = p.Snapshot()
	if len(snap.Agents) != 2 {
		t.Fatalf("expected snapshot update to take effect, got %d agents", len(snap.Agents))
	}
}
