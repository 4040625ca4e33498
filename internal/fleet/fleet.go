// Package fleet defines the Fleet View (spec component H) consumed by the
// Target Resolver and Capability Gate, plus the three overlay maps (spec
// component K): blocking dependencies, pause priorities, and promoted
// sub-agents.
//
// Grounded on original_source/zeus/models.py (agent identity fields) and
// the collaborator contract in spec.md §4.7: the bus core consumes only a
// handful of properties per agent and treats the rest of the original
// dashboard's TmuxSession/AgentWindow/metrics types as out of scope.
//
// Called by: internal/resolver, internal/dispatcher.
package fleet

// Role is one of the three identities a fleet agent can hold.
type Role string

const (
	RoleHippeus   Role = "hippeus"
	RolePolemarch Role = "polemarch"
	RoleHoplite   Role = "hoplite"
)

// Identity is the sender-side view of one agent: who they are and where
// they sit in the fleet (spec §4.4's "the hoplite's parent id", "its own
// phalanx").
type Identity struct {
	AgentID   string
	Name      string
	Role      Role
	ParentID  string
	PhalanxID string
}

// Agent is one entry of a FleetSnapshot (spec §3). Authoritative
// distinguishes a tmux session whose id came from a `@zeus_agent` option or
// pane start-command (trusted for routing) from one known only via
// environment variables (untrusted -- spec §4.4 rule 5).
type Agent struct {
	AgentID       string `json:"agent_id"`
	Name          string `json:"name"`
	Role          Role   `json:"role"`
	ParentID      string `json:"parent_id"`
	PhalanxID     string `json:"phalanx_id"`
	Available     bool   `json:"available"`
	Authoritative bool   `json:"authoritative"`
}

// Snapshot is the read-only fleet view the resolver and capability gate
// consume each tick (spec §3, FleetSnapshot).
type Snapshot struct {
	Agents []Agent `json:"agents"`
}

// ByAgentID returns the agent with the given id, if present.
func (s *Snapshot) ByAgentID(agentID string) (Agent, bool) {
	for _, a := range s.Agents {
		if a.AgentID == agentID {
			return a, true
		}
	}
	return Agent{}, false
}

// ByName returns every agent whose display name matches (case-sensitive,
// exact). The resolver treats more than one match as an ambiguity error
// rather than silently picking one (spec §4.4 rule 4).
func (s *Snapshot) ByName(name string) []Agent {
	var out []Agent
	for _, a := range s.Agents {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

// HoplitesOf returns every authoritative hoplite whose ParentID is
// polemarchID (spec §4.4 rule 2/5: phalanx expansion excludes env-only
// identities).
func (s *Snapshot) HoplitesOf(polemarchID string) []Agent {
	var out []Agent
	for _, a := range s.Agents {
		if a.Role == RoleHoplite && a.ParentID == polemarchID && a.Authoritative {
			out = append(out, a)
		}
	}
	return out
}

// Provider supplies the live fleet view to the dispatcher. Implementations
// are expected to poll an external discovery layer (spec §4.7,
// "Collaborator contract"); Zeus itself performs no agent discovery.
type Provider interface {
	Snapshot() (*Snapshot, error)
}

// StaticProvider is a Provider backed by a fixed, caller-supplied snapshot.
// Used by tests and by any deployment wiring fleet data in from an external
// source rather than polling one live.
type StaticProvider struct {
	snap *Snapshot
}

// NewStaticProvider returns a Provider that always reports snap.
func NewStaticProvider(snap *Snapshot) *StaticProvider {
	return &StaticProvider{snap: snap}
}

// Snapshot implements Provider.
func (p *StaticProvider) Snapshot() (*Snapshot, error) {
	return p.snap, nil
}

// Set replaces the snapshot the provider reports, letting tests simulate a
// fleet change between dispatcher ticks.
func (p *StaticProvider) Set(snap *Snapshot) {
	p.snap = snap
}
