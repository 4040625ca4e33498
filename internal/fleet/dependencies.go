package fleet

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zeusbus/zeus/internal/vfs"
)

// ErrWouldCreateCycle is returned by SetBlocked when adding the requested
// edge would make the blocking-dependency graph cyclic. The Python
// reference (original_source/zeus/dependencies.py) has no such guard and
// would happily persist a cycle that then wedges every member forever; this
// is a deliberate behavior change (see DESIGN.md open question / redesign
// notes).
var ErrWouldCreateCycle = errors.New("fleet: dependency would create a cycle")

const dependenciesFile = "dependencies.json"

// Dependencies is the persistent {blocked_agent_id: blocker_agent_id}
// overlay (spec §4.4, "Blocking dependency"), grounded on
// original_source/zeus/dependencies.py's load/save pair.
type Dependencies struct {
	fs *vfs.VFS

	mu    sync.Mutex
	edges map[string]string // blocked -> blocker
}

// LoadDependencies reads the persisted dependency map, tolerating a missing
// or corrupt file by starting empty.
func LoadDependencies(fs *vfs.VFS) *Dependencies {
	d := &Dependencies{fs: fs, edges: map[string]string{}}

	raw, err := fs.ReadFile(dependenciesFile)
	if err != nil {
		return d
	}
	var decoded map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return d
	}
	for blocked, blocker := range decoded {
		b := strings.TrimSpace(blocked)
		r := strings.TrimSpace(blocker)
		if b == "" || r == "" || b == r {
			continue
		}
		d.edges[b] = r
	}
	return d
}

// BlockerOf returns the agent id currently blocking blockedID, if any.
func (d *Dependencies) BlockerOf(blockedID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	blocker, ok := d.edges[blockedID]
	return blocker, ok
}

// SetBlocked records that blockedID is blocked by blockerID. It refuses an
// edge that would close a cycle in the dependency graph, walking from
// blockerID back through existing edges (a DFS over a fan-in-one graph,
// which degenerates to following the chain of blockers).
func (d *Dependencies) SetBlocked(blockedID, blockerID string) error {
	blocked := strings.TrimSpace(blockedID)
	blocker := strings.TrimSpace(blockerID)
	if blocked == "" || blocker == "" || blocked == blocker {
		return fmt.Errorf("fleet: set blocked: invalid edge (%q blocked by %q)", blocked, blocker)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reachesLocked(blocker, blocked) {
		return fmt.Errorf("fleet: %s already (transitively) blocked by %s: %w", blocker, blocked, ErrWouldCreateCycle)
	}

	d.edges[blocked] = blocker
	return nil
}

// reachesLocked reports whether following blocker-chain edges from start
// ever reaches target. Since each node has at most one outgoing edge (one
// blocker), this is a simple chain walk rather than a general graph DFS;
// it follows only that single edge per node.
func (d *Dependencies) reachesLocked(start, target string) bool {
	seen := map[string]bool{}
	cur := start
	for {
		if cur == target {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		next, ok := d.edges[cur]
		if !ok {
			return false
		}
		cur = next
	}
}

// Clear removes the dependency blocking blockedID, if any, and reports
// whether an edge was actually removed.
func (d *Dependencies) Clear(blockedID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.edges[blockedID]; !ok {
		return false
	}
	delete(d.edges, blockedID)
	return true
}

// ReleaseByBlocker clears every dependency currently blocked by blockerID.
// This is the enqueue-time effect spec §4.4 names ("a message from the
// blocker releases the block"), applied by internal/producer after a
// successful enqueue.
func (d *Dependencies) ReleaseByBlocker(blockerID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var released []string
	for blocked, blocker := range d.edges {
		if blocker == blockerID {
			released = append(released, blocked)
		}
	}
	for _, blocked := range released {
		delete(d.edges, blocked)
	}
	return released
}

// Save persists the dependency map with an atomic write.
func (d *Dependencies) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := json.Marshal(d.edges)
	if err != nil {
		return fmt.Errorf("fleet: marshal dependencies: %w", err)
	}
	if err := d.fs.AtomicWrite(raw, dependenciesFile); err != nil {
		return fmt.Errorf("fleet: save dependencies: %w", err)
	}
	return nil
}
