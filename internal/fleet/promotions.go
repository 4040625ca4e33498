package fleet

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zeusbus/zeus/internal/vfs"
)

const promotedFile = "promoted.json"

// Promotions is the persistent set of promoted sub-agent ids. A promoted
// agent is treated as a phalanx root and no longer inherits its former
// parent's phalanx for expansion purposes (spec §4.4, "Promoted
// sub-agents"), grounded on original_source/zeus/promotions.py.
type Promotions struct {
	fs *vfs.VFS

	mu  sync.Mutex
	set map[string]struct{}
}

// LoadPromotions reads the persisted promotion set, tolerating a missing or
// corrupt file by starting empty.
func LoadPromotions(fs *vfs.VFS) *Promotions {
	p := &Promotions{fs: fs, set: map[string]struct{}{}}

	raw, err := fs.ReadFile(promotedFile)
	if err != nil {
		return p
	}
	var decoded []string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return p
	}
	for _, id := range decoded {
		clean := strings.TrimSpace(id)
		if clean != "" {
			p.set[clean] = struct{}{}
		}
	}
	return p
}

// IsPromoted reports whether agentID is a promoted sub-agent.
func (p *Promotions) IsPromoted(agentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.set[agentID]
	return ok
}

// Promote adds agentID to the promoted set.
func (p *Promotions) Promote(agentID string) {
	clean := strings.TrimSpace(agentID)
	if clean == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set[clean] = struct{}{}
}

// Demote removes agentID from the promoted set.
func (p *Promotions) Demote(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.set, agentID)
}

// Save persists the promoted set with an atomic write, in sorted order so
// the on-disk file is stable across runs.
func (p *Promotions) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.set))
	for id := range p.set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("fleet: marshal promotions: %w", err)
	}
	if err := p.fs.AtomicWrite(raw, promotedFile); err != nil {
		return fmt.Errorf("fleet: save promotions: %w", err)
	}
	return nil
}
