package fleet

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/zeusbus/zeus/internal/vfs"
)

const prioritiesFile = "priorities.json"

// DefaultPriority is the priority a recipient reverts to once a message is
// delivered past their pause (spec §4.4, "Paused priority").
const DefaultPriority = 1

// PausedThreshold is the priority at and above which a recipient is
// considered paused (spec §3: "priority ≥ 4 ⇒ paused").
const PausedThreshold = 4

// Priorities is the persistent {name: priority} overlay.
type Priorities struct {
	fs *vfs.VFS

	mu     sync.Mutex
	values map[string]int
}

// LoadPriorities reads the persisted priority map, tolerating a missing or
// corrupt file by starting empty (every name then defaults to
// DefaultPriority).
func LoadPriorities(fs *vfs.VFS) *Priorities {
	p := &Priorities{fs: fs, values: map[string]int{}}

	raw, err := fs.ReadFile(prioritiesFile)
	if err != nil {
		return p
	}
	var decoded map[string]int
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return p
	}
	for name, value := range decoded {
		clean := strings.TrimSpace(name)
		if clean == "" {
			continue
		}
		p.values[clean] = value
	}
	return p
}

// Get returns name's current priority, defaulting to DefaultPriority when
// unset.
func (p *Priorities) Get(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.values[name]; ok {
		return v
	}
	return DefaultPriority
}

// IsPaused reports whether name's priority is at or above PausedThreshold.
func (p *Priorities) IsPaused(name string) bool {
	return p.Get(name) >= PausedThreshold
}

// ResetIfPaused restores name to DefaultPriority if it was paused,
// reporting whether a change was made. This is the delivery-side effect
// spec §4.4 names.
func (p *Priorities) ResetIfPaused(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.values[name]; !ok || v < PausedThreshold {
		return false
	}
	p.values[name] = DefaultPriority
	return true
}

// Set assigns name's priority explicitly (operator-driven pause/resume).
func (p *Priorities) Set(name string, priority int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = priority
}

// Save persists the priority map with an atomic write.
func (p *Priorities) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, err := json.Marshal(p.values)
	if err != nil {
		return fmt.Errorf("fleet: marshal priorities: %w", err)
	}
	if err := p.fs.AtomicWrite(raw, prioritiesFile); err != nil {
		return fmt.Errorf("fleet: save priorities: %w", err)
	}
	return nil
}
