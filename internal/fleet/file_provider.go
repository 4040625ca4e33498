package fleet

import (
	"encoding/json"
	"fmt"
	"os"
)

// FileProvider is a Provider reading the fleet view from a JSON fixture file
// on every call, rather than an in-memory struct the caller mutates between
// calls. This is the fallback for an operator who hasn't wired a real
// discovery layer yet (spec §4.7: "supplied by external discovery") but
// still wants zeusd to poll *something* other than an empty fleet --
// typically a file another process (or a cron job, or a manual edit)
// refreshes in place. Since the bus core does no discovery of its own
// (spec's own Non-goals), this is a fixture loader, not a collaborator
// implementation.
type FileProvider struct {
	path string
}

// NewFileProvider returns a Provider re-reading path on every Snapshot call.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Snapshot implements Provider. A missing file reports an empty fleet
// rather than an error -- an operator bringing zeusd up before the
// discovery fixture exists shouldn't crash the daemon, just leave every
// target unresolvable until the file appears.
func (p *FileProvider) Snapshot() (*Snapshot, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{}, nil
		}
		return nil, fmt.Errorf("fleet: read %s: %w", p.path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("fleet: parse %s: %w", p.path, err)
	}
	return &snap, nil
}
