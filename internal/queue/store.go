// Package queue implements the Envelope Store (spec §4.1): a durable set
// of outbound envelopes on disk with atomic state transitions
// new -> inflight -> {retry->new, acked->deleted}.
//
// Two directories plus atomic rename give the dispatcher a
// single-producer-single-consumer state machine per envelope with no lock
// file. Multiple dispatcher processes remain safe because rename is
// exclusive: a loser simply finds its source file missing on claim.
//
// Called by: internal/producer (Enqueue), internal/dispatcher (everything
// else).
// Calls: internal/vfs for every filesystem mutation, internal/envelope for
// (de)serialization.
package queue

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zeusbus/zeus/internal/envelope"
	"github.com/zeusbus/zeus/internal/vfs"
)

// ErrClaimLost is returned by Requeue when the inflight file has already
// been moved away (for example by another dispatcher process) before it
// could be renamed back into new/. Claim reports a lost race as
// ("", false, nil) instead.
var ErrClaimLost = errors.New("queue: envelope already claimed")

const (
	newDir      = "new"
	inflightDir = "inflight"
)

// Store is the filesystem-backed Envelope Store.
type Store struct {
	fs *vfs.VFS
}

// New returns a Store whose new/ and inflight/ directories live directly
// under fs's root (the daemon and CLI pass a VFS rooted at
// <state_dir>/queue), creating both directories if needed.
func New(fs *vfs.VFS) (*Store, error) {
	s := &Store{fs: fs}
	if err := s.fs.MkdirAll(newDir); err != nil {
		return nil, fmt.Errorf("queue: create new dir: %w", err)
	}
	if err := s.fs.MkdirAll(inflightDir); err != nil {
		return nil, fmt.Errorf("queue: create inflight dir: %w", err)
	}
	return s, nil
}

func filename(e *envelope.Envelope) string {
	tsMs := int64(e.CreatedAt * 1000)
	return fmt.Sprintf("%013d-%s.json", tsMs, e.ID)
}

// Enqueue writes a new envelope into new/ via create-temp-then-rename and
// returns the recipient-facing relative path ("new/<file>").
func (s *Store) Enqueue(e *envelope.Envelope) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("queue: enqueue: %w", err)
	}

	raw, err := e.ToJSON()
	if err != nil {
		return "", fmt.Errorf("queue: marshal envelope: %w", err)
	}

	name := filename(e)
	if err := s.fs.AtomicWrite(raw, newDir, name); err != nil {
		return "", fmt.Errorf("queue: write envelope: %w", err)
	}
	return filepath.Join(newDir, name), nil
}

// ListNew returns paths of pending envelopes, oldest mtime first, matching
// the claim fairness spec §4.5 requires ("envelopes are processed in mtime
// order").
func (s *Store) ListNew() ([]string, error) {
	return s.listDirByMtime(newDir)
}

// ListInflight returns paths of claimed-but-not-yet-acked envelopes.
func (s *Store) ListInflight() ([]string, error) {
	return s.listDirByMtime(inflightDir)
}

type dirEntry struct {
	rel   string
	mtime time.Time
}

func (s *Store) listDirByMtime(dir string) ([]string, error) {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("queue: list %s: %w", dir, err)
	}

	items := make([]dirEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, dirEntry{
			rel:   filepath.Join(dir, entry.Name()),
			mtime: info.ModTime(),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].mtime.Equal(items[j].mtime) {
			return items[i].rel < items[j].rel
		}
		return items[i].mtime.Before(items[j].mtime)
	})

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.rel
	}
	return out, nil
}

// Claim renames a path out of new/ into inflight/. It returns
// ("", false, nil) if the file was already claimed by a racing claimant --
// this is the expected outcome of concurrent dispatcher processes, not an
// error.
func (s *Store) Claim(newPath string) (string, bool, error) {
	if filepath.Dir(newPath) != newDir {
		return "", false, fmt.Errorf("queue: claim: %q is not in %s/", newPath, newDir)
	}

	dst := filepath.Join(inflightDir, filepath.Base(newPath))
	moved, err := s.fs.Rename(newPath, dst)
	if err != nil {
		return "", false, fmt.Errorf("queue: claim: %w", err)
	}
	if !moved {
		return "", false, nil
	}
	return dst, true, nil
}

// Load tolerantly reads and parses an envelope file. A missing or
// malformed file returns (nil, false) -- never an error -- so a poison
// envelope can never block a dispatcher tick (spec §4.1 Load).
func (s *Store) Load(path string) (*envelope.Envelope, bool) {
	raw, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return envelope.FromJSON(raw)
}

// Ack deletes an inflight envelope. A missing file is not an error --
// another process may have already acked it.
func (s *Store) Ack(inflightPath string) error {
	if err := s.fs.Remove(inflightPath); err != nil {
		return fmt.Errorf("queue: ack: %w", err)
	}
	return nil
}

// Requeue increments attempts, stamps updated_at/next_attempt_at, rewrites
// the envelope in place, then renames it back into new/.
func (s *Store) Requeue(inflightPath string, e *envelope.Envelope, now time.Time, delay time.Duration) (string, error) {
	if delay < 0 {
		delay = 0
	}

	e.Attempts++
	e.UpdatedAt = unixFloat(now)
	e.NextAttemptAt = unixFloat(now.Add(delay))

	raw, err := e.ToJSON()
	if err != nil {
		return "", fmt.Errorf("queue: requeue marshal: %w", err)
	}

	if err := s.fs.AtomicWrite(raw, inflightPath); err != nil {
		return "", fmt.Errorf("queue: requeue write: %w", err)
	}

	dst := filepath.Join(newDir, filepath.Base(inflightPath))
	moved, err := s.fs.Rename(inflightPath, dst)
	if err != nil {
		return "", fmt.Errorf("queue: requeue rename: %w", err)
	}
	if !moved {
		return "", fmt.Errorf("queue: requeue: %w", ErrClaimLost)
	}
	return dst, nil
}

// ReclaimStaleInflight returns to new/ any envelope in inflight/ whose
// updated_at predates now-lease. This is the crash-recovery mechanism:
// a dispatcher that died mid-delivery leaves its claimed envelopes behind,
// and a later dispatcher tick (in this process or another) reclaims them.
func (s *Store) ReclaimStaleInflight(lease time.Duration, now time.Time) (int, error) {
	if lease <= 0 {
		return 0, nil
	}

	paths, err := s.ListInflight()
	if err != nil {
		return 0, fmt.Errorf("queue: reclaim: %w", err)
	}

	reclaimed := 0
	for _, path := range paths {
		e, ok := s.Load(path)
		if !ok {
			_ = s.fs.Remove(path)
			continue
		}

		if now.Sub(e.UpdatedAtTime()) < lease {
			continue
		}

		e.UpdatedAt = unixFloat(now)
		e.NextAttemptAt = 0

		raw, err := e.ToJSON()
		if err != nil {
			continue
		}
		if err := s.fs.AtomicWrite(raw, path); err != nil {
			continue
		}

		dst := filepath.Join(newDir, filepath.Base(path))
		moved, err := s.fs.Rename(path, dst)
		if err != nil || !moved {
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// NewID returns a fresh globally-unique envelope id: a random (version 4)
// UUID in its canonical hyphenated hex form, which carries 122 random bits.
func NewID() string {
	return uuid.New().String()
}

// Contains reports whether an envelope with the given id is still present
// in either new/ or inflight/. The CLI's --wait-delivery poll uses this as
// one of its two satisfying conditions (spec §4.6: "the envelope
// disappearing from new/ and inflight/, or observing an accepted receipt --
// whichever comes first").
func (s *Store) Contains(id string) (bool, error) {
	suffix := "-" + id + ".json"
	for _, dir := range []string{newDir, inflightDir} {
		entries, err := s.fs.ReadDir(dir)
		if err != nil {
			return false, fmt.Errorf("queue: contains: list %s: %w", dir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
				return true, nil
			}
		}
	}
	return false, nil
}
