// Package dedupe implements the Receipts Dedupe store (spec component I):
// a persistent per-recipient set of message ids already delivered, so a
// crash-and-restart dispatcher never redelivers a message it already handed
// off. Grounded on original_source/zeus/message_receipts.py, with the
// lazy-on-read TTL eviction from has_message_receipt preserved verbatim in
// shape (SPEC_FULL.md §12).
//
// Called by: internal/dispatcher, once per (recipient, envelope) pair
// before delivery and once after a successful delivery.
// Calls: internal/vfs for the single JSON file backing the table.
package dedupe

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zeusbus/zeus/internal/vfs"
)

const fileName = "receipts.json"

// Ledger is an in-memory, periodically-flushed table of
// recipient -> message id -> unix timestamp delivered. It is safe for
// concurrent use.
type Ledger struct {
	fs  *vfs.VFS
	mu  sync.Mutex
	tbl map[string]map[string]float64
}

// Load reads the persisted ledger, tolerating a missing or corrupt file by
// starting empty (mirrors load_message_receipts's broad except clause).
func Load(fs *vfs.VFS) *Ledger {
	l := &Ledger{fs: fs, tbl: map[string]map[string]float64{}}

	raw, err := fs.ReadFile(fileName)
	if err != nil {
		return l
	}

	var decoded map[string]map[string]float64
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return l
	}

	for recipient, values := range decoded {
		clean := map[string]float64{}
		for msgID, ts := range values {
			clean[msgID] = ts
		}
		if len(clean) > 0 {
			l.tbl[recipient] = clean
		}
	}
	return l
}

// Save persists the ledger with an atomic write.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := json.Marshal(l.tbl)
	if err != nil {
		return fmt.Errorf("dedupe: marshal: %w", err)
	}
	if err := l.fs.AtomicWrite(raw, fileName); err != nil {
		return fmt.Errorf("dedupe: save: %w", err)
	}
	return nil
}

// Prune drops every (recipient, message) entry older than now-ttl, removing
// recipients left with no entries. It reports whether anything changed, so
// a caller can skip an unnecessary Save.
func (l *Ledger) Prune(now time.Time, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(unixFloat(now), ttl.Seconds())
}

func (l *Ledger) pruneLocked(now, ttlSeconds float64) bool {
	changed := false
	cutoff := now - ttlSeconds

	for recipient, values := range l.tbl {
		for msgID, ts := range values {
			if ts >= cutoff {
				continue
			}
			delete(values, msgID)
			changed = true
		}
		if len(values) == 0 {
			delete(l.tbl, recipient)
			changed = true
		}
	}
	return changed
}

// Has reports whether recipient has already received message within ttl of
// now, lazily evicting the entry if it has aged out (the Python reference's
// has_message_receipt does the eviction as a side effect of the read).
func (l *Ledger) Has(recipient, messageID string, now time.Time, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	values, ok := l.tbl[recipient]
	if !ok {
		return false
	}
	ts, ok := values[messageID]
	if !ok {
		return false
	}

	if ts < unixFloat(now)-ttl.Seconds() {
		delete(values, messageID)
		if len(values) == 0 {
			delete(l.tbl, recipient)
		}
		return false
	}
	return true
}

// Record marks message as delivered to recipient at now.
func (l *Ledger) Record(recipient, messageID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	values, ok := l.tbl[recipient]
	if !ok {
		values = map[string]float64{}
		l.tbl[recipient] = values
	}
	values[messageID] = unixFloat(now)
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
