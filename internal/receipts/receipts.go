// Package receipts implements the Receipt Store and Capability Gate (spec
// components B and E): per-(recipient, message) acceptance receipts written
// by recipient-side extensions, and the liveness/feature-flag heartbeat a
// recipient must be publishing before the dispatcher will deliver to it.
//
// Grounded on original_source/zeus/agent_bus.py
// (load_agent_bus_receipt/has_agent_bus_receipt/capability_health).
//
// Called by: internal/dispatcher, once per resolved recipient per envelope,
// before delivery (capability gate) and optionally after (receipt poll).
// Calls: internal/vfs, internal/ids.
package receipts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeusbus/zeus/internal/ids"
	"github.com/zeusbus/zeus/internal/vfs"
)

// Receipt is the recipient-written acceptance record for one delivered
// message (spec §3, Receipt).
type Receipt struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Store reads receipt and capability files written by recipient-side
// extensions. It never writes them; that is the recipient's job.
type Store struct {
	fs *vfs.VFS
}

// New returns a Store rooted at the shared state directory.
func New(fs *vfs.VFS) *Store {
	return &Store{fs: fs}
}

// Has reports whether recipientID has a receipt on file for messageID whose
// status is empty or "accepted" (spec §4.5: "absent or not-yet-accepted
// receipt never blocks delivery -- only a known-bad status does").
func (s *Store) Has(recipientID, messageID string) bool {
	clean := ids.Sanitize(recipientID)
	msgID := strings.TrimSpace(messageID)
	if clean == "" || msgID == "" {
		return false
	}

	raw, err := s.fs.ReadFile("bus", "receipts", clean, msgID+".json")
	if err != nil {
		return false
	}

	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return false
	}

	status := strings.ToLower(strings.TrimSpace(r.Status))
	if status != "" && status != "accepted" {
		return false
	}
	id := strings.TrimSpace(r.ID)
	if id != "" && id != msgID {
		return false
	}
	return true
}

// Status returns the normalized status recorded for (recipientID, messageID)
// and whether a receipt file was found at all. An empty status with found=true
// means "implicitly accepted" (spec §3, Receipt: "absence ⇒ implicitly
// accepted" applies to the status field, not the file).
func (s *Store) Status(recipientID, messageID string) (status string, found bool) {
	clean := ids.Sanitize(recipientID)
	msgID := strings.TrimSpace(messageID)
	if clean == "" || msgID == "" {
		return "", false
	}

	raw, err := s.fs.ReadFile("bus", "receipts", clean, msgID+".json")
	if err != nil {
		return "", false
	}

	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", false
	}
	id := strings.TrimSpace(r.ID)
	if id != "" && id != msgID {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(r.Status)), true
}

// ProcessedLedgerPath returns the relative path recipient extensions use to
// record which inbox messages they've already consumed. Zeus itself never
// reads or writes this file; it's surfaced so recipient-side tooling and
// operators can locate it.
func ProcessedLedgerPath(recipientID string) string {
	return "bus/processed/" + ids.Sanitize(recipientID) + ".json"
}

// capability is the on-disk heartbeat shape a recipient publishes
// periodically (spec §3, CapabilityHeartbeat).
type capability struct {
	Supports  map[string]bool `json:"supports"`
	UpdatedAt json.RawMessage `json:"updated_at"`
}

// Gate evaluates capability heartbeats before the dispatcher will attempt
// delivery to a recipient (spec component E).
type Gate struct {
	fs *vfs.VFS
}

// NewGate returns a Gate reading heartbeats from the shared state directory.
func NewGate(fs *vfs.VFS) *Gate {
	return &Gate{fs: fs}
}

// Health reports whether recipientID's most recent capability heartbeat is
// present, has not opted out of queue_bus delivery, and is no older than
// maxAge. The returned reason is non-empty only when healthy is false.
func (g *Gate) Health(recipientID string, maxAge time.Duration, now time.Time) (healthy bool, reason string) {
	clean := ids.Sanitize(recipientID)

	raw, err := g.fs.ReadFile("bus", "caps", clean+".json")
	if err != nil {
		return false, fmt.Sprintf("missing capability heartbeat for %s", clean)
	}

	var cap capability
	if err := json.Unmarshal(raw, &cap); err != nil {
		return false, fmt.Sprintf("unreadable capability heartbeat for %s", clean)
	}

	if enabled, ok := cap.Supports["queue_bus"]; ok && !enabled {
		return false, fmt.Sprintf("capability disabled queue_bus for %s", clean)
	}

	updatedAt, ok := parseCapabilityTimestamp(cap.UpdatedAt)
	if !ok {
		return false, fmt.Sprintf("capability heartbeat missing updated_at for %s", clean)
	}

	age := now.Sub(updatedAt)
	if age < 0 {
		return true, ""
	}
	if age > maxAge {
		return false, fmt.Sprintf("stale capability heartbeat for %s (%.1fs > %.1fs)", clean, age.Seconds(), maxAge.Seconds())
	}
	return true, ""
}

// parseCapabilityTimestamp accepts either a numeric unix timestamp or an
// ISO-8601 string (with optional trailing "Z"), matching
// _timestamp_from_capability's dual-format tolerance in the Python
// reference.
func parseCapabilityTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	clean := strings.TrimSpace(s)
	if clean == "" {
		return time.Time{}, false
	}

	if f, err := strconv.ParseFloat(clean, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec), true
	}

	normalized := strings.Replace(clean, "Z", "+00:00", 1)
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999-07:00",
		"2006-01-02T15:04:05-07:00",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
