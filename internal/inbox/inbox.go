// Package inbox implements the Inbox Store (spec §4.2): the per-recipient
// queue of delivered-but-not-yet-consumed message files that recipient-side
// agent extensions poll and consume.
//
// Grounded on original_source/zeus/hoplite_inbox.py and agent_bus.py's
// enqueue_agent_bus_message: same sanitize-agent-id, zero-padded-
// millisecond-timestamp filename, create-temp-then-rename write.
//
// Called by: internal/dispatcher, once per resolved recipient per envelope.
// Calls: internal/vfs, internal/ids, internal/envelope.
package inbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeusbus/zeus/internal/envelope"
	"github.com/zeusbus/zeus/internal/ids"
	"github.com/zeusbus/zeus/internal/vfs"
)

// Message is the on-disk shape for one delivered-to-one-recipient attempt
// (spec §3, InboxMessage).
type Message struct {
	ID            string              `json:"id"`
	CreatedAt     float64             `json:"created_at"`
	SourceName    string              `json:"source_name"`
	SourceAgentID string              `json:"source_agent_id"`
	SourceRole    string              `json:"source_role"`
	DeliverAs     envelope.DeliveryMode `json:"deliver_as"`
	Message       string              `json:"message"`
}

// Store is the filesystem-backed Inbox Store, rooted at "bus/inbox" of the
// shared state directory.
type Store struct {
	fs *vfs.VFS
}

// New returns an inbox Store rooted at the "bus/inbox" subdirectory.
func New(fs *vfs.VFS) *Store {
	return &Store{fs: fs}
}

// Deliver materializes one InboxMessage for recipientID under
// bus/inbox/<sanitized-recipient>/new/. The file name prefix is the
// zero-padded millisecond timestamp so the recipient-side consumer sees
// messages in causal-within-producer order (spec §4.2).
func (s *Store) Deliver(recipientID string, e *envelope.Envelope, now time.Time) error {
	clean := ids.Sanitize(recipientID)
	if clean == "" {
		return fmt.Errorf("inbox: deliver: empty recipient id after sanitize (%q)", recipientID)
	}
	if e.Message == "" {
		return fmt.Errorf("inbox: deliver: empty message for envelope %s", e.ID)
	}

	msg := Message{
		ID:            e.ID,
		CreatedAt:     unixFloat(now),
		SourceName:    e.SourceName,
		SourceAgentID: e.SourceAgentID,
		SourceRole:    e.SourceRole,
		DeliverAs:     e.DeliveryMode,
		Message:       e.Message,
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("inbox: marshal: %w", err)
	}

	tsMs := now.UnixMilli()
	name := fmt.Sprintf("%013d-%s.json", tsMs, e.ID)
	if err := s.fs.AtomicWrite(raw, "bus", "inbox", clean, "new", name); err != nil {
		return fmt.Errorf("inbox: write: %w", err)
	}
	return nil
}

// ListPending lists the pending (undelivered-to-consumer) message files for
// a recipient, oldest first. Useful for tests asserting
// at-most-once-per-recipient and for recipient-side tooling this repo
// doesn't otherwise provide.
func (s *Store) ListPending(recipientID string) ([]string, error) {
	clean := ids.Sanitize(recipientID)
	if clean == "" {
		return nil, fmt.Errorf("inbox: list: empty recipient id after sanitize (%q)", recipientID)
	}
	entries, err := s.fs.ReadDir("bus", "inbox", clean, "new")
	if err != nil {
		return nil, fmt.Errorf("inbox: list: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		out = append(out, entry.Name())
	}
	return out, nil
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
