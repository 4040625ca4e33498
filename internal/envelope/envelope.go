// Package envelope defines the persisted outbound message record that
// flows through every stage of the bus: Producer API -> Envelope Store ->
// Dispatcher Loop -> Inbox Store.
//
// An Envelope is a closed struct: unknown JSON fields are ignored on load,
// and a file missing any required field loads as (nil, false) rather than
// panicking or erroring, so one malformed file on disk can never stall the
// dispatcher (spec §7, "Malformed envelope on disk").
//
// Called by: internal/producer, internal/queue, internal/dispatcher,
// internal/inbox.
// Calls: encoding/json. Envelope ids come from the newID function the
// caller passes to New (queue.NewID in production).
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TargetKind selects how target_ref is interpreted.
type TargetKind string

const (
	TargetAgent   TargetKind = "agent"
	TargetHoplite TargetKind = "hoplite"
	TargetPhalanx TargetKind = "phalanx"
)

// IsValid reports whether k is one of the three kinds this bus understands.
func (k TargetKind) IsValid() bool {
	switch k {
	case TargetAgent, TargetHoplite, TargetPhalanx:
		return true
	default:
		return false
	}
}

// DeliveryMode is advertised to the recipient's extension in a hint field
// only; the dispatcher never branches on it (see DESIGN.md open question 2).
type DeliveryMode string

const (
	DeliveryFollowUp DeliveryMode = "followUp"
	DeliverySteer    DeliveryMode = "steer"
)

// IsValid reports whether m is a recognized delivery mode.
func (m DeliveryMode) IsValid() bool {
	return m == DeliveryFollowUp || m == DeliverySteer
}

// Envelope is the unit of work persisted by the Envelope Store (spec §3).
type Envelope struct {
	ID string `json:"id"`

	SourceName      string `json:"source_name"`
	SourceAgentID   string `json:"source_agent_id"`
	SourceRole      string `json:"source_role"`
	SourceParentID  string `json:"source_parent_id"`
	SourcePhalanxID string `json:"source_phalanx_id"`

	TargetKind    TargetKind `json:"target_kind"`
	TargetRef     string     `json:"target_ref"`
	TargetOwnerID string     `json:"target_owner_id"`
	TargetAgentID string     `json:"target_agent_id"`
	TargetName    string     `json:"target_name"`

	DeliveryMode DeliveryMode `json:"delivery_mode"`
	Message      string       `json:"message"`

	CreatedAt float64 `json:"created_at"`
	UpdatedAt float64 `json:"updated_at"`

	Attempts      int     `json:"attempts"`
	NextAttemptAt float64 `json:"next_attempt_at"`
}

// NewParams carries the arguments to New; zero values take their defaults
// exactly like the Python reference's OutboundEnvelope.new keyword
// defaults (original_source/zeus/message_queue.py).
type NewParams struct {
	SourceName      string
	SourceAgentID   string
	SourceRole      string
	SourceParentID  string
	SourcePhalanxID string

	TargetKind    TargetKind
	TargetRef     string
	TargetOwnerID string
	TargetAgentID string
	TargetName    string

	DeliveryMode DeliveryMode
	Message      string

	// ID, when non-empty, is used verbatim instead of calling newID, so a
	// caller can submit several envelopes under one fixed id.
	ID string

	Now time.Time
}

// New constructs a fresh envelope with defaults applied, mirroring
// OutboundEnvelope.new in the Python reference.
func New(p NewParams, newID func() string) *Envelope {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	kind := p.TargetKind
	if kind == "" {
		kind = TargetAgent
	}

	ref := strings.TrimSpace(p.TargetRef)
	agentID := strings.TrimSpace(p.TargetAgentID)
	mode := p.DeliveryMode
	if !mode.IsValid() {
		mode = DeliveryFollowUp
	}

	if kind == TargetAgent {
		if ref == "" {
			ref = agentID
		}
		if agentID == "" {
			agentID = ref
		}
	}

	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = newID()
	}

	ts := float64(now.UnixNano()) / 1e9

	return &Envelope{
		ID:              id,
		SourceName:      strings.TrimSpace(p.SourceName),
		SourceAgentID:   strings.TrimSpace(p.SourceAgentID),
		SourceRole:      strings.ToLower(strings.TrimSpace(p.SourceRole)),
		SourceParentID:  strings.TrimSpace(p.SourceParentID),
		SourcePhalanxID: strings.TrimSpace(p.SourcePhalanxID),
		TargetKind:      kind,
		TargetRef:       ref,
		TargetOwnerID:   strings.TrimSpace(p.TargetOwnerID),
		TargetAgentID:   agentID,
		TargetName:      strings.TrimSpace(p.TargetName),
		DeliveryMode:    mode,
		Message:         p.Message,
		CreatedAt:       ts,
		UpdatedAt:       ts,
		Attempts:        0,
		NextAttemptAt:   0,
	}
}

// FromJSON tolerantly parses raw envelope JSON. It returns (nil, false) for
// any structurally invalid envelope instead of an error, matching the
// Python reference's from_dict contract: a poison file must never block
// the dispatcher (spec §4.1 Load, §7).
func FromJSON(raw []byte) (*Envelope, bool) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return FromDict(&e)
}

// FromDict applies the same validation from_dict performs in the Python
// reference after JSON decoding has already populated field-level types.
func FromDict(e *Envelope) (*Envelope, bool) {
	if e == nil {
		return nil, false
	}

	e.ID = strings.TrimSpace(e.ID)
	e.SourceRole = strings.ToLower(strings.TrimSpace(e.SourceRole))
	e.TargetRef = strings.TrimSpace(e.TargetRef)
	e.TargetAgentID = strings.TrimSpace(e.TargetAgentID)

	if e.TargetKind == "" {
		e.TargetKind = TargetAgent
	}
	if !e.TargetKind.IsValid() {
		return nil, false
	}

	if e.TargetKind == TargetAgent {
		if e.TargetRef == "" {
			e.TargetRef = e.TargetAgentID
		}
		if e.TargetAgentID == "" {
			e.TargetAgentID = e.TargetRef
		}
		if e.TargetRef == "" {
			return nil, false
		}
	} else if e.TargetRef == "" {
		return nil, false
	}

	if !e.DeliveryMode.IsValid() {
		e.DeliveryMode = DeliveryFollowUp
	}

	if e.ID == "" || e.Message == "" {
		return nil, false
	}

	if e.Attempts < 0 {
		e.Attempts = 0
	}
	if e.NextAttemptAt < 0 {
		e.NextAttemptAt = 0
	}

	return e, true
}

// ToJSON serializes the envelope.
func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Clone returns a copy safe for independent mutation (envelopes hold no
// maps or slices, so a struct copy already suffices; Clone documents the
// immutable-after-creation intent carried over from the teacher's envelope
// type).
func (e *Envelope) Clone() *Envelope {
	clone := *e
	return &clone
}

// Validate checks the invariants spec §3 names.
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope: id is required")
	}
	if e.Message == "" {
		return fmt.Errorf("envelope: message is required")
	}
	if !e.TargetKind.IsValid() {
		return fmt.Errorf("envelope: invalid target_kind %q", e.TargetKind)
	}
	if e.TargetKind == TargetAgent && e.TargetRef != e.TargetAgentID {
		return fmt.Errorf("envelope: target_kind=agent requires target_ref == target_agent_id")
	}
	if e.TargetKind == TargetAgent && e.TargetRef == "" {
		return fmt.Errorf("envelope: target_kind=agent requires non-empty target_ref")
	}
	if e.Attempts < 0 {
		return fmt.Errorf("envelope: attempts must be >= 0")
	}
	if e.NextAttemptAt < 0 {
		return fmt.Errorf("envelope: next_attempt_at must be >= 0")
	}
	return nil
}

// AgeSeconds returns now - created_at in seconds.
func (e *Envelope) AgeSeconds(now time.Time) float64 {
	return (float64(now.UnixNano()) / 1e9) - e.CreatedAt
}

// UpdatedAtTime converts UpdatedAt to a time.Time for lease comparisons.
func (e *Envelope) UpdatedAtTime() time.Time {
	sec := int64(e.UpdatedAt)
	nsec := int64((e.UpdatedAt - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
