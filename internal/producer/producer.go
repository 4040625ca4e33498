// Package producer implements the Producer API (spec component G) in both
// its shapes: an in-process call for the operator-facing path, and the
// shared helpers the agent-facing `zeus-msg` subprocess CLI builds on.
//
// Symbolic target parsing (polemarch/phalanx/hoplite:<id>/agent:<id>/plain
// id fallback) is grounded on original_source/zeus/msg_cli.py's
// _resolve_target. Payload confinement is grounded on the same file's
// _read_payload, adapted to route through internal/vfs's traversal guard
// instead of a bespoke resolve-and-compare.
//
// Called by: cmd/zeus-msg, and any in-process operator surface.
// Calls: internal/vfs, internal/envelope, internal/queue, internal/fleet.
package producer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeusbus/zeus/internal/envelope"
	"github.com/zeusbus/zeus/internal/fleet"
	"github.com/zeusbus/zeus/internal/queue"
	"github.com/zeusbus/zeus/internal/vfs"
)

// ErrPathEscapesRoot is returned by ReadPayloadFile when the requested path
// resolves outside the configured message-tmp root.
var ErrPathEscapesRoot = errors.New("producer: payload path escapes message-tmp root")

// ErrMissingSenderID is returned when a symbolic target needs sender
// identity (polemarch/phalanx) that the caller didn't supply.
var ErrMissingSenderID = errors.New("producer: missing @zeus_agent id")

// ErrUnresolvableTarget is returned for an empty or otherwise malformed
// --to value.
var ErrUnresolvableTarget = errors.New("producer: cannot resolve target")

// ResolveSymbolicTarget maps a raw --to value plus sender identity into the
// envelope's structured target fields, mirroring
// original_source/zeus/msg_cli.py's _resolve_target rule for rule:
//
//  1. bare "polemarch"           -> agent,   sender.ParentID
//  2. bare "phalanx"             -> phalanx, sender's phalanx id, owned by sender's parent (or self)
//  3. "hoplite:<id>"/"agent:<id>" -> hoplite/agent, <id>
//  4. anything else (plain id or display name) -> agent, <value> (display-name
//     disambiguation against the live fleet view happens later, in
//     internal/resolver, which has access to FleetSnapshot)
func ResolveSymbolicTarget(raw string, sender fleet.Identity) (kind envelope.TargetKind, ref, owner string, err error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return "", "", "", ErrUnresolvableTarget
	}

	switch {
	case clean == "polemarch":
		if sender.ParentID == "" {
			return "", "", "", ErrMissingSenderID
		}
		return envelope.TargetAgent, sender.ParentID, "", nil

	case clean == "phalanx":
		owner := sender.ParentID
		if owner == "" {
			owner = sender.AgentID
		}
		if owner == "" {
			return "", "", "", ErrMissingSenderID
		}
		phalanxID := sender.PhalanxID
		if phalanxID == "" {
			phalanxID = "phalanx-" + owner
		}
		return envelope.TargetPhalanx, phalanxID, owner, nil

	case strings.HasPrefix(clean, "hoplite:"):
		id := strings.TrimSpace(strings.TrimPrefix(clean, "hoplite:"))
		if id == "" {
			return "", "", "", ErrUnresolvableTarget
		}
		owner := sender.ParentID
		if owner == "" {
			owner = sender.AgentID
		}
		return envelope.TargetHoplite, id, owner, nil

	case strings.HasPrefix(clean, "agent:"):
		id := strings.TrimSpace(strings.TrimPrefix(clean, "agent:"))
		if id == "" {
			return "", "", "", ErrUnresolvableTarget
		}
		return envelope.TargetAgent, id, "", nil

	default:
		return envelope.TargetAgent, clean, "", nil
	}
}

// ReadPayloadFile reads path after confirming it resolves inside tmpRoot,
// rejecting any traversal attempt (spec §4.6: "rejects paths escaping that
// root").
func ReadPayloadFile(tmpRoot *vfs.VFS, path string) (string, error) {
	resolved, err := tmpRoot.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathEscapesRoot, err)
	}

	rel, err := relativeTo(tmpRoot.Root(), resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathEscapesRoot, err)
	}

	raw, err := tmpRoot.ReadFile(rel)
	if err != nil {
		return "", fmt.Errorf("producer: read payload: %w", err)
	}
	return string(raw), nil
}

func relativeTo(root, abs string) (string, error) {
	if abs == root {
		return ".", nil
	}
	prefix := root + string(filepath.Separator)
	if !strings.HasPrefix(abs, prefix) {
		return "", fmt.Errorf("path %q outside root %q", abs, root)
	}
	return abs[len(prefix):], nil
}

// Producer is the in-process Producer API (spec §4.6 "In-process").
type Producer struct {
	queue        *queue.Store
	dependencies *fleet.Dependencies
	newID        func() string
}

// New returns a Producer persisting through store. dependencies may be nil
// if the caller doesn't want enqueue-time dependency release (e.g. tests
// exercising only envelope persistence).
func New(store *queue.Store, dependencies *fleet.Dependencies) *Producer {
	return &Producer{queue: store, dependencies: dependencies, newID: queue.NewID}
}

// EnqueueParams carries everything EnqueueOutbound needs; it mirrors
// envelope.NewParams but omits fields the caller shouldn't set directly
// (ID, CreatedAt/UpdatedAt).
type EnqueueParams struct {
	Sender fleet.Identity

	TargetKind    envelope.TargetKind
	TargetRef     string
	TargetOwnerID string
	TargetAgentID string
	TargetName    string

	DeliveryMode envelope.DeliveryMode
	Message      string
}

// EnqueueOutbound validates and persists a new envelope, stamping origin
// identity from sender (spec §4.6: "Runs target validation synchronously,
// stamps origin identity from session context, persists via A").
func (p *Producer) EnqueueOutbound(params EnqueueParams, now time.Time) (string, error) {
	if strings.TrimSpace(params.Message) == "" {
		return "", fmt.Errorf("producer: message is required")
	}
	if !params.TargetKind.IsValid() {
		return "", fmt.Errorf("producer: invalid target_kind %q", params.TargetKind)
	}

	env := envelope.New(envelope.NewParams{
		SourceName:      params.Sender.Name,
		SourceAgentID:   params.Sender.AgentID,
		SourceRole:      string(params.Sender.Role),
		SourceParentID:  params.Sender.ParentID,
		SourcePhalanxID: params.Sender.PhalanxID,
		TargetKind:      params.TargetKind,
		TargetRef:       params.TargetRef,
		TargetOwnerID:   params.TargetOwnerID,
		TargetAgentID:   params.TargetAgentID,
		TargetName:      params.TargetName,
		DeliveryMode:    params.DeliveryMode,
		Message:         params.Message,
		Now:             now,
	}, p.newID)

	if _, err := p.queue.Enqueue(env); err != nil {
		return "", fmt.Errorf("producer: enqueue: %w", err)
	}

	// A message from the blocker releases any dependency it was blocking
	// (spec §4.4: "cleared as a side effect of the enqueue"). The envelope
	// is already durably enqueued at this point, so a failure persisting
	// the release doesn't fail the call -- it just leaves the in-memory
	// overlay ahead of disk until the next mutation or daemon shutdown
	// flushes it.
	if p.dependencies != nil && env.SourceAgentID != "" {
		if released := p.dependencies.ReleaseByBlocker(env.SourceAgentID); len(released) > 0 {
			_ = p.dependencies.Save()
		}
	}

	return env.ID, nil
}
