// Package resolver implements the Target Resolver (spec component D): it
// takes an envelope's structured target (kind, ref, owner -- already parsed
// from the producer's raw "--to" string, see internal/producer) and the
// live Fleet View, and produces an ordered, de-duplicated list of concrete
// recipient ids, or a human-readable error.
//
// Grounded directly on spec.md §4.4's five numbered rules and the overlay
// side effects it names; the producer-side half of symbolic parsing
// (polemarch/phalanx/hoplite:<id>/agent:<id>/plain-id fallback) is grounded
// on original_source/zeus/msg_cli.py's _resolve_target and lives in
// internal/producer since it runs before any fleet view is available.
//
// Called by: internal/dispatcher, once per envelope per tick.
// Calls: internal/fleet, internal/ids.
package resolver

import (
	"errors"
	"fmt"

	"github.com/zeusbus/zeus/internal/envelope"
	"github.com/zeusbus/zeus/internal/fleet"
	"github.com/zeusbus/zeus/internal/ids"
)

// ErrAmbiguousName is returned when a plain display name matches more than
// one fleet agent (spec §4.4 rule 4: "ambiguity is an error, not a silent
// pick").
var ErrAmbiguousName = errors.New("resolver: ambiguous display name")

// ErrUnknownTarget is returned when a target cannot be mapped to any
// concrete recipient at all.
var ErrUnknownTarget = errors.New("resolver: unknown target")

// Resolver expands an envelope's target into concrete recipient ids using
// the current fleet view and overlay maps.
type Resolver struct {
	promotions *fleet.Promotions
}

// New returns a Resolver consulting promotions for phalanx-root treatment
// (spec §4.4, "Promoted sub-agents").
func New(promotions *fleet.Promotions) *Resolver {
	return &Resolver{promotions: promotions}
}

// Resolve expands e's target into concrete recipient ids.
func (r *Resolver) Resolve(e *envelope.Envelope, snap *fleet.Snapshot) ([]string, error) {
	switch e.TargetKind {
	case envelope.TargetAgent, envelope.TargetHoplite:
		return r.resolveSingle(e, snap)
	case envelope.TargetPhalanx:
		return r.resolvePhalanx(e, snap)
	default:
		return nil, fmt.Errorf("%w: unrecognized target_kind %q", ErrUnknownTarget, e.TargetKind)
	}
}

// resolveSingle covers rules 1, 3 and 4: a bare polemarch reference has
// already been rewritten by the producer into target_kind=agent with
// target_ref set to the parent id, and hoplite:<id>/agent:<id> are exact
// ids by construction. The fleet view stays the single source of truth for
// "does this id currently exist" -- a syntactically valid id absent from
// the fleet snapshot is exactly as unresolvable as an unknown display name
// (spec §8 scenario 3 relies on this: an id-shaped but wholly unknown
// target ages out via the stale-unresolved path, not via a perpetual
// capability-gate block). A value that is not the id of an agent in the
// snapshot falls back to a FleetSnapshot display-name lookup (rule 4),
// rejecting ambiguous matches.
func (r *Resolver) resolveSingle(e *envelope.Envelope, snap *fleet.Snapshot) ([]string, error) {
	ref := e.TargetAgentID
	if ref == "" {
		ref = e.TargetRef
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: missing @zeus_agent id", ErrUnknownTarget)
	}

	if ids.Valid(ref) {
		if _, ok := snap.ByAgentID(ref); ok {
			return []string{ref}, nil
		}
	}

	matches := snap.ByName(ref)
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: no agent with id or name %q", ErrUnknownTarget, ref)
	case 1:
		return []string{matches[0].AgentID}, nil
	default:
		return nil, fmt.Errorf("%w: %q matches %d agents", ErrAmbiguousName, ref, len(matches))
	}
}

// resolvePhalanx covers rule 2 (every hoplite owned by target_owner_id) and
// rule 5 (only hoplites with a deterministic/authoritative agent id), with
// promoted sub-agents excluded since they are now roots of their own
// phalanx rather than members of their former parent's (spec §4.4,
// "Promoted sub-agents").
func (r *Resolver) resolvePhalanx(e *envelope.Envelope, snap *fleet.Snapshot) ([]string, error) {
	owner := e.TargetOwnerID
	if owner == "" {
		return nil, fmt.Errorf("%w: phalanx target missing target_owner_id", ErrUnknownTarget)
	}

	seen := map[string]bool{}
	var out []string
	for _, hoplite := range snap.HoplitesOf(owner) {
		if r.promotions != nil && r.promotions.IsPromoted(hoplite.AgentID) {
			continue
		}
		if seen[hoplite.AgentID] {
			continue
		}
		seen[hoplite.AgentID] = true
		out = append(out, hoplite.AgentID)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: missing @zeus_agent id for phalanx %q (owner %s)", ErrUnknownTarget, e.TargetRef, owner)
	}
	return out, nil
}
