// Package dispatcher implements the Dispatcher Loop (spec component F): the
// single per-process tick that reclaims stale leases, resolves targets,
// applies dedupe and capability gating, delivers to inboxes, and acks or
// retries each envelope.
//
// Grounded directly on spec.md §4.5's six-step pass description; no single
// original_source/zeus file owns this loop (the Python reference spreads
// the equivalent logic across agent_bus.py callers that this repository
// doesn't retain, since that polling lived in the TUI dashboard's frame
// loop). The goroutine/ticker/fsnotify wiring follows
// cellorg/cmd/orchestrator/main.go's context+WaitGroup shutdown pattern.
//
// Called by: cmd/zeusd.
// Calls: internal/queue, internal/resolver, internal/receipts,
// internal/dedupe, internal/inbox, internal/notify, internal/fleet,
// internal/config.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/zeusbus/zeus/internal/config"
	"github.com/zeusbus/zeus/internal/dedupe"
	"github.com/zeusbus/zeus/internal/envelope"
	"github.com/zeusbus/zeus/internal/fleet"
	"github.com/zeusbus/zeus/internal/inbox"
	"github.com/zeusbus/zeus/internal/notify"
	"github.com/zeusbus/zeus/internal/queue"
	"github.com/zeusbus/zeus/internal/receipts"
	"github.com/zeusbus/zeus/internal/resolver"
)

// Clock returns the current time; injected so tests can drive the
// dispatcher with a fake clock instead of wall time (spec §9 "Time
// sources").
type Clock func() time.Time

// Dispatcher owns every collaborator one tick needs.
type Dispatcher struct {
	cfg config.Config
	log *logrus.Logger

	queue    *queue.Store
	inbox    *inbox.Store
	receipts *receipts.Store
	gate     *receipts.Gate
	resolve  *resolver.Resolver
	dedupe   *dedupe.Ledger
	notices  *notify.Ledger

	fleetProvider fleet.Provider
	dependencies  *fleet.Dependencies
	priorities    *fleet.Priorities

	clock Clock
}

// New assembles a Dispatcher from its collaborators.
func New(
	cfg config.Config,
	log *logrus.Logger,
	queueStore *queue.Store,
	inboxStore *inbox.Store,
	receiptStore *receipts.Store,
	gate *receipts.Gate,
	resolve *resolver.Resolver,
	dedupeLedger *dedupe.Ledger,
	notices *notify.Ledger,
	fleetProvider fleet.Provider,
	dependencies *fleet.Dependencies,
	priorities *fleet.Priorities,
	clock Clock,
) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		cfg:           cfg,
		log:           log,
		queue:         queueStore,
		inbox:         inboxStore,
		receipts:      receiptStore,
		gate:          gate,
		resolve:       resolve,
		dedupe:        dedupeLedger,
		notices:       notices,
		fleetProvider: fleetProvider,
		dependencies:  dependencies,
		priorities:    priorities,
		clock:         clock,
	}
}

// Tick runs one full dispatcher pass (spec §4.5, steps 1-3), including the
// dedupe ledger's TTL prune (spec §3: "TTL-pruned on every drain" -- a
// drain is one tick, not a separate sweep goroutine).
func (d *Dispatcher) Tick() error {
	now := d.clock()

	if _, err := d.queue.ReclaimStaleInflight(d.cfg.InflightLease, now); err != nil {
		return err
	}

	snap, err := d.fleetProvider.Snapshot()
	if err != nil {
		d.log.WithError(err).Warn("fleet snapshot unavailable, skipping tick")
		return nil
	}

	newPaths, err := d.queue.ListNew()
	if err != nil {
		return err
	}

	dedupeDirty := d.dedupe.Prune(now, d.cfg.DedupeTTL)
	prioritiesDirty := false
	for _, path := range newPaths {
		env, ok := d.queue.Load(path)
		if !ok {
			// Poison file: can't even be parsed. Best-effort delete via
			// Ack's unlink semantics (works on any path, not just
			// inflight/).
			_ = d.queue.Ack(path)
			continue
		}

		if env.NextAttemptAt > 0 && unixFloat(now) < env.NextAttemptAt {
			continue
		}

		inflightPath, claimed, err := d.queue.Claim(path)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}

		dd, pd := d.processEnvelope(env, inflightPath, snap, now)
		dedupeDirty = dedupeDirty || dd
		prioritiesDirty = prioritiesDirty || pd
	}

	if dedupeDirty {
		if err := d.dedupe.Save(); err != nil {
			d.log.WithError(err).Warn("failed to persist dedupe ledger")
		}
	}
	if prioritiesDirty && d.priorities != nil {
		if err := d.priorities.Save(); err != nil {
			d.log.WithError(err).Warn("failed to persist priorities overlay")
		}
	}
	return nil
}

// processEnvelope runs steps 2c-2f of one dispatcher pass for a single
// claimed envelope. It reports whether the dedupe ledger and/or the
// priorities overlay were modified, so Tick can persist only what changed.
//
// A recipient already present in ReceiptsDedupe was delivered to on a prior
// pass; this pass never redelivers to it (spec §8 at-most-once-per-
// recipient) and only checks whether its receipt has arrived yet. The
// envelope acks only once every resolved recipient was delivered on an
// earlier pass and has a receipt on file (spec §4.5 step f); a recipient
// delivered during this pass keeps the envelope pending until a later pass.
// A hard rejection counts as done (spec §7, "treat as terminal").
func (d *Dispatcher) processEnvelope(env *envelope.Envelope, inflightPath string, snap *fleet.Snapshot, now time.Time) (dedupeDirty, prioritiesDirty bool) {
	recipients, err := d.resolve.Resolve(env, snap)
	if err != nil {
		d.handleUnresolved(env, inflightPath, now, err)
		return false, false
	}

	blocked := false
	var blockReason string
	allDone := true

	for _, recipient := range recipients {
		if d.dedupe.Has(recipient, env.ID, now, d.cfg.DedupeTTL) {
			if !d.recipientDone(recipient, env.ID) {
				allDone = false
			}
			continue
		}

		if healthy, reason := d.gate.Health(recipient, d.cfg.CapabilityMaxAge, now); !healthy {
			blocked = true
			blockReason = reason
			allDone = false
			continue
		}

		if err := d.inbox.Deliver(recipient, env, now); err != nil {
			blocked = true
			blockReason = err.Error()
			allDone = false
			continue
		}
		d.dedupe.Record(recipient, env.ID, now)
		dedupeDirty = true
		allDone = false // receipt, if any, arrives on a later tick

		if d.priorities != nil && d.priorities.ResetIfPaused(recipient) {
			prioritiesDirty = true
		}
	}

	if blocked {
		d.notices.Notice(env.ID, blockReason)
		if _, err := d.queue.Requeue(inflightPath, env, now, d.cfg.RequeueDelay); err != nil {
			d.log.WithError(err).WithField("envelope_id", env.ID).Warn("requeue failed")
		}
		return dedupeDirty, prioritiesDirty
	}

	if !allDone {
		if _, err := d.queue.Requeue(inflightPath, env, now, d.cfg.RequeueDelay); err != nil {
			d.log.WithError(err).WithField("envelope_id", env.ID).Warn("requeue failed")
		}
		return dedupeDirty, prioritiesDirty
	}

	d.notices.Clear(env.ID)
	if err := d.queue.Ack(inflightPath); err != nil {
		d.log.WithError(err).WithField("envelope_id", env.ID).Warn("ack failed")
	}
	return dedupeDirty, prioritiesDirty
}

// recipientDone reports whether recipient's receipt for messageID allows the
// envelope to ack: an accepted (or absent-status, spec §3) receipt is done,
// a rejected receipt is terminal (spec §7), a deferred or missing receipt
// means keep polling.
func (d *Dispatcher) recipientDone(recipient, messageID string) bool {
	if d.receipts == nil {
		return true
	}
	status, found := d.receipts.Status(recipient, messageID)
	if !found {
		return false
	}
	return status == "" || status == "accepted" || status == "rejected"
}

// handleUnresolved implements spec §4.5 step 2c: retry while the envelope
// is young, drop with a final notice once it crosses the stale-unresolved
// threshold.
func (d *Dispatcher) handleUnresolved(env *envelope.Envelope, inflightPath string, now time.Time, resolveErr error) {
	reason := resolveErr.Error()

	if env.AgeSeconds(now) < d.cfg.StaleUnresolvedThreshold.Seconds() {
		d.notices.Notice(env.ID, reason)
		if _, err := d.queue.Requeue(inflightPath, env, now, d.cfg.RequeueDelay); err != nil {
			d.log.WithError(err).WithField("envelope_id", env.ID).Warn("requeue failed")
		}
		return
	}

	d.notices.Notice(env.ID, "dropped (stale unresolved): "+reason)
	if err := d.queue.Ack(inflightPath); err != nil {
		d.log.WithError(err).WithField("envelope_id", env.ID).Warn("ack failed")
	}
	d.notices.Clear(env.ID)
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Dependencies exposes the dispatcher's dependency overlay so a caller (the
// daemon entrypoint) can persist it on shutdown; the dispatcher loop itself
// never mutates it -- release-by-blocker is an enqueue-time effect, applied
// by internal/producer (spec §4.4: "cleared as a side effect of the
// enqueue").
func (d *Dispatcher) Dependencies() *fleet.Dependencies {
	return d.dependencies
}

// Run drives Tick on cfg.TickInterval and on every fsnotify event under
// the queue's new/ directory, until ctx is cancelled (spec §4.5: "invoked
// on a tick... and on demand after enqueue"). Run blocks; call it from its
// own goroutine.
func (d *Dispatcher) Run(ctx context.Context, newDirPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(newDirPath); err != nil {
		d.log.WithError(err).Warn("fsnotify watch failed, falling back to tick-only")
	}

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.Tick(); err != nil {
					d.log.WithError(err).Error("dispatcher tick failed")
				}
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if err := d.Tick(); err != nil {
					d.log.WithError(err).Error("dispatcher tick failed")
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.log.WithError(werr).Warn("fsnotify watcher error")
			}
		}
	}()

	wg.Wait()
	return nil
}
