// Package notify implements the Notifier (spec component J): surfacing
// blocked-queue reasons to the operator at most once per distinct
// (envelope, reason) pair until the reason changes or the envelope is
// acked (spec §4.5/§8, "Block-reason idempotence").
//
// The Python reference (original_source/zeus/notify.py) shells out to
// notify-send for desktop toast notifications -- meaningless for a
// headless daemon with no desktop session. This package keeps the
// rate-limiting contract and redirects delivery to structured logging via
// internal/logging (see the internal/notify entry in DESIGN.md).
//
// Called by: internal/dispatcher, once per blocked envelope per tick.
// Calls: internal/logging (LogSink).
package notify

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Sink delivers one notice. Implementations must not block the dispatcher
// tick for long; LogSink just writes a log line.
type Sink interface {
	Notify(envelopeID, reason string)
}

// LogSink delivers notices as warn-level log lines.
type LogSink struct {
	log *logrus.Logger
}

// NewLogSink returns a Sink backed by log.
func NewLogSink(log *logrus.Logger) *LogSink {
	return &LogSink{log: log}
}

// Notify implements Sink.
func (s *LogSink) Notify(envelopeID, reason string) {
	s.log.WithFields(logrus.Fields{
		"envelope_id": envelopeID,
		"reason":      reason,
	}).Warn("envelope blocked")
}

// Ledger tracks the last reason emitted per envelope so the dispatcher
// emits a notice once per run of the same (envelope, reason) pair: a
// repeat of the last reason is suppressed, while a reason that changes
// (including back to an earlier one) is emitted again (spec §4.5e, §8
// "Block-reason idempotence").
type Ledger struct {
	sink Sink

	mu      sync.Mutex
	lastFor map[string]string // envelope id -> last reason notified
}

// NewLedger returns a Ledger delivering through sink.
func NewLedger(sink Sink) *Ledger {
	return &Ledger{sink: sink, lastFor: map[string]string{}}
}

// Notice emits a notice for (envelopeID, reason) unless that exact pair was
// the last one notified for this envelope. Returns whether a notice was
// actually emitted, for tests.
func (l *Ledger) Notice(envelopeID, reason string) bool {
	l.mu.Lock()
	last, seen := l.lastFor[envelopeID]
	if seen && last == reason {
		l.mu.Unlock()
		return false
	}
	l.lastFor[envelopeID] = reason
	l.mu.Unlock()

	l.sink.Notify(envelopeID, reason)
	return true
}

// Clear forgets an envelope's last-notified reason. Call this when an
// envelope is acked or dropped so a reused envelope id (vanishingly rare,
// but cheap to guard) starts fresh.
func (l *Ledger) Clear(envelopeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.lastFor, envelopeID)
}
