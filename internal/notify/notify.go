// Package notify publishes campaign lifecycle events to interested sinks:
// the structured log, the desktop, or a team webhook. Delivery is best
// effort; a failing sink never blocks the orchestrator.
package notify

import (
	"log/slog"
	"time"

	"github.com/tunex-app/tunex/internal/domain"
)

// EventKind identifies what happened.
type EventKind string

const (
	// OptimizerAttempted fires once per generation attempt, before the
	// outcome is known.
	OptimizerAttempted EventKind = "optimizer_attempted"
	// FallbackUsed fires when a batch was substituted by the random sampler.
	FallbackUsed EventKind = "fallback_used"
	// BatchPersisted fires after a generated batch reached disk.
	BatchPersisted EventKind = "batch_persisted"
	// ResultsIngested fires after measurements were recorded for a batch.
	ResultsIngested EventKind = "results_ingested"
	// StateRebuilt fires when optimizer state was rebuilt from history.
	StateRebuilt EventKind = "state_rebuilt"
)

// Event is one campaign lifecycle occurrence.
type Event struct {
	Kind       EventKind
	CampaignID string
	BatchID    string
	Provenance domain.Provenance
	Rows       int
	Err        error
	At         time.Time
}

// Notifier receives events.
type Notifier interface {
	Notify(e Event)
}

// MultiNotifier fans events out to several sinks.
type MultiNotifier struct {
	sinks []Notifier
}

// NewMultiNotifier builds a fan-out over the given sinks.
func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	return &MultiNotifier{sinks: sinks}
}

// Notify delivers the event to every sink.
func (m *MultiNotifier) Notify(e Event) {
	for _, s := range m.sinks {
		s.Notify(e)
	}
}

// NoopNotifier discards events.
type NoopNotifier struct{}

func (NoopNotifier) Notify(Event) {}

// SlogNotifier writes events to the structured log.
type SlogNotifier struct {
	log *slog.Logger
}

// NewSlogNotifier logs events through the given logger.
func NewSlogNotifier(log *slog.Logger) *SlogNotifier {
	return &SlogNotifier{log: log}
}

// Notify logs the event. Fallbacks and errors log at warn, the rest at info.
func (n *SlogNotifier) Notify(e Event) {
	attrs := []any{
		"campaign_id", e.CampaignID,
	}
	if e.BatchID != "" {
		attrs = append(attrs, "batch_id", e.BatchID)
	}
	if e.Provenance != "" {
		attrs = append(attrs, "provenance", string(e.Provenance))
	}
	if e.Rows > 0 {
		attrs = append(attrs, "rows", e.Rows)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err.Error())
	}
	if e.Kind == FallbackUsed || e.Err != nil {
		n.log.Warn(string(e.Kind), attrs...)
		return
	}
	n.log.Info(string(e.Kind), attrs...)
}
