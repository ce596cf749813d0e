// Package history keeps the append-only run ledger for one campaign:
// generated batches and their measured results. Entries are only ever
// appended; the single permitted mutation is a batch's pending-to-completed
// status flip.
package history

import (
	"fmt"
	"time"

	"github.com/tunex-app/tunex/internal/domain"
)

// History is the in-memory ledger. It is safe for use by a single
// orchestrator; cross-goroutine serialization is the orchestrator's job.
type History struct {
	batches map[string]*domain.RunBatch
	order   []string
	results []domain.RunResult
}

// New returns an empty ledger.
func New() *History {
	return &History{batches: make(map[string]*domain.RunBatch)}
}

// AppendBatch records a freshly generated batch. Batch IDs are unique for
// the lifetime of the ledger.
func (h *History) AppendBatch(b *domain.RunBatch) error {
	if b.BatchID == "" {
		return fmt.Errorf("batch has no ID")
	}
	if _, exists := h.batches[b.BatchID]; exists {
		return fmt.Errorf("batch %s already recorded", b.BatchID)
	}
	stored := cloneBatch(b)
	h.batches[b.BatchID] = stored
	h.order = append(h.order, b.BatchID)
	return nil
}

// Batch returns a copy of the batch with the given ID.
func (h *History) Batch(id string) (*domain.RunBatch, bool) {
	b, ok := h.batches[id]
	if !ok {
		return nil, false
	}
	return cloneBatch(b), true
}

// Batches returns copies of all batches in generation order.
func (h *History) Batches() []*domain.RunBatch {
	out := make([]*domain.RunBatch, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, cloneBatch(h.batches[id]))
	}
	return out
}

// Results returns a copy of every recorded result in ingestion order.
func (h *History) Results() []domain.RunResult {
	out := make([]domain.RunResult, len(h.results))
	copy(out, h.results)
	return out
}

// ResultsForBatch returns the results recorded for one batch.
func (h *History) ResultsForBatch(batchID string) []domain.RunResult {
	var out []domain.RunResult
	for _, r := range h.results {
		if r.BatchID == batchID {
			out = append(out, r)
		}
	}
	return out
}

// RecordResults appends measurements for a pending batch and flips it to
// completed. Recording against an already-completed batch is an idempotent
// no-op, reported through alreadyDone. Unknown batch IDs fail with
// domain.ErrBatchNotFound. measurements[i] belongs to row i of the batch.
func (h *History) RecordResults(batchID string, measurements []map[string]float64, now time.Time) (alreadyDone bool, err error) {
	b, ok := h.batches[batchID]
	if !ok {
		return false, fmt.Errorf("recording results for %s: %w", batchID, domain.ErrBatchNotFound)
	}
	if b.Status == domain.BatchCompleted {
		return true, nil
	}
	if len(measurements) != len(b.Rows) {
		return false, &domain.ValidationError{Problems: []string{
			fmt.Sprintf("batch %s has %d rows but %d results were submitted", batchID, len(b.Rows), len(measurements)),
		}}
	}
	for i, m := range measurements {
		h.results = append(h.results, domain.RunResult{
			BatchID:      batchID,
			RowIndex:     i,
			Measurements: cloneMeasurements(m),
			IngestedAt:   now,
		})
	}
	b.Status = domain.BatchCompleted
	return false, nil
}

// CompletedObservations pairs every measured row with its suggested values,
// in chronological order. This is the training data a rebuilt optimizer
// state is seeded with.
func (h *History) CompletedObservations() []Observation {
	var out []Observation
	for _, r := range h.results {
		b := h.batches[r.BatchID]
		if b == nil || r.RowIndex >= len(b.Rows) {
			continue
		}
		out = append(out, Observation{
			Values:       cloneRow(b.Rows[r.RowIndex]),
			Measurements: cloneMeasurements(r.Measurements),
		})
	}
	return out
}

// Observation is one measured experiment: the suggested parameter values and
// the objective measurements taken for them.
type Observation struct {
	Values       domain.Row
	Measurements map[string]float64
}

// PendingBatches returns copies of all batches still awaiting results.
func (h *History) PendingBatches() []*domain.RunBatch {
	var out []*domain.RunBatch
	for _, id := range h.order {
		if b := h.batches[id]; b.Status == domain.BatchPending {
			out = append(out, cloneBatch(b))
		}
	}
	return out
}

func cloneBatch(b *domain.RunBatch) *domain.RunBatch {
	out := *b
	out.Rows = make([]domain.Row, len(b.Rows))
	for i, r := range b.Rows {
		out.Rows[i] = cloneRow(r)
	}
	return &out
}

func cloneRow(r domain.Row) domain.Row {
	out := make(domain.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func cloneMeasurements(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
