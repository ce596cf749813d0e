package domain

import "time"

// Row is one suggested experiment: parameter name to assigned value.
// Values are float64 for numeric kinds and string for categorical, substance
// and string-valued fixed parameters.
type Row map[string]any

// BatchStatus is the lifecycle state of a run batch. The only legal
// transition is pending to completed, exactly once.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchCompleted BatchStatus = "completed"
)

// Provenance records which generator produced a batch.
type Provenance string

const (
	FromOptimizer Provenance = "optimizer"
	FromFallback  Provenance = "fallback"
)

// RunBatch is one set of suggested experiments generated together.
// Immutable once created except for the pending-to-completed flip.
type RunBatch struct {
	BatchID     string
	CampaignID  string
	GeneratedAt time.Time
	Provenance  Provenance
	Rows        []Row
	Status      BatchStatus
}

// RunResult is the measured outcome of one row of a batch.
type RunResult struct {
	BatchID      string
	RowIndex     int
	Measurements map[string]float64
	IngestedAt   time.Time
}
