// Package orchestrator coordinates batch generation and result ingestion for
// one campaign. It owns the generation state machine, decides when to fall
// back to random sampling, and keeps config, history and optimizer state on
// disk consistent.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tunex-app/tunex/internal/campaignstore"
	"github.com/tunex-app/tunex/internal/domain"
	"github.com/tunex-app/tunex/internal/engine"
	"github.com/tunex-app/tunex/internal/history"
	"github.com/tunex-app/tunex/internal/notify"
	"github.com/tunex-app/tunex/internal/sampler"
)

// State is where the generation state machine currently sits. Outside a
// generation run the orchestrator is Idle.
type State string

const (
	StateIdle               State = "idle"
	StateResolvingOptimizer State = "resolving_optimizer"
	StateSuggesting         State = "suggesting"
	StateFallingBack        State = "falling_back"
	StateBatchPersisted     State = "batch_persisted"
)

// Orchestrator serializes all mutations for one campaign. The engine
// semaphore is shared across campaigns so concurrent generations cannot
// spawn more engine processes than configured.
type Orchestrator struct {
	store    *campaignstore.Store
	adapter  *engine.Adapter
	fallback *sampler.Sampler
	notifier notify.Notifier
	log      *slog.Logger
	sem      *semaphore.Weighted

	mu       sync.Mutex
	campaign *domain.Campaign
	hist     *history.History
	state    State
}

// New loads the campaign's run history and returns a ready orchestrator.
func New(store *campaignstore.Store, adapter *engine.Adapter, fallback *sampler.Sampler,
	notifier notify.Notifier, log *slog.Logger, sem *semaphore.Weighted,
	campaign *domain.Campaign) (*Orchestrator, error) {

	hist, err := store.LoadHistory(campaign)
	if err != nil {
		return nil, fmt.Errorf("loading history for campaign %s: %w", campaign.ID, err)
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Orchestrator{
		store:    store,
		adapter:  adapter,
		fallback: fallback,
		notifier: notifier,
		log:      log.With("campaign_id", campaign.ID),
		sem:      sem,
		campaign: campaign,
		hist:     hist,
		state:    StateIdle,
	}, nil
}

// Campaign returns a snapshot of the campaign config.
func (o *Orchestrator) Campaign() domain.Campaign {
	o.mu.Lock()
	defer o.mu.Unlock()
	return *o.campaign
}

// State returns the current state machine position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns the batches recorded so far, in generation order.
func (o *Orchestrator) History() []*domain.RunBatch {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hist.Batches()
}

// ResultsForBatch returns the measurements recorded for one batch.
func (o *Orchestrator) ResultsForBatch(batchID string) []domain.RunResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hist.ResultsForBatch(batchID)
}

func (o *Orchestrator) setState(s State) {
	o.state = s
}

// GenerateNextBatch produces, persists and records the next batch of
// batchSize suggestions. The optimizer gets exactly one attempt; if it is
// unavailable the random fallback substitutes the batch, once, without
// retrying the optimizer. A context cancellation before the fallback ran is
// honored as a cancellation, not converted into a fallback batch. Only fully
// persisted batches are returned.
func (o *Orchestrator) GenerateNextBatch(ctx context.Context, batchSize int) (*domain.RunBatch, error) {
	return o.generate(ctx, batchSize, func(State) {})
}

func (o *Orchestrator) generate(ctx context.Context, batchSize int, observe func(State)) (*domain.RunBatch, error) {
	if batchSize <= 0 {
		return nil, &domain.ValidationError{Problems: []string{
			fmt.Sprintf("batch size must be positive, got %d", batchSize),
		}}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	defer func() {
		o.setState(StateIdle)
		observe(StateIdle)
	}()

	rows, provenance, err := o.produceRows(ctx, batchSize, observe)
	if err != nil {
		return nil, err
	}

	batch := &domain.RunBatch{
		BatchID:     uuid.NewString(),
		CampaignID:  o.campaign.ID,
		GeneratedAt: time.Now().UTC(),
		Provenance:  provenance,
		Rows:        rows,
		Status:      domain.BatchPending,
	}
	// Disk first, ledger second: a batch the caller can see always exists on
	// disk already.
	if err := o.store.WriteBatch(o.campaign, batch, nil); err != nil {
		return nil, err
	}
	if err := o.hist.AppendBatch(batch); err != nil {
		return nil, err
	}
	o.setState(StateBatchPersisted)
	observe(StateBatchPersisted)
	o.notifier.Notify(notify.Event{
		Kind: notify.BatchPersisted, CampaignID: o.campaign.ID, BatchID: batch.BatchID,
		Provenance: provenance, Rows: len(rows), At: time.Now(),
	})
	o.log.Info("batch persisted", "batch_id", batch.BatchID, "provenance", string(provenance), "rows", len(rows))
	return batch, nil
}

// produceRows runs the optimizer attempt and, when it fails with
// ErrOptimizerUnavailable, the single fallback substitution.
func (o *Orchestrator) produceRows(ctx context.Context, batchSize int, observe func(State)) ([]domain.Row, domain.Provenance, error) {
	o.setState(StateResolvingOptimizer)
	observe(StateResolvingOptimizer)
	o.notifier.Notify(notify.Event{Kind: notify.OptimizerAttempted, CampaignID: o.campaign.ID, At: time.Now()})

	rows, err := o.suggest(ctx, batchSize)
	if err == nil {
		return rows, domain.FromOptimizer, nil
	}
	if !errors.Is(err, domain.ErrOptimizerUnavailable) {
		return nil, "", err
	}
	// A cancel arriving during the engine attempt also surfaces as an engine
	// failure. The user asked to stop; do not hand them a random batch.
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}

	o.setState(StateFallingBack)
	observe(StateFallingBack)
	o.log.Warn("optimizer unavailable, falling back to random sampling", "error", err)

	rows, sampleErr := o.fallback.Sample(o.campaign.Space, batchSize)
	if sampleErr != nil {
		return nil, "", fmt.Errorf("fallback sampling failed after %v: %w", err, sampleErr)
	}
	o.notifier.Notify(notify.Event{
		Kind: notify.FallbackUsed, CampaignID: o.campaign.ID, Rows: len(rows), Err: err, At: time.Now(),
	})
	return rows, domain.FromFallback, nil
}

// suggest resolves engine state and asks for one batch, holding an engine
// slot for the whole exchange.
func (o *Orchestrator) suggest(ctx context.Context, batchSize int) ([]domain.Row, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for an engine slot: %w: %w", err, domain.ErrOptimizerUnavailable)
	}
	defer o.sem.Release(1)

	h, err := o.adapter.Resolve(ctx, o.campaign, o.hist)
	if err != nil {
		return nil, err
	}
	if h.Rebuilt {
		o.notifier.Notify(notify.Event{Kind: notify.StateRebuilt, CampaignID: o.campaign.ID, At: time.Now()})
		o.log.Info("optimizer state rebuilt", "config_hash", h.ConfigHash)
	}

	o.setState(StateSuggesting)
	return o.adapter.SuggestBatch(ctx, o.campaign, h, batchSize)
}

// RecordResults ingests measurements for a pending batch, one map per row in
// row order. Every map must cover exactly the campaign's objectives with
// finite values. Resubmitting a completed batch's results is an idempotent
// no-op reported through alreadyDone.
func (o *Orchestrator) RecordResults(batchID string, measurements []map[string]float64) (alreadyDone bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	batch, ok := o.hist.Batch(batchID)
	if !ok {
		return false, fmt.Errorf("recording results for %s: %w", batchID, domain.ErrBatchNotFound)
	}
	if err := o.validateMeasurements(batch, measurements); err != nil {
		return false, err
	}

	now := time.Now().UTC()
	alreadyDone, err = o.hist.RecordResults(batchID, measurements, now)
	if err != nil {
		return false, err
	}
	if alreadyDone {
		o.log.Info("results already recorded, ignoring resubmission", "batch_id", batchID)
		return true, nil
	}

	completed, _ := o.hist.Batch(batchID)
	if err := o.store.WriteBatch(o.campaign, completed, o.hist.ResultsForBatch(batchID)); err != nil {
		return false, err
	}
	o.notifier.Notify(notify.Event{
		Kind: notify.ResultsIngested, CampaignID: o.campaign.ID, BatchID: batchID,
		Rows: len(measurements), At: now,
	})
	o.log.Info("results recorded", "batch_id", batchID, "rows", len(measurements))
	return false, nil
}

func (o *Orchestrator) validateMeasurements(batch *domain.RunBatch, measurements []map[string]float64) error {
	ve := &domain.ValidationError{}
	if len(measurements) != len(batch.Rows) {
		ve.Addf("batch %s has %d rows but %d results were submitted", batch.BatchID, len(batch.Rows), len(measurements))
		return ve.OrNil()
	}
	for i, m := range measurements {
		for _, obj := range o.campaign.Objectives {
			v, ok := m[obj.Name]
			if !ok {
				ve.Addf("row %d is missing a value for objective %q", i, obj.Name)
				continue
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				ve.Addf("row %d objective %q is not a finite number", i, obj.Name)
			}
		}
		for name := range m {
			if !o.hasObjective(name) {
				ve.Addf("row %d reports unknown objective %q", i, name)
			}
		}
	}
	return ve.OrNil()
}

func (o *Orchestrator) hasObjective(name string) bool {
	for _, obj := range o.campaign.Objectives {
		if obj.Name == name {
			return true
		}
	}
	return false
}

// ApplyEdit applies a campaign edit and persists the updated config.
// Structural edits invalidate the persisted optimizer state so the next
// generation rebuilds it from history.
func (o *Orchestrator) ApplyEdit(e domain.Edit) (structural bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	next := *o.campaign
	structural, err = next.Apply(e)
	if err != nil {
		return false, err
	}
	if err := o.store.SaveConfig(&next); err != nil {
		return false, err
	}
	*o.campaign = next
	if structural {
		if err := o.adapter.Invalidate(o.campaign.ID); err != nil {
			return false, err
		}
		o.log.Info("structural edit applied, optimizer state invalidated", "version", o.campaign.Version)
	}
	return structural, nil
}

// Touch updates the campaign's last-accessed time and persists it.
func (o *Orchestrator) Touch() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.campaign.AccessedAt = time.Now()
	return o.store.SaveConfig(o.campaign)
}
