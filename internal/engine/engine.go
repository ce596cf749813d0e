// Package engine talks to the external Bayesian-optimization engine and
// manages the opaque per-campaign state it produces. The core never inspects
// the state blob; it only tags it with the config hash it was built from and
// decides when it has gone stale.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tunex-app/tunex/internal/domain"
	"github.com/tunex-app/tunex/internal/history"
)

// Engine generates suggestions. Build seeds a fresh state from past
// observations; Suggest proposes the next rows and returns the advanced
// state. Implementations must treat every failure mode (process error,
// timeout, malformed output) as ErrOptimizerUnavailable.
type Engine interface {
	Build(ctx context.Context, c *domain.Campaign, training []history.Observation) ([]byte, error)
	Suggest(ctx context.Context, c *domain.Campaign, state []byte, batchSize int) ([]domain.Row, []byte, error)
}

// StateStore persists opaque engine state per campaign.
type StateStore interface {
	SaveState(campaignID string, blob []byte, configHash string, builtAt time.Time) error
	LoadState(campaignID string) (blob []byte, configHash string, builtAt time.Time, err error)
	DeleteState(campaignID string) error
}

// Handle is a resolved, ready-to-suggest engine state for one campaign.
// Rebuilt reports whether Resolve had to reconstruct the state from history
// rather than reuse the persisted blob.
type Handle struct {
	CampaignID string
	ConfigHash string
	BuiltAt    time.Time
	Rebuilt    bool
	state      []byte
}

// State returns the opaque blob. Callers must not mutate it.
func (h *Handle) State() []byte { return h.state }

// Adapter resolves engine state for campaigns and runs suggestions through
// the engine. Rebuilds and staleness checks live here so callers only see
// valid handles.
type Adapter struct {
	engine Engine
	states StateStore
}

// NewAdapter wires an engine to a state store.
func NewAdapter(e Engine, s StateStore) *Adapter {
	return &Adapter{engine: e, states: s}
}

// Resolve returns a handle whose state matches the campaign's current config
// hash. A missing, corrupt or stale persisted state triggers a rebuild from
// the campaign's completed observations; rebuild failure surfaces as
// ErrOptimizerUnavailable.
func (a *Adapter) Resolve(ctx context.Context, c *domain.Campaign, hist *history.History) (*Handle, error) {
	hash := c.Hash()
	blob, storedHash, builtAt, err := a.states.LoadState(c.ID)
	if err == nil && storedHash == hash {
		return &Handle{CampaignID: c.ID, ConfigHash: hash, BuiltAt: builtAt, state: blob}, nil
	}
	// Missing, unreadable and hash-mismatched states all take the same path.
	return a.rebuild(ctx, c, hist, hash)
}

func (a *Adapter) rebuild(ctx context.Context, c *domain.Campaign, hist *history.History, hash string) (*Handle, error) {
	// Training data is the imported initial dataset followed by every
	// completed batch row. After a structural edit old rows (and old seeds)
	// may no longer fit the space; the ledger keeps them all, but the engine
	// is only trained on rows that are still valid under the current config.
	var training []history.Observation
	for _, seed := range c.InitialDataset {
		if c.Space.CheckRow(seed.Values) == nil {
			training = append(training, history.Observation{
				Values:       seed.Values,
				Measurements: seed.Measurements,
			})
		}
	}
	for _, obs := range hist.CompletedObservations() {
		if c.Space.CheckRow(obs.Values) == nil {
			training = append(training, obs)
		}
	}
	blob, err := a.engine.Build(ctx, c, training)
	if err != nil {
		return nil, err
	}
	builtAt := time.Now()
	if err := a.states.SaveState(c.ID, blob, hash, builtAt); err != nil {
		return nil, err
	}
	return &Handle{CampaignID: c.ID, ConfigHash: hash, BuiltAt: builtAt, Rebuilt: true, state: blob}, nil
}

// SuggestBatch asks the engine for batchSize rows using the handle's state.
// Every returned row is checked against the parameter space; any out-of-domain
// or short batch is rejected wholesale as ErrOptimizerUnavailable. On success
// the advanced state is persisted and the handle updated in place.
func (a *Adapter) SuggestBatch(ctx context.Context, c *domain.Campaign, h *Handle, batchSize int) ([]domain.Row, error) {
	rows, next, err := a.engine.Suggest(ctx, c, h.state, batchSize)
	if err != nil {
		return nil, err
	}
	if len(rows) != batchSize {
		return nil, &suggestionError{campaignID: c.ID, reason: "short batch"}
	}
	for i, row := range rows {
		if err := c.Space.CheckRow(row); err != nil {
			return nil, &suggestionError{campaignID: c.ID, reason: fmt.Sprintf("row %d outside the parameter space", i), err: err}
		}
	}
	builtAt := time.Now()
	if err := a.states.SaveState(c.ID, next, h.ConfigHash, builtAt); err != nil {
		return nil, err
	}
	h.state = next
	h.BuiltAt = builtAt
	return rows, nil
}

// Invalidate drops any persisted state for a campaign, forcing the next
// Resolve to rebuild.
func (a *Adapter) Invalidate(campaignID string) error {
	return a.states.DeleteState(campaignID)
}

type suggestionError struct {
	campaignID string
	reason     string
	err        error
}

func (e *suggestionError) Error() string {
	msg := "engine returned an unusable batch for campaign " + e.campaignID + ": " + e.reason
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

func (e *suggestionError) Unwrap() error { return domain.ErrOptimizerUnavailable }
