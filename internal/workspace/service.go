// Package workspace is the application facade over one workspace directory.
// It owns one orchestrator per campaign, the shared engine concurrency
// budget, and the on-disk change watcher.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tunex-app/tunex/internal/campaignstore"
	"github.com/tunex-app/tunex/internal/domain"
	"github.com/tunex-app/tunex/internal/engine"
	"github.com/tunex-app/tunex/internal/notify"
	"github.com/tunex-app/tunex/internal/orchestrator"
	"github.com/tunex-app/tunex/internal/sampler"
	"github.com/tunex-app/tunex/internal/settings"
)

// Options tunes a Service. Zero values get defaults.
type Options struct {
	Notifier             notify.Notifier
	Logger               *slog.Logger
	Settings             *settings.Store
	MaxConcurrentEngines int64
	FallbackSeed         int64
	WorkspaceName        string
}

// Service manages the campaigns of one workspace.
type Service struct {
	root     string
	store    *campaignstore.Store
	adapter  *engine.Adapter
	fallback *sampler.Sampler
	notifier notify.Notifier
	log      *slog.Logger
	sem      *semaphore.Weighted
	settings *settings.Store

	mu            sync.Mutex
	orchestrators map[string]*orchestrator.Orchestrator
	watcher       *Watcher
}

// NewService opens a workspace rooted at root, driving suggestions through
// the given engine.
func NewService(root string, eng engine.Engine, opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NoopNotifier{}
	}
	if opts.MaxConcurrentEngines <= 0 {
		opts.MaxConcurrentEngines = 2
	}
	if opts.FallbackSeed == 0 {
		opts.FallbackSeed = time.Now().UnixNano()
	}

	store := campaignstore.New(root)
	s := &Service{
		root:          root,
		store:         store,
		adapter:       engine.NewAdapter(eng, store),
		fallback:      sampler.New(opts.FallbackSeed),
		notifier:      opts.Notifier,
		log:           opts.Logger.With("workspace", root),
		sem:           semaphore.NewWeighted(opts.MaxConcurrentEngines),
		settings:      opts.Settings,
		orchestrators: make(map[string]*orchestrator.Orchestrator),
	}
	if s.settings != nil {
		name := opts.WorkspaceName
		if name == "" {
			name = root
		}
		if err := s.settings.TouchWorkspace(root, name); err != nil {
			s.log.Warn("recording workspace in settings failed", "error", err)
		}
	}
	return s, nil
}

// Watch starts reacting to external config edits: the affected campaign's
// cached orchestrator is dropped so the next access reloads from disk.
// Our own SaveConfig renames trip the watcher too; a config that still
// matches the cached campaign is not an external edit, and dropping the
// orchestrator for it would hand out a second mutable owner to anyone still
// holding the first.
func (s *Service) Watch(ctx context.Context) error {
	w, err := NewWatcher(s.root, func(ids []string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, id := range ids {
			o, ok := s.orchestrators[id]
			if !ok {
				continue
			}
			cached := o.Campaign()
			if disk, err := s.store.LoadConfig(id); err == nil && sameConfig(disk, &cached) {
				continue
			}
			delete(s.orchestrators, id)
			s.log.Info("campaign changed on disk, reloading", "campaign_id", id)
		}
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	w.Start(ctx)
	return nil
}

// Close stops the watcher. The settings store is owned by the caller.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
}

// CreateCampaign validates, persists and registers a new campaign.
func (s *Service) CreateCampaign(name string, space domain.ParameterSpace, objectives []domain.Objective, engineSettings domain.Settings) (*domain.Campaign, error) {
	c, err := domain.NewCampaign(name, space, objectives, engineSettings)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveConfig(c); err != nil {
		return nil, err
	}
	s.touchCampaign(c)
	s.log.Info("campaign created", "campaign_id", c.ID, "name", c.Name)
	return c, nil
}

// ListCampaigns loads every campaign config in the workspace.
func (s *Service) ListCampaigns() ([]*domain.Campaign, error) {
	ids, err := s.store.ListCampaignIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Campaign, 0, len(ids))
	for _, id := range ids {
		c, err := s.store.LoadConfig(id)
		if err != nil {
			return nil, fmt.Errorf("loading campaign %s: %w", id, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Campaign returns the current config of one campaign.
func (s *Service) Campaign(id string) (domain.Campaign, error) {
	o, err := s.orchestratorFor(id)
	if err != nil {
		return domain.Campaign{}, err
	}
	return o.Campaign(), nil
}

// EditCampaign applies an edit and reports whether it was structural.
func (s *Service) EditCampaign(id string, e domain.Edit) (structural bool, err error) {
	o, err := s.orchestratorFor(id)
	if err != nil {
		return false, err
	}
	structural, err = o.ApplyEdit(e)
	if err != nil {
		return false, err
	}
	c := o.Campaign()
	s.touchCampaign(&c)
	return structural, nil
}

// GenerateNextBatch produces and persists the next batch for a campaign.
func (s *Service) GenerateNextBatch(ctx context.Context, id string, batchSize int) (*domain.RunBatch, error) {
	o, err := s.orchestratorFor(id)
	if err != nil {
		return nil, err
	}
	batch, err := o.GenerateNextBatch(ctx, batchSize)
	if err != nil {
		return nil, err
	}
	c := o.Campaign()
	s.touchCampaign(&c)
	return batch, nil
}

// StartGeneration launches a cancellable background generation run.
func (s *Service) StartGeneration(ctx context.Context, id string, batchSize int) (*orchestrator.Task, error) {
	o, err := s.orchestratorFor(id)
	if err != nil {
		return nil, err
	}
	return o.StartGeneration(ctx, batchSize), nil
}

// RecordResults ingests measurements for a batch, one map per row.
func (s *Service) RecordResults(id, batchID string, measurements []map[string]float64) (alreadyDone bool, err error) {
	o, err := s.orchestratorFor(id)
	if err != nil {
		return false, err
	}
	return o.RecordResults(batchID, measurements)
}

// History returns a campaign's batches in generation order.
func (s *Service) History(id string) ([]*domain.RunBatch, error) {
	o, err := s.orchestratorFor(id)
	if err != nil {
		return nil, err
	}
	return o.History(), nil
}

// ResultsForBatch returns the recorded measurements of one batch.
func (s *Service) ResultsForBatch(id, batchID string) ([]domain.RunResult, error) {
	o, err := s.orchestratorFor(id)
	if err != nil {
		return nil, err
	}
	return o.ResultsForBatch(batchID), nil
}

// orchestratorFor returns the single orchestrator instance for a campaign,
// creating it on first use.
func (s *Service) orchestratorFor(id string) (*orchestrator.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orchestrators[id]; ok {
		return o, nil
	}
	c, err := s.store.LoadConfig(id)
	if err != nil {
		return nil, fmt.Errorf("loading campaign %s: %w", id, err)
	}
	o, err := orchestrator.New(s.store, s.adapter, s.fallback, s.notifier, s.log, s.sem, c)
	if err != nil {
		return nil, err
	}
	s.orchestrators[id] = o
	return o, nil
}

// sameConfig compares two campaigns in their serialized form.
func sameConfig(a, b *domain.Campaign) bool {
	ab, err := domain.EncodeCampaign(a)
	if err != nil {
		return false
	}
	bb, err := domain.EncodeCampaign(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func (s *Service) touchCampaign(c *domain.Campaign) {
	if s.settings == nil {
		return
	}
	if err := s.settings.TouchCampaign(c.ID, s.root, c.Name); err != nil {
		s.log.Warn("recording campaign in settings failed", "campaign_id", c.ID, "error", err)
	}
}
