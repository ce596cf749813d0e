//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/tunex-app/tunex/internal/domain"
	"github.com/tunex-app/tunex/internal/history"
	"github.com/tunex-app/tunex/internal/settings"
	"github.com/tunex-app/tunex/internal/workspace"
)

// flakyEngine succeeds until failAfter calls have been made, then reports
// unavailability, like an engine binary that got upgraded mid-campaign.
type flakyEngine struct {
	failAfter int
	calls     int
}

func (f *flakyEngine) Build(context.Context, *domain.Campaign, []history.Observation) ([]byte, error) {
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return nil, fmt.Errorf("engine gone: %w", domain.ErrOptimizerUnavailable)
	}
	return []byte("state"), nil
}

func (f *flakyEngine) Suggest(_ context.Context, _ *domain.Campaign, _ []byte, batchSize int) ([]domain.Row, []byte, error) {
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return nil, nil, fmt.Errorf("engine gone: %w", domain.ErrOptimizerUnavailable)
	}
	rows := make([]domain.Row, batchSize)
	for i := range rows {
		rows[i] = domain.Row{"temperature": 42.0, "solvent": "water"}
	}
	return rows, []byte("state"), nil
}

func labSpace() domain.ParameterSpace {
	return domain.ParameterSpace{Parameters: []domain.Parameter{
		domain.NewContinuous("temperature", 20, 90),
		domain.NewCategorical("solvent", []string{"water", "ethanol"}),
	}}
}

// TestCampaignLifecycle drives a campaign through create, generate, record,
// edit and a second generate across two service instances sharing a
// workspace on disk.
func TestCampaignLifecycle(t *testing.T) {
	root := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	settingsStore, err := settings.Open(t.TempDir() + "/settings.db")
	if err != nil {
		t.Fatal(err)
	}
	defer settingsStore.Close()

	eng := &flakyEngine{}
	svc, err := workspace.NewService(root, eng, workspace.Options{
		Logger: log, Settings: settingsStore, FallbackSeed: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	c, err := svc.CreateCampaign("lifecycle", labSpace(),
		[]domain.Objective{{Name: "yield", Direction: domain.Maximize}}, domain.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}

	batch, err := svc.GenerateNextBatch(context.Background(), c.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordResults(c.ID, batch.BatchID, []map[string]float64{
		{"yield": 0.4}, {"yield": 0.6}, {"yield": 0.5},
	}); err != nil {
		t.Fatal(err)
	}

	desc := "after first round"
	if _, err := svc.EditCampaign(c.ID, domain.Edit{Description: &desc}); err != nil {
		t.Fatal(err)
	}

	// A fresh service over the same workspace must see everything.
	svc2, err := workspace.NewService(root, eng, workspace.Options{
		Logger: log, Settings: settingsStore, FallbackSeed: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer svc2.Close()

	got, err := svc2.Campaign(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != desc {
		t.Errorf("Description = %q, want the persisted edit", got.Description)
	}
	batches, err := svc2.History(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 || batches[0].Status != domain.BatchCompleted {
		t.Fatalf("History() = %v, want one completed batch", batches)
	}

	if _, err := svc2.GenerateNextBatch(context.Background(), c.ID, 2); err != nil {
		t.Fatal(err)
	}
	batches, _ = svc2.History(c.ID)
	if len(batches) != 2 {
		t.Errorf("len(History()) = %d after second generation, want 2", len(batches))
	}

	recent, err := settingsStore.RecentCampaigns()
	if err != nil || len(recent) != 1 || recent[0].ID != c.ID {
		t.Errorf("RecentCampaigns() = (%v, %v), want the campaign", recent, err)
	}
}

// TestEngineOutageFallsBack checks that a mid-campaign engine outage degrades
// to random sampling without losing any history.
func TestEngineOutageFallsBack(t *testing.T) {
	root := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng := &flakyEngine{failAfter: 2}
	svc, err := workspace.NewService(root, eng, workspace.Options{Logger: log, FallbackSeed: 7})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	c, err := svc.CreateCampaign("outage", labSpace(),
		[]domain.Objective{{Name: "yield", Direction: domain.Maximize}}, domain.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}

	first, err := svc.GenerateNextBatch(context.Background(), c.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if first.Provenance != domain.FromOptimizer {
		t.Fatalf("first batch provenance = %s, want optimizer", first.Provenance)
	}

	second, err := svc.GenerateNextBatch(context.Background(), c.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if second.Provenance != domain.FromFallback {
		t.Errorf("second batch provenance = %s, want fallback", second.Provenance)
	}
	for i, row := range second.Rows {
		camp, _ := svc.Campaign(c.ID)
		if err := camp.Space.CheckRow(row); err != nil {
			t.Errorf("fallback row %d outside the space: %v", i, err)
		}
	}

	batches, err := svc.History(c.ID)
	if err != nil || len(batches) != 2 {
		t.Fatalf("History() = (%v, %v), want both batches", batches, err)
	}
}
