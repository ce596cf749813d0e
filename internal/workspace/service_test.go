package workspace

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tunex-app/tunex/internal/domain"
	"github.com/tunex-app/tunex/internal/history"
)

// echoEngine returns in-domain rows for the test space.
type echoEngine struct{}

func (echoEngine) Build(context.Context, *domain.Campaign, []history.Observation) ([]byte, error) {
	return []byte("s0"), nil
}

func (echoEngine) Suggest(_ context.Context, _ *domain.Campaign, _ []byte, batchSize int) ([]domain.Row, []byte, error) {
	rows := make([]domain.Row, batchSize)
	for i := range rows {
		rows[i] = domain.Row{"x": 1.5, "y": "A"}
	}
	return rows, []byte("s1"), nil
}

func testSpace() domain.ParameterSpace {
	return domain.ParameterSpace{Parameters: []domain.Parameter{
		domain.NewContinuous("x", 0, 10),
		domain.NewCategorical("y", []string{"A", "B"}),
	}}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(t.TempDir(), echoEngine{}, Options{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		FallbackSeed: 1,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestCreateAndListCampaigns(t *testing.T) {
	s := newTestService(t)

	c, err := s.CreateCampaign("screening", testSpace(),
		[]domain.Objective{{Name: "z", Direction: domain.Maximize}}, domain.DefaultSettings())
	if err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}

	all, err := s.ListCampaigns()
	if err != nil {
		t.Fatalf("ListCampaigns() error = %v", err)
	}
	if len(all) != 1 || all[0].ID != c.ID {
		t.Errorf("ListCampaigns() = %v, want the created campaign", all)
	}

	got, err := s.Campaign(c.ID)
	if err != nil {
		t.Fatalf("Campaign() error = %v", err)
	}
	if got.Name != "screening" || got.Version != 1 {
		t.Errorf("Campaign() = %+v, want version-1 screening", got)
	}
}

func TestCreateCampaignRejectsInvalidSpec(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateCampaign("", testSpace(), nil, domain.DefaultSettings())
	if !domain.IsValidation(err) {
		t.Errorf("CreateCampaign(invalid) error = %v, want ValidationError", err)
	}
}

func TestGenerateRecordRoundTrip(t *testing.T) {
	s := newTestService(t)
	c, _ := s.CreateCampaign("roundtrip", testSpace(),
		[]domain.Objective{{Name: "z", Direction: domain.Maximize}}, domain.DefaultSettings())

	batch, err := s.GenerateNextBatch(context.Background(), c.ID, 2)
	if err != nil {
		t.Fatalf("GenerateNextBatch() error = %v", err)
	}
	if batch.Provenance != domain.FromOptimizer {
		t.Errorf("Provenance = %s, want optimizer", batch.Provenance)
	}

	already, err := s.RecordResults(c.ID, batch.BatchID, []map[string]float64{{"z": 1.0}, {"z": 2.0}})
	if err != nil || already {
		t.Fatalf("RecordResults() = (%v, %v), want (false, nil)", already, err)
	}

	batches, err := s.History(c.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(batches) != 1 || batches[0].Status != domain.BatchCompleted {
		t.Errorf("History() = %v, want one completed batch", batches)
	}

	results, err := s.ResultsForBatch(c.ID, batch.BatchID)
	if err != nil || len(results) != 2 {
		t.Errorf("ResultsForBatch() = (%v, %v), want 2 results", results, err)
	}
}

func TestOrchestratorInstanceIsReused(t *testing.T) {
	s := newTestService(t)
	c, _ := s.CreateCampaign("reuse", testSpace(),
		[]domain.Objective{{Name: "z", Direction: domain.Maximize}}, domain.DefaultSettings())

	a, err := s.orchestratorFor(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.orchestratorFor(c.ID)
	if a != b {
		t.Error("orchestratorFor returned two instances for one campaign")
	}
}

func TestUnknownCampaign(t *testing.T) {
	s := newTestService(t)
	if _, err := s.History("no-such-id"); err == nil {
		t.Error("History(unknown) = nil error")
	}
}

func TestWatcherIgnoresOwnWrites(t *testing.T) {
	s := newTestService(t)
	c, _ := s.CreateCampaign("self-write", testSpace(),
		[]domain.Objective{{Name: "z", Direction: domain.Maximize}}, domain.DefaultSettings())

	before, err := s.orchestratorFor(c.ID)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	s.watcher.SetDebounce(10 * time.Millisecond)

	name := "renamed by ourselves"
	if _, err := s.EditCampaign(c.ID, domain.Edit{Name: &name}); err != nil {
		t.Fatal(err)
	}

	// Give the watcher time to see the rename and run its callback.
	time.Sleep(500 * time.Millisecond)

	s.mu.Lock()
	after := s.orchestrators[c.ID]
	s.mu.Unlock()
	if after != before {
		t.Error("our own SaveConfig dropped the live orchestrator")
	}
}

func TestWatcherReloadsChangedCampaign(t *testing.T) {
	s := newTestService(t)
	c, _ := s.CreateCampaign("watched", testSpace(),
		[]domain.Objective{{Name: "z", Direction: domain.Maximize}}, domain.DefaultSettings())

	// Instantiate the orchestrator, then simulate an external edit.
	if _, err := s.orchestratorFor(c.ID); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	s.watcher.SetDebounce(10 * time.Millisecond)

	name := "edited externally"
	external, err := NewService(s.root, echoEngine{}, Options{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		FallbackSeed: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer external.Close()
	if _, err := external.EditCampaign(c.ID, domain.Edit{Name: &name}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		got, err := s.Campaign(c.ID)
		if err == nil && got.Name == name {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("campaign name = %q, external edit never picked up", got.Name)
		case <-time.After(20 * time.Millisecond):
		}
	}
}
