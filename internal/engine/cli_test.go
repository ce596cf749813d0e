package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tunex-app/tunex/internal/domain"
	"github.com/tunex-app/tunex/internal/history"
)

// scriptedCLI wraps a shell script standing in for the engine binary.
func scriptedCLI(t *testing.T, script string, timeout time.Duration) *CLIEngine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return NewCLIEngine("/bin/sh", []string{path}, timeout)
}

func TestCLIEngineBuild(t *testing.T) {
	c := testCampaign(t)
	reqFile := filepath.Join(t.TempDir(), "request.json")
	// c3RhdGUtMQ== is "state-1".
	eng := scriptedCLI(t, fmt.Sprintf("cat > %s\necho '{\"state\":\"c3RhdGUtMQ==\"}'", reqFile), 0)

	training := []history.Observation{{
		Values:       domain.Row{"x": 1.0, "y": "A"},
		Measurements: map[string]float64{"z": 0.5},
	}}
	state, err := eng.Build(context.Background(), c, training)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if string(state) != "state-1" {
		t.Errorf("state = %q, want state-1", state)
	}

	data, err := os.ReadFile(reqFile)
	if err != nil {
		t.Fatalf("the engine never received a request: %v", err)
	}
	var req engineRequest
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("request is not valid JSON: %v", err)
	}
	if req.Op != "build" || req.RequestID == "" {
		t.Errorf("request = {op:%q id:%q}, want a build with an ID", req.Op, req.RequestID)
	}
	if len(req.Training) != 1 || req.Training[0].Measurements["z"] != 0.5 {
		t.Errorf("training = %+v, want the observation", req.Training)
	}
	if len(req.Campaign) == 0 {
		t.Error("request carries no campaign payload")
	}
}

func TestCLIEngineSuggest(t *testing.T) {
	c := testCampaign(t)
	reqFile := filepath.Join(t.TempDir(), "request.json")
	// bmV4dA== is "next".
	eng := scriptedCLI(t, fmt.Sprintf(
		"cat > %s\necho '{\"rows\":[{\"x\":1.5,\"y\":\"A\"},{\"x\":2.0,\"y\":\"B\"}],\"state\":\"bmV4dA==\"}'", reqFile), 0)

	rows, state, err := eng.Suggest(context.Background(), c, []byte("prior"), 2)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(rows) != 2 || rows[0]["x"] != 1.5 || rows[1]["y"] != "B" {
		t.Errorf("rows = %v, want the two suggested rows", rows)
	}
	if string(state) != "next" {
		t.Errorf("state = %q, want next", state)
	}

	data, err := os.ReadFile(reqFile)
	if err != nil {
		t.Fatal(err)
	}
	var req engineRequest
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatal(err)
	}
	if req.Op != "suggest" || req.BatchSize != 2 {
		t.Errorf("request = {op:%q batch_size:%d}, want a suggest for 2", req.Op, req.BatchSize)
	}
	if string(req.State) != "prior" {
		t.Errorf("request state = %q, want the prior blob", req.State)
	}
}

func TestCLIEngineNonZeroExit(t *testing.T) {
	eng := scriptedCLI(t, "echo 'surrogate fit failed' >&2\nexit 3", 0)
	_, err := eng.Build(context.Background(), testCampaign(t), nil)
	if !errors.Is(err, domain.ErrOptimizerUnavailable) {
		t.Fatalf("Build(exit 3) error = %v, want ErrOptimizerUnavailable", err)
	}
	if !strings.Contains(err.Error(), "surrogate fit failed") {
		t.Errorf("error %q does not surface the engine's stderr", err)
	}
}

func TestCLIEngineMalformedStdout(t *testing.T) {
	eng := scriptedCLI(t, "echo 'not json at all'", 0)
	_, _, err := eng.Suggest(context.Background(), testCampaign(t), nil, 1)
	if !errors.Is(err, domain.ErrOptimizerUnavailable) {
		t.Errorf("Suggest(garbage stdout) error = %v, want ErrOptimizerUnavailable", err)
	}
}

func TestCLIEngineReportedError(t *testing.T) {
	eng := scriptedCLI(t, "echo '{\"error\":\"no feasible points\"}'", 0)
	_, _, err := eng.Suggest(context.Background(), testCampaign(t), nil, 1)
	if !errors.Is(err, domain.ErrOptimizerUnavailable) {
		t.Fatalf("Suggest(error field) error = %v, want ErrOptimizerUnavailable", err)
	}
	if !strings.Contains(err.Error(), "no feasible points") {
		t.Errorf("error %q does not carry the engine's message", err)
	}
}

func TestCLIEngineDeadlineKillsProcess(t *testing.T) {
	eng := scriptedCLI(t, "sleep 30", 100*time.Millisecond)
	start := time.Now()
	_, err := eng.Build(context.Background(), testCampaign(t), nil)
	if !errors.Is(err, domain.ErrOptimizerUnavailable) {
		t.Errorf("Build(deadline) error = %v, want ErrOptimizerUnavailable", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Build took %v, the deadline did not kill the process", elapsed)
	}
}

func TestCLIEngineMissingBinary(t *testing.T) {
	eng := NewCLIEngine(filepath.Join(t.TempDir(), "no-such-engine"), nil, 0)
	_, err := eng.Build(context.Background(), testCampaign(t), nil)
	if !errors.Is(err, domain.ErrOptimizerUnavailable) {
		t.Errorf("Build(missing binary) error = %v, want ErrOptimizerUnavailable", err)
	}
}
