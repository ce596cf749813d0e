package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/tunex-app/tunex/internal/domain"
	"github.com/tunex-app/tunex/internal/history"
)

// CLIEngine drives an external engine binary. Each call spawns one process,
// writes a JSON request to stdin and reads a JSON response from stdout. The
// process is killed when the deadline passes.
type CLIEngine struct {
	command string
	args    []string
	timeout time.Duration
}

// NewCLIEngine returns an engine that invokes the given command. A zero
// timeout means the caller's context is the only deadline.
func NewCLIEngine(command string, args []string, timeout time.Duration) *CLIEngine {
	return &CLIEngine{command: command, args: args, timeout: timeout}
}

// engineRequest is the wire format written to the engine's stdin.
type engineRequest struct {
	Op        string            `json:"op"`
	RequestID string            `json:"request_id"`
	Campaign  json.RawMessage   `json:"campaign"`
	State     []byte            `json:"state,omitempty"`
	BatchSize int               `json:"batch_size,omitempty"`
	Training  []trainingRecord  `json:"training,omitempty"`
}

type trainingRecord struct {
	Values       domain.Row         `json:"values"`
	Measurements map[string]float64 `json:"measurements"`
}

// engineResponse is the wire format read from the engine's stdout.
type engineResponse struct {
	Rows  []domain.Row `json:"rows,omitempty"`
	State []byte       `json:"state"`
	Error string       `json:"error,omitempty"`
}

// Build asks the engine to construct a fresh state seeded with the given
// observations.
func (e *CLIEngine) Build(ctx context.Context, c *domain.Campaign, training []history.Observation) ([]byte, error) {
	req, err := e.newRequest("build", c)
	if err != nil {
		return nil, err
	}
	for _, obs := range training {
		req.Training = append(req.Training, trainingRecord{Values: obs.Values, Measurements: obs.Measurements})
	}
	resp, err := e.invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.State, nil
}

// Suggest asks the engine for the next batch of rows.
func (e *CLIEngine) Suggest(ctx context.Context, c *domain.Campaign, state []byte, batchSize int) ([]domain.Row, []byte, error) {
	req, err := e.newRequest("suggest", c)
	if err != nil {
		return nil, nil, err
	}
	req.State = state
	req.BatchSize = batchSize
	resp, err := e.invoke(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return resp.Rows, resp.State, nil
}

func (e *CLIEngine) newRequest(op string, c *domain.Campaign) (*engineRequest, error) {
	encoded, err := domain.EncodeCampaign(c)
	if err != nil {
		return nil, fmt.Errorf("encoding campaign for engine: %w", err)
	}
	return &engineRequest{Op: op, RequestID: uuid.NewString(), Campaign: encoded}, nil
}

// invoke runs one engine process to completion. Any failure, from a missing
// binary to a deadline kill to garbage on stdout, comes back wrapping
// ErrOptimizerUnavailable so the caller can fall back uniformly.
func (e *CLIEngine) invoke(ctx context.Context, req *engineRequest) (*engineResponse, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding engine request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.command, e.args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, e.unavailable(req, fmt.Errorf("running %s: %w (stderr: %s)", e.command, err, firstLine(stderr.Bytes())))
	}

	var resp engineResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, e.unavailable(req, fmt.Errorf("decoding engine response: %w", err))
	}
	if resp.Error != "" {
		return nil, e.unavailable(req, fmt.Errorf("engine reported: %s", resp.Error))
	}
	return &resp, nil
}

func (e *CLIEngine) unavailable(req *engineRequest, cause error) error {
	return fmt.Errorf("engine %s request %s: %v: %w", req.Op, req.RequestID, cause, domain.ErrOptimizerUnavailable)
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}
