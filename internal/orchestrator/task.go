package orchestrator

import (
	"context"
	"sync"

	"github.com/tunex-app/tunex/internal/domain"
)

// Task is one in-flight generation run. Callers poll State for progress,
// Cancel to abort, and Wait for the outcome.
type Task struct {
	mu     sync.Mutex
	state  State
	batch  *domain.RunBatch
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// StartGeneration launches GenerateNextBatch in the background and returns a
// handle to it. Cancelling the task during the optimizer attempt aborts the
// run; the fallback is never substituted for a user cancel.
func (o *Orchestrator) StartGeneration(ctx context.Context, batchSize int) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{state: StateIdle, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer cancel()
		batch, err := o.generate(ctx, batchSize, t.observe)
		t.mu.Lock()
		t.batch, t.err = batch, err
		t.mu.Unlock()
	}()
	return t
}

func (t *Task) observe(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// State returns the stage the run is currently in. After completion it
// reports StateIdle.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Cancel aborts the run. The outcome is reported by Wait.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the run finishes and returns its outcome.
func (t *Task) Wait() (*domain.RunBatch, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batch, t.err
}
