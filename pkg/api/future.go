package api

import (
	"context"
	"time"
)

// RunReader is the read-only view of the run store a Future needs.
// The Engine satisfies it.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRunStates(ctx context.Context, id string) ([]State, error)
}

// Future is a caller-held handle to a run whose terminal state may not be
// known yet. It holds only the run ID and a read reference to the store,
// so it is safe to pass across task boundaries: when used as an argument to
// another task call, the engine resolves it to its carried data first.
type Future struct {
	runID string
	runs  RunReader
}

// NewFuture wraps an existing run. It never blocks.
func NewFuture(runID string, runs RunReader) *Future {
	return &Future{runID: runID, runs: runs}
}

// RunID returns the ID of the referenced run.
func (f *Future) RunID() string { return f.runID }

// resultPollInterval is how often Result re-reads a non-terminal run.
const resultPollInterval = 2 * time.Millisecond

// Result blocks until the referenced run reaches a terminal state and
// returns that state, so callers can inspect Name and Data. Failures do not
// surface as errors here: a failed run yields its Failed state, with the
// causing error in Data. The returned error reports store-level problems
// or context cancellation only.
//
// Waiting is unbounded; bound it with a context deadline if needed.
func (f *Future) Result(ctx context.Context) (State, error) {
	for {
		run, err := f.runs.GetRun(ctx, f.runID)
		if err != nil {
			return State{}, err
		}
		if run.State.IsTerminal() {
			return run.State, nil
		}

		select {
		case <-ctx.Done():
			return State{}, ctx.Err()
		case <-time.After(resultPollInterval):
		}
	}
}
