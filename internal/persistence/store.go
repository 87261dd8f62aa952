package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jpkoskela/flowrun/pkg/api"
)

var (
	// ErrRunNotFound is returned when a run ID is unknown to the store.
	ErrRunNotFound = api.ErrRunNotFound

	// ErrRunExists is returned when creating a run with an ID that is
	// already present.
	ErrRunExists = errors.New("run already exists")
)

// RunStore is durable keyed storage for run records and their state
// histories. The engine is its only writer; Futures and external observers
// read through it.
//
// AppendState is the store-side half of the state machine: implementations
// must validate the transition against the run's last recorded state and
// make the append visible atomically, so two observers never see divergent
// histories.
type RunStore interface {
	// CreateRun stores a new run record. run.State becomes the first
	// history entry (the engine always creates runs in Pending).
	CreateRun(ctx context.Context, run *api.Run) error

	// GetRun returns the run with its most recent state.
	GetRun(ctx context.Context, id string) (*api.Run, error)

	// AppendState appends a state to the run's history after validating
	// the transition. It fails with ErrRunNotFound for unknown IDs and
	// with api.ErrInvalidTransition for illegal transitions.
	AppendState(ctx context.Context, id string, state api.State) error

	// ListStates returns every state the run has entered, in append order.
	ListStates(ctx context.Context, id string) ([]api.State, error)
}

// validateTransition is shared by store implementations.
func validateTransition(last api.State, next api.State) error {
	if last.IsTerminal() {
		return fmt.Errorf("%w: run is terminal in %s", api.ErrInvalidTransition, last.Name)
	}
	if !api.CanTransition(last.Kind, next.Kind) {
		return fmt.Errorf("%w: %s -> %s", api.ErrInvalidTransition, last.Name, next.Name)
	}
	return nil
}
