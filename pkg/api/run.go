package api

import "time"

// RunKind distinguishes task runs from flow runs. Both kinds move through
// the identical state machine.
type RunKind string

const (
	TaskRun RunKind = "TASK"
	FlowRun RunKind = "FLOW"
)

// Run is one tracked execution attempt-sequence of a task or flow.
//
// The engine exclusively creates and mutates a Run during its lifetime; the
// run store holds the durable copy, and Futures only ever reference a run by
// ID. State never regresses: it is updated solely through store-validated
// transitions, and the full ordered history is available via ListRunStates.
type Run struct {
	// ID is the opaque unique identifier, assigned at creation.
	ID string

	// Kind is TaskRun or FlowRun.
	Kind RunKind

	// Name is the task or flow name this run belongs to.
	Name string

	// FlowRunID is the ID of the owning flow run. Empty for flow runs.
	FlowRunID string

	// FlowVersion is the optional version of the flow definition.
	// Only set on flow runs.
	FlowVersion string

	// DynamicKey identifies the Nth call to this task within the owning
	// flow run ("0", "1", ...). Empty for flow runs. It exists purely for
	// observability and has no effect on caching or retries.
	DynamicKey string

	// State is the most recently entered state.
	State State

	CreatedAt time.Time
}
