package api

import "errors"

var (
	// ErrInvalidTransition is returned when a state change violates the
	// transition table or targets a run that is already terminal. It always
	// indicates a programming or engine-invariant error and is never retried.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoActiveFlowRun is returned when a task is called outside of an
	// active flow run. The call fails before any run record is created.
	ErrNoActiveFlowRun = errors.New("tasks cannot be called outside of a flow")

	// ErrRunNotFound is returned when a run ID is unknown to the store.
	ErrRunNotFound = errors.New("run not found")
)
