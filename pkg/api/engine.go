package api

import "context"

// Engine orchestrates task and flow runs: it allocates dynamic keys, creates
// run records, resolves cache hits, drives state transitions, schedules
// retries, and hands out Futures.
type Engine interface {
	// RunFlow executes a flow synchronously: the flow body has finished by
	// the time RunFlow returns. The flow's outcome is on the Future; a
	// failing flow body does not produce an error here.
	RunFlow(ctx context.Context, flow *Flow, args ...any) (*Future, error)

	// SubmitFlow creates the flow run record immediately and queues the
	// execution for a dispatch worker. The returned Future resolves once a
	// worker has driven the run to a terminal state.
	SubmitFlow(ctx context.Context, flow *Flow, args ...any) (*Future, error)

	// Call invokes a task within the active flow run carried by ctx.
	// It fails with ErrNoActiveFlowRun when called outside a flow body,
	// before any run record is created.
	Call(ctx context.Context, task *Task, args ...any) (*Future, error)

	// GetRun returns the current record for a run.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRunStates returns every state the run has entered, in order.
	ListRunStates(ctx context.Context, id string) ([]State, error)

	// StartWorkers starts n dispatch workers that execute submitted flow
	// runs until Stop is called.
	StartWorkers(ctx context.Context, n int) error

	// Stop stops the dispatch workers and waits for in-flight flow runs.
	Stop()
}

type engineCtxKey struct{}

type flowRunCtxKey struct{}

// WithEngine attaches an Engine to the context. The engine does this for
// every flow body invocation so tasks can be called through the package
// helpers without threading the engine around.
func WithEngine(ctx context.Context, eng Engine) context.Context {
	return context.WithValue(ctx, engineCtxKey{}, eng)
}

// EngineFromContext returns the Engine attached by WithEngine.
func EngineFromContext(ctx context.Context) (Engine, bool) {
	eng, ok := ctx.Value(engineCtxKey{}).(Engine)
	return eng, ok
}

// WithFlowRun marks ctx as executing inside the flow run with the given ID.
func WithFlowRun(ctx context.Context, flowRunID string) context.Context {
	return context.WithValue(ctx, flowRunCtxKey{}, flowRunID)
}

// FlowRunIDFromContext returns the active flow run ID, if any.
func FlowRunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(flowRunCtxKey{}).(string)
	return id, ok
}
