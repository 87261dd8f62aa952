// Package flowrun provides a lightweight, embeddable task and flow run
// orchestration engine for Go.
//
// Flowrun tracks every task and flow invocation as a run: a record that
// moves through a fixed lifecycle (Pending, Running, Awaiting Retry,
// Completed, Failed, Cached), is retried on failure according to the task's
// policy, can be served from a result cache instead of re-executing, and is
// observed and awaited through a Future.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Engine
//  2. Flow
//  3. Task
//  4. Future
//  5. Observer
//
// # Engine
//
// The Engine creates run records, drives their state transitions against a
// pluggable run store, resolves cache hits, and schedules retries. Engines
// can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//
// # Flows and Tasks
//
// A Flow is a top-level unit of work; a Task is a unit of work invoked
// inside a flow body via Call. Tasks carry a retry policy and an optional
// cache-key function. Calling a task outside a flow fails immediately.
//
//	greet := flowrun.MustNewTask("greet",
//		func(ctx context.Context, args map[string]any) (any, error) {
//			return "hello " + args["name"].(string), nil
//		},
//		flowrun.WithParams("name"),
//		flowrun.WithRetries(2),
//	)
//
//	wf := flowrun.MustNewFlow("welcome",
//		func(ctx context.Context, args map[string]any) (any, error) {
//			fut, err := flowrun.Call(ctx, greet, args["name"])
//			if err != nil {
//				return nil, err
//			}
//			state, err := fut.Result(ctx)
//			if err != nil {
//				return nil, err
//			}
//			return state.Data, nil
//		},
//		flowrun.WithFlowParams("name"),
//	)
//
//	eng := flowrun.NewInMemoryEngine()
//	fut, _ := eng.RunFlow(ctx, wf, "world")
//	state, _ := fut.Result(ctx)
//
// # Futures
//
// Every call returns a Future immediately. Result blocks until the run is
// terminal and returns the terminal state, whose Data holds the result
// value (Completed, Cached) or the error that exhausted the retries
// (Failed). A task failure never surfaces as an error from Call or RunFlow;
// it is only observable on the Future. Passing a Future as an argument to
// another task resolves it first, so task results chain like ordinary
// values.
//
// # Caching
//
// A task with a cache-key function computes a key from the call context and
// the resolved argument map. If a previous successful run produced the same
// key, the new run transitions straight from Pending to Cached without
// executing the body. The cache lives for the engine's lifetime and spans
// flow runs. TaskInputHash is a ready-made key function that hashes the
// task name and its arguments, independent of positional vs named calling
// style.
//
// # Observers
//
// Observers receive run creation, state transition, cache hit, and retry
// events. Logging (log/slog), atomic-counter, and Prometheus observers are
// included and can be combined with NewCompositeObserver.
package flowrun
