package flowrun

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/jpkoskela/flowrun/internal/engine"
	"github.com/jpkoskela/flowrun/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Task                 = api.Task
	Flow                 = api.Flow
	Run                  = api.Run
	RunKind              = api.RunKind
	State                = api.State
	StateKind            = api.StateKind
	TaskFunc             = api.TaskFunc
	FlowFunc             = api.FlowFunc
	Future               = api.Future
	NamedArg             = api.NamedArg
	CallContext          = api.CallContext
	CacheKeyFunc         = api.CacheKeyFunc
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	PrometheusObserver   = api.PrometheusObserver
)

// Re-export common helpers.

var (
	Named                 = api.Named
	TaskInputHash         = api.TaskInputHash
	ConstantCacheKey      = api.ConstantCacheKey
	NewLoggingObserver    = api.NewLoggingObserver
	NewCompositeObserver  = api.NewCompositeObserver
	NewPrometheusObserver = api.NewPrometheusObserver
)

// Re-export state kinds and sentinel errors for convenience.

const (
	TaskRun = api.TaskRun
	FlowRun = api.FlowRun

	StatePending       = api.StatePending
	StateRunning       = api.StateRunning
	StateAwaitingRetry = api.StateAwaitingRetry
	StateCompleted     = api.StateCompleted
	StateFailed        = api.StateFailed
	StateCached        = api.StateCached
)

var (
	ErrInvalidTransition = api.ErrInvalidTransition
	ErrNoActiveFlowRun   = api.ErrNoActiveFlowRun
	ErrRunNotFound       = api.ErrRunNotFound
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by an in-memory
// run store.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given
// Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewSQLiteEngine returns an Engine that persists run records in a SQLite
// database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// NewPostgresEngine returns an Engine that persists run records in
// PostgreSQL.
func NewPostgresEngine(db *sql.DB) (Engine, error) {
	return engine.NewPostgresEngine(db)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the
// given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewPostgresEngineWithObserver(db, obs)
}

// NewRedisEngine returns an Engine that persists run records in Redis.
func NewRedisEngine(client *redis.Client) Engine {
	return engine.NewRedisEngine(client)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given
// Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs Observer) Engine {
	return engine.NewRedisEngineWithObserver(client, obs)
}

// Convenience helpers that just forward to the underlying Engine.

// RunFlow runs a flow synchronously on eng.
func RunFlow(ctx context.Context, eng Engine, flow *Flow, args ...any) (*Future, error) {
	return eng.RunFlow(ctx, flow, args...)
}

// SubmitFlow queues a flow run for asynchronous execution on eng's workers.
func SubmitFlow(ctx context.Context, eng Engine, flow *Flow, args ...any) (*Future, error) {
	return eng.SubmitFlow(ctx, flow, args...)
}

// Call invokes a task inside a flow body. The context passed to the flow
// function carries the engine and the active flow run; calling from
// anywhere else fails with ErrNoActiveFlowRun before any run is created.
func Call(ctx context.Context, task *Task, args ...any) (*Future, error) {
	eng, ok := api.EngineFromContext(ctx)
	if !ok {
		return nil, api.ErrNoActiveFlowRun
	}
	return eng.Call(ctx, task, args...)
}

// GetRun fetches a run record by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*Run, error) {
	return eng.GetRun(ctx, id)
}

// ListRunStates lists every state a run has entered, in order.
func ListRunStates(ctx context.Context, eng Engine, id string) ([]State, error) {
	return eng.ListRunStates(ctx, id)
}
