package engine

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jpkoskela/flowrun/internal/dispatch"
	"github.com/jpkoskela/flowrun/internal/persistence"
	"github.com/jpkoskela/flowrun/pkg/api"
)

// engineImpl orchestrates task and flow runs against a RunStore.
//
// Within one flow run, task calls execute in program order; parallelism
// exists only across flow runs (synchronous RunFlow calls from different
// goroutines, or submitted runs executed by dispatch workers). The cache
// and the dynamic-key counters are the only shared mutable state and are
// guarded for that case.
type engineImpl struct {
	runs     persistence.RunStore
	cache    *resultCache
	keys     *keyAllocator
	observer api.Observer
	sleep    sleepFunc
	queue    *dispatch.Queue

	mu      sync.Mutex // guards worker lifecycle
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Store    persistence.RunStore
	Observer api.Observer

	// Sleep overrides the retry delay wait. Tests substitute a recording
	// implementation; nil means a real context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error

	// QueueCapacity bounds the async submission queue (default 1024).
	QueueCapacity int
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	sleep := sleepFunc(defaultSleep)
	if cfg.Sleep != nil {
		sleep = cfg.Sleep
	}
	return &engineImpl{
		runs:     cfg.Store,
		cache:    newResultCache(),
		keys:     newKeyAllocator(),
		observer: obs,
		sleep:    sleep,
		queue:    dispatch.NewQueue(cfg.QueueCapacity),
	}
}

// NewInMemoryEngine returns an Engine backed entirely by an in-memory
// run store.
func NewInMemoryEngine() api.Engine {
	return NewEngineWithConfig(Config{Store: persistence.NewInMemoryStore()})
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given
// Observer.
func NewInMemoryEngineWithObserver(obs api.Observer) api.Engine {
	return NewEngineWithConfig(Config{Store: persistence.NewInMemoryStore(), Observer: obs})
}

// NewSQLiteEngine returns an Engine that persists run records in SQLite.
func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Store: store}), nil
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Store: store, Observer: obs}), nil
}

// NewPostgresEngine returns an Engine that persists run records in
// PostgreSQL.
func NewPostgresEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewPostgresRunStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Store: store}), nil
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the
// given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewPostgresRunStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Store: store, Observer: obs}), nil
}

// NewRedisEngine returns an Engine that persists run records in Redis.
func NewRedisEngine(client *redis.Client) api.Engine {
	return NewEngineWithConfig(Config{Store: persistence.NewRedisRunStore(client, "flowrun:")})
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given
// Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs api.Observer) api.Engine {
	return NewEngineWithConfig(Config{
		Store:    persistence.NewRedisRunStore(client, "flowrun:"),
		Observer: obs,
	})
}

func (e *engineImpl) GetRun(ctx context.Context, id string) (*api.Run, error) {
	return e.runs.GetRun(ctx, id)
}

func (e *engineImpl) ListRunStates(ctx context.Context, id string) ([]api.State, error) {
	return e.runs.ListStates(ctx, id)
}

// transition appends the state to the run's durable history and updates the
// engine's working copy. The store validates the edge, so an invalid
// transition never becomes visible.
func (e *engineImpl) transition(ctx context.Context, run *api.Run, state api.State) error {
	if err := e.runs.AppendState(ctx, run.ID, state); err != nil {
		return err
	}
	run.State = state
	e.observer.OnStateChange(ctx, run, state)
	return nil
}

func (e *engineImpl) newRun(kind api.RunKind, name string) *api.Run {
	return &api.Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Name:      name,
		State:     api.Pending(),
		CreatedAt: time.Now(),
	}
}

func (e *engineImpl) RunFlow(ctx context.Context, flow *api.Flow, args ...any) (*api.Future, error) {
	run, bound, err := e.prepareFlowRun(ctx, flow, args)
	if err != nil {
		return nil, err
	}
	fut := api.NewFuture(run.ID, e)
	e.executeFlow(ctx, flow, run, bound)
	return fut, nil
}

func (e *engineImpl) SubmitFlow(ctx context.Context, flow *api.Flow, args ...any) (*api.Future, error) {
	run, bound, err := e.prepareFlowRun(ctx, flow, args)
	if err != nil {
		return nil, err
	}

	sub := dispatch.Submission{
		RunID: run.ID,
		Execute: func(workerCtx context.Context) {
			e.executeFlow(workerCtx, flow, run, bound)
		},
	}
	if err := e.queue.Enqueue(ctx, sub); err != nil {
		return nil, err
	}
	return api.NewFuture(run.ID, e), nil
}

// prepareFlowRun validates the definition, binds arguments, and creates the
// run record in Pending. Both the synchronous and queued paths share it so
// a Future exists before any execution starts.
func (e *engineImpl) prepareFlowRun(ctx context.Context, flow *api.Flow, args []any) (*api.Run, map[string]any, error) {
	if err := flow.Validate(); err != nil {
		return nil, nil, err
	}

	resolved, err := e.resolveFutureArgs(ctx, args)
	if err != nil {
		return nil, nil, err
	}
	bound, err := api.BindArguments(flow.Params, flow.Defaults, resolved)
	if err != nil {
		return nil, nil, err
	}

	run := e.newRun(api.FlowRun, flow.Name)
	run.FlowVersion = flow.Version
	if err := e.runs.CreateRun(ctx, run); err != nil {
		return nil, nil, err
	}
	e.observer.OnRunCreated(ctx, run)
	return run, bound, nil
}

// executeFlow drives a flow run to a terminal state. The flow body's error
// is recorded on the run, never returned: callers observe failure through
// the Future, the same way task failures surface.
func (e *engineImpl) executeFlow(ctx context.Context, flow *api.Flow, run *api.Run, bound map[string]any) {
	defer e.keys.release(run.ID)

	if err := e.transition(ctx, run, api.Running()); err != nil {
		return
	}

	flowCtx := api.WithFlowRun(api.WithEngine(ctx, e), run.ID)
	out, err := flow.Fn(flowCtx, bound)
	if err != nil {
		_ = e.transition(ctx, run, api.Failed(err))
		return
	}
	_ = e.transition(ctx, run, api.Completed(out))
}

func (e *engineImpl) Call(ctx context.Context, task *api.Task, args ...any) (*api.Future, error) {
	// Fail before creating any run record: task calls are only legal
	// inside a flow body.
	flowRunID, ok := api.FlowRunIDFromContext(ctx)
	if !ok {
		return nil, api.ErrNoActiveFlowRun
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	resolved, err := e.resolveFutureArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	bound, err := api.BindArguments(task.Params, task.Defaults, resolved)
	if err != nil {
		return nil, err
	}

	run := e.newRun(api.TaskRun, task.Name)
	run.FlowRunID = flowRunID
	run.DynamicKey = e.keys.next(flowRunID, task.Name)
	if err := e.runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	e.observer.OnRunCreated(ctx, run)

	fut := api.NewFuture(run.ID, e)

	// Cache resolution. A hit transitions Pending -> Cached without ever
	// entering Running; the body is not executed.
	var cacheKey string
	hasKey := false
	if task.CacheKeyFn != nil {
		cc := api.CallContext{
			FlowRunID: flowRunID,
			TaskRunID: run.ID,
			TaskName:  task.Name,
		}
		cacheKey = task.CacheKeyFn(cc, bound)
		hasKey = true

		if value, hit := e.cache.get(cacheKey); hit {
			if err := e.transition(ctx, run, api.Cached(value)); err != nil {
				return nil, err
			}
			e.observer.OnCacheHit(ctx, run, cacheKey)
			return fut, nil
		}
	}

	if err := e.executeTask(ctx, task, run, bound, cacheKey, hasKey); err != nil {
		return nil, err
	}
	return fut, nil
}

// executeTask runs the body with retries. The loop is explicit rather than
// recursive so stack depth stays bounded and the history reads top to
// bottom: Pending, Running, (Awaiting Retry, Running) per retry, then one
// terminal state. The returned error reports store failures only; the
// task's own failure lands in the terminal Failed state.
func (e *engineImpl) executeTask(
	ctx context.Context,
	task *api.Task,
	run *api.Run,
	bound map[string]any,
	cacheKey string,
	hasKey bool,
) error {
	attempt := 0
	for {
		if err := e.transition(ctx, run, api.Running()); err != nil {
			return err
		}

		out, err := task.Fn(ctx, bound)
		if err == nil {
			if err := e.transition(ctx, run, api.Completed(out)); err != nil {
				return err
			}
			// Populate only after the Completed transition is recorded;
			// failed executions are never cached.
			if hasKey {
				e.cache.put(cacheKey, out)
			}
			return nil
		}

		if !shouldRetry(attempt, task.Retries) {
			return e.transition(ctx, run, api.Failed(err))
		}

		if terr := e.transition(ctx, run, api.AwaitingRetry()); terr != nil {
			return terr
		}
		e.observer.OnRetry(ctx, run, attempt, task.RetryDelay)
		if serr := e.sleep(ctx, task.RetryDelay); serr != nil {
			// Cancelled mid-wait: terminate with the failure that put us
			// here, not the cancellation.
			return e.transitionFromRetryWait(ctx, run, err)
		}
		attempt++
	}
}

// transitionFromRetryWait finishes a run whose retry wait was cancelled.
// cause is the task's last failure, which becomes the Failed payload.
// AwaitingRetry only permits Running, so pass through it before failing.
func (e *engineImpl) transitionFromRetryWait(ctx context.Context, run *api.Run, cause error) error {
	if err := e.transition(ctx, run, api.Running()); err != nil {
		return err
	}
	return e.transition(ctx, run, api.Failed(cause))
}

// resolveFutureArgs replaces Future-valued arguments (bare or named) with
// the data carried by their terminal state, blocking as needed. Upstream
// runs are therefore fully resolved before the callee's run is created.
func (e *engineImpl) resolveFutureArgs(ctx context.Context, args []any) ([]any, error) {
	resolved := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case *api.Future:
			state, err := v.Result(ctx)
			if err != nil {
				return nil, err
			}
			resolved[i] = state.Data
		case api.NamedArg:
			if fut, ok := v.Value.(*api.Future); ok {
				state, err := fut.Result(ctx)
				if err != nil {
					return nil, err
				}
				v.Value = state.Data
			}
			resolved[i] = v
		default:
			resolved[i] = arg
		}
	}
	return resolved, nil
}

// StartWorkers starts n goroutines that execute submitted flow runs until
// Stop is called. If StartWorkers is called again without Stop, it returns
// an error.
func (e *engineImpl) StartWorkers(ctx context.Context, n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errors.New("flowrun: workers already started")
	}
	if n <= 0 {
		n = 1
	}

	// Stop cancels only the intake context, so workers stop picking up new
	// submissions; an in-flight run keeps the caller's context and runs to
	// completion, retry waits included.
	intake, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	for i := 0; i < n; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				sub, err := e.queue.Dequeue(intake)
				if err != nil {
					return
				}
				sub.Execute(ctx)
			}
		}()
	}
	return nil
}

// Stop closes the worker intake and waits for in-flight flow runs to
// finish undisturbed. It is safe to call when no workers are running.
func (e *engineImpl) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
}
