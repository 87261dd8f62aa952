package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay run execution.
type Observer interface {
	// OnRunCreated is called once per run, right after the run record is
	// created in the store (state Pending).
	OnRunCreated(ctx context.Context, run *Run)

	// OnStateChange is called after every recorded state transition.
	OnStateChange(ctx context.Context, run *Run, state State)

	// OnCacheHit is called when a run is served from the cache instead of
	// executing, with the key that matched.
	OnCacheHit(ctx context.Context, run *Run, key string)

	// OnRetry is called when a failed attempt is about to be retried,
	// before the retry delay elapses. attempt is 0-based.
	OnRetry(ctx context.Context, run *Run, attempt int, delay time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunCreated(ctx context.Context, run *Run)                         {}
func (NoopObserver) OnStateChange(ctx context.Context, run *Run, state State)           {}
func (NoopObserver) OnCacheHit(ctx context.Context, run *Run, key string)               {}
func (NoopObserver) OnRetry(ctx context.Context, run *Run, attempt int, d time.Duration) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunCreated(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunCreated(ctx, run)
	}
}

func (c *CompositeObserver) OnStateChange(ctx context.Context, run *Run, state State) {
	for _, o := range c.observers {
		o.OnStateChange(ctx, run, state)
	}
}

func (c *CompositeObserver) OnCacheHit(ctx context.Context, run *Run, key string) {
	for _, o := range c.observers {
		o.OnCacheHit(ctx, run, key)
	}
}

func (c *CompositeObserver) OnRetry(ctx context.Context, run *Run, attempt int, d time.Duration) {
	for _, o := range c.observers {
		o.OnRetry(ctx, run, attempt, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunCreated(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_created",
		slog.String("run_id", run.ID),
		slog.String("kind", string(run.Kind)),
		slog.String("name", run.Name),
		slog.String("dynamic_key", run.DynamicKey),
	)
}

func (o *LoggingObserver) OnStateChange(ctx context.Context, run *Run, state State) {
	o.Logger.InfoContext(ctx, "run_state_change",
		slog.String("run_id", run.ID),
		slog.String("name", run.Name),
		slog.String("state", state.Name),
	)
}

func (o *LoggingObserver) OnCacheHit(ctx context.Context, run *Run, key string) {
	o.Logger.InfoContext(ctx, "run_cache_hit",
		slog.String("run_id", run.ID),
		slog.String("name", run.Name),
		slog.String("cache_key", key),
	)
}

func (o *LoggingObserver) OnRetry(ctx context.Context, run *Run, attempt int, d time.Duration) {
	o.Logger.WarnContext(ctx, "run_retry",
		slog.String("run_id", run.ID),
		slog.String("name", run.Name),
		slog.Int("attempt", attempt),
		slog.Duration("delay", d),
	)
}

// BasicMetrics is an Observer that keeps simple atomic counters.
// It is cheap enough to leave enabled in production.
type BasicMetrics struct {
	runsCreated   atomic.Int64
	runsCompleted atomic.Int64
	runsFailed    atomic.Int64
	runsCached    atomic.Int64
	retries       atomic.Int64
}

// BasicMetricsSnapshot is a point-in-time copy of the counters.
type BasicMetricsSnapshot struct {
	RunsCreated   int64
	RunsCompleted int64
	RunsFailed    int64
	RunsCached    int64
	Retries       int64
}

func (m *BasicMetrics) OnRunCreated(ctx context.Context, run *Run) {
	m.runsCreated.Add(1)
}

func (m *BasicMetrics) OnStateChange(ctx context.Context, run *Run, state State) {
	switch state.Kind {
	case StateCompleted:
		m.runsCompleted.Add(1)
	case StateFailed:
		m.runsFailed.Add(1)
	case StateCached:
		m.runsCached.Add(1)
	}
}

func (m *BasicMetrics) OnCacheHit(ctx context.Context, run *Run, key string) {}

func (m *BasicMetrics) OnRetry(ctx context.Context, run *Run, attempt int, d time.Duration) {
	m.retries.Add(1)
}

// Snapshot returns the current counter values.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		RunsCreated:   m.runsCreated.Load(),
		RunsCompleted: m.runsCompleted.Load(),
		RunsFailed:    m.runsFailed.Load(),
		RunsCached:    m.runsCached.Load(),
		Retries:       m.retries.Load(),
	}
}
