package api

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TaskFunc is the body of a task. It receives the resolved argument mapping:
// positional and named call styles are bound to the same map before
// invocation, and Future-valued arguments have already been replaced by
// their carried data.
type TaskFunc func(ctx context.Context, args map[string]any) (any, error)

// Task is a unit of work invoked within a flow, subject to retry and cache
// policy. Construct with flowrun.NewTask so misconfiguration is caught at
// definition time, before any run exists.
type Task struct {
	Name string
	Fn   TaskFunc

	// Params declares the task's parameter names in positional order.
	Params []string

	// Defaults provides default values for trailing parameters.
	Defaults map[string]any

	// Retries is the number of re-attempts after the first failure.
	// Retries = 3 means up to 4 total attempts.
	Retries int

	// RetryDelay is the wait between a failed attempt and the next one.
	RetryDelay time.Duration

	// CacheKeyFn, if set, enables caching for this task.
	CacheKeyFn CacheKeyFunc
}

// FlowFunc is the body of a flow. The supplied context carries the active
// flow run, so task calls made through it are tracked under this run.
type FlowFunc func(ctx context.Context, args map[string]any) (any, error)

// Flow is a top-level orchestrated unit of work that may invoke tasks.
type Flow struct {
	Name    string
	Version string
	Fn      FlowFunc

	Params   []string
	Defaults map[string]any
}

// Validate checks a task definition. It is called eagerly by the builders.
func (t *Task) Validate() error {
	if t == nil {
		return errors.New("task is nil")
	}
	if t.Name == "" {
		return errors.New("task name is required")
	}
	if t.Fn == nil {
		return fmt.Errorf("task %s: body function is required", t.Name)
	}
	if t.Retries < 0 {
		return fmt.Errorf("task %s: retries must be non-negative", t.Name)
	}
	if t.RetryDelay < 0 {
		return fmt.Errorf("task %s: retry delay must be non-negative", t.Name)
	}
	return validateParams(t.Name, t.Params, t.Defaults)
}

// Validate checks a flow definition.
func (f *Flow) Validate() error {
	if f == nil {
		return errors.New("flow is nil")
	}
	if f.Name == "" {
		return errors.New("flow name is required")
	}
	if f.Fn == nil {
		return fmt.Errorf("flow %s: body function is required", f.Name)
	}
	return validateParams(f.Name, f.Params, f.Defaults)
}

func validateParams(owner string, params []string, defaults map[string]any) error {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p == "" {
			return fmt.Errorf("%s: empty parameter name", owner)
		}
		if seen[p] {
			return fmt.Errorf("%s: duplicate parameter %q", owner, p)
		}
		seen[p] = true
	}
	for name := range defaults {
		if !seen[name] {
			return fmt.Errorf("%s: default for unknown parameter %q", owner, name)
		}
	}
	return nil
}
