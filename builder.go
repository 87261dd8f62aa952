package flowrun

import (
	"time"

	"github.com/jpkoskela/flowrun/pkg/api"
)

// TaskOption configures a task definition.
type TaskOption func(*api.Task)

// WithParams declares the task's parameter names in positional order.
func WithParams(names ...string) TaskOption {
	return func(t *api.Task) {
		t.Params = names
	}
}

// WithDefault sets a default value for a declared parameter.
func WithDefault(name string, value any) TaskOption {
	return func(t *api.Task) {
		if t.Defaults == nil {
			t.Defaults = make(map[string]any)
		}
		t.Defaults[name] = value
	}
}

// WithRetries sets the number of re-attempts after the first failure.
// WithRetries(3) allows 4 total attempts.
func WithRetries(n int) TaskOption {
	return func(t *api.Task) {
		t.Retries = n
	}
}

// WithRetryDelay sets the wait between a failed attempt and its retry.
func WithRetryDelay(d time.Duration) TaskOption {
	return func(t *api.Task) {
		t.RetryDelay = d
	}
}

// WithCacheKeyFn enables caching for the task. See TaskInputHash for the
// built-in argument-hashing key function.
func WithCacheKeyFn(fn CacheKeyFunc) TaskOption {
	return func(t *api.Task) {
		t.CacheKeyFn = fn
	}
}

// NewTask builds and validates a task definition. Misconfiguration is
// reported here, at definition time, before any run exists.
func NewTask(name string, fn TaskFunc, opts ...TaskOption) (*Task, error) {
	t := &api.Task{
		Name: name,
		Fn:   fn,
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustNewTask is NewTask that panics on invalid definitions. Intended for
// package-level task variables.
func MustNewTask(name string, fn TaskFunc, opts ...TaskOption) *Task {
	t, err := NewTask(name, fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// FlowOption configures a flow definition.
type FlowOption func(*api.Flow)

// WithFlowParams declares the flow's parameter names in positional order.
func WithFlowParams(names ...string) FlowOption {
	return func(f *api.Flow) {
		f.Params = names
	}
}

// WithFlowDefault sets a default value for a declared flow parameter.
func WithFlowDefault(name string, value any) FlowOption {
	return func(f *api.Flow) {
		if f.Defaults == nil {
			f.Defaults = make(map[string]any)
		}
		f.Defaults[name] = value
	}
}

// WithVersion records a version string on the flow's runs.
func WithVersion(version string) FlowOption {
	return func(f *api.Flow) {
		f.Version = version
	}
}

// NewFlow builds and validates a flow definition.
func NewFlow(name string, fn FlowFunc, opts ...FlowOption) (*Flow, error) {
	f := &api.Flow{
		Name: name,
		Fn:   fn,
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// MustNewFlow is NewFlow that panics on invalid definitions.
func MustNewFlow(name string, fn FlowFunc, opts ...FlowOption) *Flow {
	f, err := NewFlow(name, fn, opts...)
	if err != nil {
		panic(err)
	}
	return f
}
