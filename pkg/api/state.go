package api

import "time"

// StateKind identifies the lifecycle state of a run.
type StateKind string

const (
	StatePending       StateKind = "PENDING"
	StateRunning       StateKind = "RUNNING"
	StateAwaitingRetry StateKind = "AWAITING_RETRY"
	StateCompleted     StateKind = "COMPLETED"
	StateFailed        StateKind = "FAILED"
	StateCached        StateKind = "CACHED"
)

// stateNames maps kinds to their human-readable display names as recorded
// in run histories.
var stateNames = map[StateKind]string{
	StatePending:       "Pending",
	StateRunning:       "Running",
	StateAwaitingRetry: "Awaiting Retry",
	StateCompleted:     "Completed",
	StateFailed:        "Failed",
	StateCached:        "Cached",
}

// State is a single entry in a run's lifecycle.
//
// Data is only set on terminal states: the task's return value for
// Completed/Cached, and the error that exhausted the retries for Failed.
type State struct {
	Kind StateKind
	Name string
	Data any
	At   time.Time
}

// Pending returns the initial state every run starts in.
func Pending() State { return newState(StatePending, nil) }

// Running returns the state entered while the body is executing.
func Running() State { return newState(StateRunning, nil) }

// AwaitingRetry returns the state entered between a failed attempt and the
// next retry.
func AwaitingRetry() State { return newState(StateAwaitingRetry, nil) }

// Completed returns the terminal state for a successful execution,
// carrying the result value.
func Completed(data any) State { return newState(StateCompleted, data) }

// Failed returns the terminal state for an execution that exhausted its
// retries, carrying the last error.
func Failed(err error) State { return newState(StateFailed, err) }

// Cached returns the terminal state for a run served from the cache,
// carrying the previously computed result.
func Cached(data any) State { return newState(StateCached, data) }

func newState(kind StateKind, data any) State {
	return State{
		Kind: kind,
		Name: stateNames[kind],
		Data: data,
		At:   time.Now(),
	}
}

// IsTerminal reports whether no further transition is legal from s.
func (s State) IsTerminal() bool {
	switch s.Kind {
	case StateCompleted, StateFailed, StateCached:
		return true
	}
	return false
}

// IsCompleted reports whether the run produced a usable result. Cached runs
// count as completed for data-retrieval purposes; the distinct kind only
// records that the result was served from cache.
func (s State) IsCompleted() bool {
	return s.Kind == StateCompleted || s.Kind == StateCached
}

// IsFailed reports whether the run terminally failed.
func (s State) IsFailed() bool {
	return s.Kind == StateFailed
}

// Err returns the failure carried by a Failed state, or nil.
func (s State) Err() error {
	if s.Kind != StateFailed {
		return nil
	}
	err, _ := s.Data.(error)
	return err
}

// allowedTransitions is the full transition table. Any edge not listed here
// is invalid. Cache hits bypass Running entirely via Pending -> Cached.
var allowedTransitions = map[StateKind][]StateKind{
	StatePending:       {StateRunning, StateCached},
	StateRunning:       {StateAwaitingRetry, StateCompleted, StateFailed},
	StateAwaitingRetry: {StateRunning},
}

// CanTransition reports whether a run in state 'from' may enter state 'to'.
func CanTransition(from, to StateKind) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
