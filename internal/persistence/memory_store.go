package persistence

import (
	"context"
	"sync"

	"github.com/jpkoskela/flowrun/pkg/api"
)

// InMemoryStore is a goroutine-safe RunStore backed by maps. It is the
// default backend for tests and single-process deployments; state data is
// held by reference, not serialized.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*memoryRun
}

type memoryRun struct {
	run    api.Run
	states []api.State
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		runs: make(map[string]*memoryRun),
	}
}

var _ RunStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateRun(ctx context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return ErrRunExists
	}
	s.runs[run.ID] = &memoryRun{
		run:    *run,
		states: []api.State{run.State},
	}
	return nil
}

func (s *InMemoryStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mr, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	run := mr.run
	run.State = mr.states[len(mr.states)-1]
	return &run, nil
}

func (s *InMemoryStore) AppendState(ctx context.Context, id string, state api.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mr, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	last := mr.states[len(mr.states)-1]
	if err := validateTransition(last, state); err != nil {
		return err
	}
	mr.states = append(mr.states, state)
	mr.run.State = state
	return nil
}

func (s *InMemoryStore) ListStates(ctx context.Context, id string) ([]api.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mr, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := make([]api.State, len(mr.states))
	copy(out, mr.states)
	return out, nil
}
