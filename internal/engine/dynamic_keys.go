package engine

import (
	"strconv"
	"sync"
)

// keyAllocator hands out dynamic keys: for each (flow run, task name) pair
// it counts invocations from 0, so the Nth call to a task within a flow run
// gets key strconv.Itoa(N). Different tasks, or the same task in different
// flow runs, never collide.
type keyAllocator struct {
	mu       sync.Mutex
	counters map[string]map[string]int
}

func newKeyAllocator() *keyAllocator {
	return &keyAllocator{
		counters: make(map[string]map[string]int),
	}
}

func (a *keyAllocator) next(flowRunID, taskName string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	perTask, ok := a.counters[flowRunID]
	if !ok {
		perTask = make(map[string]int)
		a.counters[flowRunID] = perTask
	}
	n := perTask[taskName]
	perTask[taskName] = n + 1
	return strconv.Itoa(n)
}

// release drops a flow run's counters once it is terminal; no further task
// calls can arrive for it, and keeping the entry would grow the map for the
// engine's whole lifetime.
func (a *keyAllocator) release(flowRunID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.counters, flowRunID)
}
