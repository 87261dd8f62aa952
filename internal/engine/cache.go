package engine

import "sync"

// resultCache maps cache keys to completed task results. It is owned by one
// engine instance (injected at construction, never a process-wide
// singleton) and lives for the engine's lifetime, so hits carry across flow
// runs. Population happens only on the Completed transition; failed
// executions are never cached.
type resultCache struct {
	mu     sync.RWMutex
	values map[string]any
}

func newResultCache() *resultCache {
	return &resultCache{
		values: make(map[string]any),
	}
}

func (c *resultCache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]
	return v, ok
}

func (c *resultCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key] = value
}
