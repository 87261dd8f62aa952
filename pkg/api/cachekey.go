package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// CallContext is passed to cache-key functions alongside the resolved
// argument mapping. Callers wanting flow-scoped caching can fold FlowRunID
// into the returned key; the engine itself keys the cache purely by the
// returned string.
type CallContext struct {
	FlowRunID string
	TaskRunID string
	TaskName  string
}

// CacheKeyFunc computes a cache key for a task invocation. Returning the
// same string as a previous successful invocation makes this run a cache
// hit; the body is never executed and the run transitions straight to
// Cached.
type CacheKeyFunc func(cc CallContext, args map[string]any) string

// ConstantCacheKey returns a cache-key function that always yields key,
// so every invocation after the first successful one is served from cache.
func ConstantCacheKey(key string) CacheKeyFunc {
	return func(CallContext, map[string]any) string { return key }
}

// TaskInputHash derives a cache key from the task's identity and a stable
// serialization of its resolved arguments. Because binding happens before
// hashing, positional and named call styles with equal values hash
// identically.
func TaskInputHash(cc CallContext, args map[string]any) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	fmt.Fprintf(h, "task:%s", cc.TaskName)
	for _, name := range names {
		fmt.Fprintf(h, "|%s=%#v", name, args[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}
