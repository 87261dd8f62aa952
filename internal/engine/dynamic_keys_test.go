package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/jpkoskela/flowrun/pkg/api"
)

func TestKeyAllocator(t *testing.T) {
	keys := newKeyAllocator()

	if got := keys.next("flow-1", "extract"); got != "0" {
		t.Fatalf("first key = %q, want 0", got)
	}
	if got := keys.next("flow-1", "extract"); got != "1" {
		t.Fatalf("second key = %q, want 1", got)
	}

	// Counters are independent per task name and per flow run.
	if got := keys.next("flow-1", "load"); got != "0" {
		t.Fatalf("other task key = %q, want 0", got)
	}
	if got := keys.next("flow-2", "extract"); got != "0" {
		t.Fatalf("other flow key = %q, want 0", got)
	}
	if got := keys.next("flow-1", "extract"); got != "2" {
		t.Fatalf("third key = %q, want 2", got)
	}
}

func TestKeyAllocator_ReleasedOnTerminalFlowRun(t *testing.T) {
	eng := NewInMemoryEngine()
	impl := eng.(*engineImpl)

	task := &api.Task{
		Name: "step",
		Fn:   func(ctx context.Context, args map[string]any) (any, error) { return nil, nil },
	}

	countFlows := func() int {
		impl.keys.mu.Lock()
		defer impl.keys.mu.Unlock()
		return len(impl.keys.counters)
	}

	okFlow := &api.Flow{
		Name: "ok",
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			for i := 0; i < 2; i++ {
				if _, err := eng.Call(ctx, task); err != nil {
					return nil, err
				}
			}
			// The counters exist while the flow run is live.
			if countFlows() != 1 {
				return nil, errors.New("expected one live counter entry")
			}
			return nil, nil
		},
	}
	fut, err := eng.RunFlow(context.Background(), okFlow)
	if err != nil {
		t.Fatalf("RunFlow failed: %v", err)
	}
	if state := resultOf(t, fut); !state.IsCompleted() {
		t.Fatalf("flow did not complete: %+v", state)
	}
	if got := countFlows(); got != 0 {
		t.Fatalf("%d counter entries left after a completed flow run, want 0", got)
	}

	// Failed flow runs release their counters too.
	badFlow := &api.Flow{
		Name: "bad",
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			if _, err := eng.Call(ctx, task); err != nil {
				return nil, err
			}
			return nil, errors.New("flow broke")
		},
	}
	if _, err := eng.RunFlow(context.Background(), badFlow); err != nil {
		t.Fatalf("RunFlow failed: %v", err)
	}
	if got := countFlows(); got != 0 {
		t.Fatalf("%d counter entries left after a failed flow run, want 0", got)
	}
}

func TestResultCache(t *testing.T) {
	cache := newResultCache()

	if _, hit := cache.get("k"); hit {
		t.Fatal("empty cache reported a hit")
	}
	cache.put("k", 42)
	value, hit := cache.get("k")
	if !hit || value != 42 {
		t.Fatalf("get = %v/%v", value, hit)
	}

	// Nil results are cacheable; a hit is distinct from a miss.
	cache.put("nil", nil)
	value, hit = cache.get("nil")
	if !hit || value != nil {
		t.Fatalf("nil result: get = %v/%v", value, hit)
	}
}
