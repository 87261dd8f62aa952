package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/jpkoskela/flowrun/pkg/api"
)

func TestCallTask_OutsideFlowFails(t *testing.T) {
	eng := NewInMemoryEngine()

	task := &api.Task{
		Name: "foo",
		Fn:   func(ctx context.Context, args map[string]any) (any, error) { return nil, nil },
	}

	_, err := eng.Call(context.Background(), task)
	if !errors.Is(err, api.ErrNoActiveFlowRun) {
		t.Fatalf("expected ErrNoActiveFlowRun, got %v", err)
	}
}

func TestCallTask_InsideFlow(t *testing.T) {
	for name, factory := range engineFactories() {
		t.Run(name, func(t *testing.T) {
			eng := factory(t)

			task := &api.Task{
				Name:   "foo",
				Params: []string{"x"},
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					return args["x"], nil
				},
			}

			var taskRunID string
			flow := &api.Flow{
				Name: "bar",
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					fut, err := eng.Call(ctx, task, 1)
					if err != nil {
						return nil, err
					}
					taskRunID = fut.RunID()
					state, err := fut.Result(ctx)
					if err != nil {
						return nil, err
					}
					return state.Data, nil
				},
			}

			flowFut, err := eng.RunFlow(context.Background(), flow)
			if err != nil {
				t.Fatalf("RunFlow failed: %v", err)
			}

			flowState := resultOf(t, flowFut)
			if !flowState.IsCompleted() {
				t.Fatalf("flow state: %+v", flowState)
			}
			if flowState.Data != 1 {
				t.Fatalf("flow data = %v, want 1", flowState.Data)
			}

			taskRun, err := eng.GetRun(context.Background(), taskRunID)
			if err != nil {
				t.Fatalf("GetRun failed: %v", err)
			}
			if taskRun.Kind != api.TaskRun || taskRun.Name != "foo" {
				t.Fatalf("unexpected task run: %+v", taskRun)
			}
			if !taskRun.State.IsCompleted() {
				t.Fatalf("task run not completed: %+v", taskRun.State)
			}
		})
	}
}

func TestStateReflectsResultOfRun(t *testing.T) {
	boom := errors.New("hello")

	for _, failing := range []bool{true, false} {
		name := "success"
		if failing {
			name = "failure"
		}
		t.Run(name, func(t *testing.T) {
			eng := NewInMemoryEngine()

			task := &api.Task{
				Name: "bar",
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					if failing {
						return nil, boom
					}
					return nil, nil
				},
			}

			var taskFut *api.Future
			flow := &api.Flow{
				Name:    "foo",
				Version: "test",
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					fut, err := eng.Call(ctx, task)
					if err != nil {
						return nil, err
					}
					taskFut = fut
					return nil, nil
				},
			}

			if _, err := eng.RunFlow(context.Background(), flow); err != nil {
				t.Fatalf("RunFlow failed: %v", err)
			}

			state := resultOf(t, taskFut)
			if failing {
				if !state.IsFailed() {
					t.Fatalf("expected Failed, got %s", state.Name)
				}
				if state.Data != boom {
					t.Fatalf("failed state must carry the raised error, got %v", state.Data)
				}
			} else {
				if !state.IsCompleted() {
					t.Fatalf("expected Completed, got %s", state.Name)
				}
				if state.Data != nil {
					t.Fatalf("expected nil data, got %v", state.Data)
				}
			}
		})
	}
}

func TestTaskFailureDoesNotFailTheFlow(t *testing.T) {
	eng := NewInMemoryEngine()

	task := &api.Task{
		Name: "explode",
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("boom")
		},
	}

	flow := &api.Flow{
		Name: "resilient",
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			if _, err := eng.Call(ctx, task); err != nil {
				return nil, err
			}
			// The flow continues; failure is only on the task's future.
			return "flow finished", nil
		},
	}

	flowFut, err := eng.RunFlow(context.Background(), flow)
	if err != nil {
		t.Fatalf("RunFlow failed: %v", err)
	}
	state := resultOf(t, flowFut)
	if !state.IsCompleted() || state.Data != "flow finished" {
		t.Fatalf("flow should complete despite the task failure: %+v", state)
	}
}

func TestDynamicKeys_PopulatedInCallOrder(t *testing.T) {
	for name, factory := range engineFactories() {
		t.Run(name, func(t *testing.T) {
			eng := factory(t)

			task := &api.Task{
				Name: "bar",
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					return "foo", nil
				},
			}

			var runIDs []string
			flow := &api.Flow{
				Name:    "foo",
				Version: "test",
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					for i := 0; i < 2; i++ {
						fut, err := eng.Call(ctx, task)
						if err != nil {
							return nil, err
						}
						runIDs = append(runIDs, fut.RunID())
					}
					return nil, nil
				},
			}

			if _, err := eng.RunFlow(context.Background(), flow); err != nil {
				t.Fatalf("RunFlow failed: %v", err)
			}

			for i, want := range []string{"0", "1"} {
				run, err := eng.GetRun(context.Background(), runIDs[i])
				if err != nil {
					t.Fatalf("GetRun failed: %v", err)
				}
				if run.DynamicKey != want {
					t.Fatalf("run %d dynamic key = %q, want %q", i, run.DynamicKey, want)
				}
			}
		})
	}
}

func TestDynamicKeys_ScopedPerTaskAndFlowRun(t *testing.T) {
	eng := NewInMemoryEngine()

	echo := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	first := &api.Task{Name: "first", Fn: echo}
	second := &api.Task{Name: "second", Fn: echo}

	var keys []string
	flow := &api.Flow{
		Name: "keyed",
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			for _, task := range []*api.Task{first, first, second} {
				fut, err := eng.Call(ctx, task)
				if err != nil {
					return nil, err
				}
				run, err := eng.GetRun(ctx, fut.RunID())
				if err != nil {
					return nil, err
				}
				keys = append(keys, run.DynamicKey)
			}
			return nil, nil
		},
	}

	// Two flow runs: counters must restart per flow run.
	for i := 0; i < 2; i++ {
		if _, err := eng.RunFlow(context.Background(), flow); err != nil {
			t.Fatalf("RunFlow failed: %v", err)
		}
	}

	want := []string{"0", "1", "0", "0", "1", "0"}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

func TestTaskDependency_FutureArgumentResolvesFirst(t *testing.T) {
	for name, factory := range engineFactories() {
		t.Run(name, func(t *testing.T) {
			eng := factory(t)

			foo := &api.Task{
				Name:   "foo",
				Params: []string{"x"},
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					return args["x"], nil
				},
			}
			bar := &api.Task{
				Name:   "bar",
				Params: []string{"y"},
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					return args["y"].(int) + 1, nil
				},
			}

			var fooFut *api.Future
			var fooTerminalWhenBarCreated bool
			flow := &api.Flow{
				Name: "chain",
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					var err error
					fooFut, err = eng.Call(ctx, foo, 1)
					if err != nil {
						return nil, err
					}

					barFut, err := eng.Call(ctx, bar, fooFut)
					if err != nil {
						return nil, err
					}

					// By the time bar's run exists, foo must be terminal:
					// the engine resolves future arguments before creating
					// the callee's run.
					fooRun, err := eng.GetRun(ctx, fooFut.RunID())
					if err != nil {
						return nil, err
					}
					fooTerminalWhenBarCreated = fooRun.State.IsTerminal()

					state, err := barFut.Result(ctx)
					if err != nil {
						return nil, err
					}
					return state.Data, nil
				},
			}

			flowFut, err := eng.RunFlow(context.Background(), flow)
			if err != nil {
				t.Fatalf("RunFlow failed: %v", err)
			}

			state := resultOf(t, flowFut)
			if state.Data != 2 {
				t.Fatalf("chained result = %v, want 2", state.Data)
			}
			if !fooTerminalWhenBarCreated {
				t.Fatal("upstream future must be resolved before the downstream run is created")
			}
		})
	}
}

func TestFlowRun_UsesSameStateMachine(t *testing.T) {
	for name, factory := range engineFactories() {
		t.Run(name, func(t *testing.T) {
			eng := factory(t)

			okFlow := &api.Flow{
				Name: "ok",
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					return "fine", nil
				},
			}
			okFut, err := eng.RunFlow(context.Background(), okFlow)
			if err != nil {
				t.Fatalf("RunFlow failed: %v", err)
			}
			assertStateNames(t, stateNames(t, eng, okFut.RunID()),
				[]string{"Pending", "Running", "Completed"})

			badFlow := &api.Flow{
				Name: "bad",
				Fn: func(ctx context.Context, args map[string]any) (any, error) {
					return nil, errors.New("flow broke")
				},
			}
			badFut, err := eng.RunFlow(context.Background(), badFlow)
			if err != nil {
				t.Fatalf("RunFlow should not surface the flow body error, got %v", err)
			}
			state := resultOf(t, badFut)
			if !state.IsFailed() {
				t.Fatalf("expected Failed flow run, got %s", state.Name)
			}
			assertStateNames(t, stateNames(t, eng, badFut.RunID()),
				[]string{"Pending", "Running", "Failed"})
		})
	}
}

func TestFlowRun_RecordsVersionAndArguments(t *testing.T) {
	eng := NewInMemoryEngine()

	flow := &api.Flow{
		Name:    "versioned",
		Version: "v2",
		Params:  []string{"x"},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return args["x"], nil
		},
	}

	fut, err := eng.RunFlow(context.Background(), flow, 7)
	if err != nil {
		t.Fatalf("RunFlow failed: %v", err)
	}

	run, err := eng.GetRun(context.Background(), fut.RunID())
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Kind != api.FlowRun || run.FlowVersion != "v2" {
		t.Fatalf("unexpected flow run: %+v", run)
	}
	if state := resultOf(t, fut); state.Data != 7 {
		t.Fatalf("flow data = %v, want 7", state.Data)
	}
}

func TestRunFlow_BindingErrorsSurfaceImmediately(t *testing.T) {
	eng := NewInMemoryEngine()

	flow := &api.Flow{
		Name:   "strict",
		Params: []string{"x"},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, nil
		},
	}

	if _, err := eng.RunFlow(context.Background(), flow); err == nil {
		t.Fatal("expected a binding error for the missing argument")
	}
}
