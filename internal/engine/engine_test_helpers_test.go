package engine

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/jpkoskela/flowrun/pkg/api"
)

type engineFactory func(t *testing.T) api.Engine

func inMemoryEngine(t *testing.T) api.Engine {
	t.Helper()
	return NewInMemoryEngine()
}

func sqliteEngine(t *testing.T) api.Engine {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	eng, err := NewSQLiteEngine(db)
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	return eng
}

func engineFactories() map[string]engineFactory {
	return map[string]engineFactory{
		"in-memory": inMemoryEngine,
		"sqlite":    sqliteEngine,
	}
}

// stateNames fetches a run's history and flattens it to display names.
func stateNames(t *testing.T, eng api.Engine, runID string) []string {
	t.Helper()

	states, err := eng.ListRunStates(context.Background(), runID)
	if err != nil {
		t.Fatalf("ListRunStates failed: %v", err)
	}
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = st.Name
	}
	return names
}

func assertStateNames(t *testing.T, got, want []string) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("history length %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history[%d] = %q, want %q (%v)", i, got[i], want[i], got)
		}
	}
}

// resultOf resolves a future and fails the test on store errors.
func resultOf(t *testing.T, fut *api.Future) api.State {
	t.Helper()

	state, err := fut.Result(context.Background())
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	return state
}
