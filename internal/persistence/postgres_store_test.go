package persistence

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jpkoskela/flowrun/internal/testutil"
	"github.com/jpkoskela/flowrun/pkg/api"
)

// postgresStore connects to the shared test container, initializes the
// schema, and truncates it so every test starts clean.
func postgresStore(t *testing.T) RunStore {
	t.Helper()

	db, err := sql.Open("pgx", testutil.PostgresDSN(t))
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	waitForPostgres(t, db)

	store, err := NewPostgresRunStore(db)
	if err != nil {
		t.Fatalf("NewPostgresRunStore failed: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE runs, run_states RESTART IDENTITY`); err != nil {
		t.Fatalf("TRUNCATE failed: %v", err)
	}
	return store
}

func waitForPostgres(t *testing.T, db *sql.DB) {
	t.Helper()

	deadline := time.Now().Add(30 * time.Second)
	for {
		err := db.Ping()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("postgres not reachable: %v", err)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func TestPostgresStore_ConcurrentAppendsSerialize(t *testing.T) {
	store := postgresStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, pendingRun("r1")); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	// Many writers race Pending -> Running. The row lock serializes them:
	// exactly one append lands, the rest validate against the committed
	// tail and are rejected.
	const writers = 8
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.AppendState(ctx, "r1", api.Running())
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range results {
		if err == nil {
			won++
			continue
		}
		if !errors.Is(err, api.ErrInvalidTransition) {
			t.Fatalf("unexpected append error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("%d appends succeeded, want exactly 1", won)
	}

	states, err := store.ListStates(ctx, "r1")
	if err != nil {
		t.Fatalf("ListStates failed: %v", err)
	}
	if len(states) != 2 || states[1].Kind != api.StateRunning {
		t.Fatalf("unexpected history: %+v", states)
	}
}
