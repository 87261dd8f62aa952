package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jpkoskela/flowrun/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRunStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given database
// and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			flow_run_id TEXT NOT NULL DEFAULT '',
			flow_version TEXT NOT NULL DEFAULT '',
			dynamic_key TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_states (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			data BLOB,
			error TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_run_states_run_id ON run_states(run_id, seq);`,
	)
	return err
}

func (s *SQLiteRunStore) CreateRun(ctx context.Context, run *api.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM runs WHERE id = ?`, run.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return ErrRunExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, name, flow_run_id, flow_version, dynamic_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.Kind),
		run.Name,
		run.FlowRunID,
		run.FlowVersion,
		run.DynamicKey,
		run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return err
	}

	if err := insertState(ctx, tx, run.ID, run.State, "?"); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, flow_run_id, flow_version, dynamic_key, created_at
		FROM runs
		WHERE id = ?`, id)

	var run api.Run
	var kind string
	var createdAt int64
	if err := row.Scan(&run.ID, &kind, &run.Name, &run.FlowRunID, &run.FlowVersion, &run.DynamicKey, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	run.Kind = api.RunKind(kind)
	run.CreatedAt = time.Unix(0, createdAt)

	last, err := s.lastState(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	run.State = *last
	return &run, nil
}

func (s *SQLiteRunStore) AppendState(ctx context.Context, id string, state api.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	last, err := s.lastState(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := validateTransition(*last, state); err != nil {
		return err
	}
	if err := insertState(ctx, tx, id, state, "?"); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteRunStore) ListStates(ctx context.Context, id string) ([]api.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, name, data, error, at
		FROM run_states
		WHERE run_id = ?
		ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []api.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, ErrRunNotFound
	}
	return states, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteRunStore) lastState(ctx context.Context, q querier, id string) (*api.State, error) {
	row := q.QueryRowContext(ctx, `
		SELECT kind, name, data, error, at
		FROM run_states
		WHERE run_id = ?
		ORDER BY seq DESC
		LIMIT 1`, id)

	st, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanState reads (kind, name, data, error, at) columns into a State.
// Failed states round-trip their error through the error column; other
// terminal states carry gob-encoded data.
func scanState(row rowScanner) (*api.State, error) {
	var (
		kind   string
		name   string
		data   []byte
		errStr string
		atN    int64
	)
	if err := row.Scan(&kind, &name, &data, &errStr, &atN); err != nil {
		return nil, err
	}

	st := api.State{
		Kind: api.StateKind(kind),
		Name: name,
		At:   time.Unix(0, atN),
	}
	if st.Kind == api.StateFailed {
		if errStr != "" {
			st.Data = errors.New(errStr)
		}
		return &st, nil
	}
	val, err := decodeValue(data)
	if err != nil {
		return nil, err
	}
	st.Data = val
	return &st, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertState writes one history row. placeholder is "?" for SQLite; the
// Postgres store rewrites the statement with numbered placeholders.
func insertState(ctx context.Context, e execer, runID string, state api.State, placeholder string) error {
	var (
		data   []byte
		errStr string
		err    error
	)
	if state.Kind == api.StateFailed {
		if e, ok := state.Data.(error); ok && e != nil {
			errStr = e.Error()
		}
	} else {
		data, err = encodeValue(state.Data)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO run_states (run_id, kind, name, data, error, at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if placeholder != "?" {
		query = `
		INSERT INTO run_states (run_id, kind, name, data, error, at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	}

	_, err = e.ExecContext(ctx, query,
		runID,
		string(state.Kind),
		state.Name,
		data,
		errStr,
		state.At.UnixNano(),
	)
	return err
}
