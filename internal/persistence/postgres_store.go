package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jpkoskela/flowrun/pkg/api"
)

// PostgresRunStore is a RunStore backed by PostgreSQL.
//
// It expects an *sql.DB opened with a Postgres driver; the caller imports
// the driver (pgx stdlib, lib/pq, ...), this package only speaks
// database/sql with numbered placeholders.
type PostgresRunStore struct {
	db *sql.DB
}

var _ RunStore = (*PostgresRunStore)(nil)

// NewPostgresRunStore initializes the required schema and returns a new
// PostgresRunStore.
func NewPostgresRunStore(db *sql.DB) (*PostgresRunStore, error) {
	s := &PostgresRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			flow_run_id TEXT NOT NULL DEFAULT '',
			flow_version TEXT NOT NULL DEFAULT '',
			dynamic_key TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_states (
			seq BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			data BYTEA,
			error TEXT NOT NULL DEFAULT '',
			at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_run_states_run_id ON run_states(run_id, seq);`,
	)
	return err
}

func (s *PostgresRunStore) CreateRun(ctx context.Context, run *api.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM runs WHERE id = $1`, run.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return ErrRunExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, name, flow_run_id, flow_version, dynamic_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
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

	if err := insertState(ctx, tx, run.ID, run.State, "$"); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, flow_run_id, flow_version, dynamic_key, created_at
		FROM runs
		WHERE id = $1`, id)

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

func (s *PostgresRunStore) AppendState(ctx context.Context, id string, state api.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Serialize concurrent appends for the same run.
	last, err := s.lastStateForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := validateTransition(*last, state); err != nil {
		return err
	}
	if err := insertState(ctx, tx, id, state, "$"); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresRunStore) ListStates(ctx context.Context, id string) ([]api.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, name, data, error, at
		FROM run_states
		WHERE run_id = $1
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

func (s *PostgresRunStore) lastState(ctx context.Context, q querier, id string) (*api.State, error) {
	row := q.QueryRowContext(ctx, `
		SELECT kind, name, data, error, at
		FROM run_states
		WHERE run_id = $1
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

func (s *PostgresRunStore) lastStateForUpdate(ctx context.Context, tx *sql.Tx, id string) (*api.State, error) {
	// Lock the run row so concurrent appends to the same run serialize.
	var lockedID string
	err := tx.QueryRowContext(ctx, `SELECT id FROM runs WHERE id = $1 FOR UPDATE`, id).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return s.lastState(ctx, tx, id)
}
