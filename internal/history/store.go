// Package history persists workflow runs to a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/3cpo-dev/rdeploy/pkg/api"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Store struct{ db *sql.DB }

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty history path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, e := range entries {
		schema, err := migrationFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
			return fmt.Errorf("apply migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Record stores a finished run with its stages and returns the new run id.
func (s *Store) Record(ctx context.Context, run api.RunSpec) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs(workflow, host, started_at, finished_at, status, error)
		VALUES(?, ?, ?, ?, ?, ?);`,
		string(run.Workflow), run.Host, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), string(run.Status), run.Error)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for i, st := range run.Stages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stages(run_id, seq, stage, command, status, duration_ms, error)
			VALUES(?, ?, ?, ?, ?, ?, ?);`,
			id, i, string(st.Stage), st.Command, string(st.Status), st.DurationMS, st.Error); err != nil {
			return 0, fmt.Errorf("insert stage %s: %w", st.Stage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]api.RunSpec, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow, host, started_at, finished_at, status, error
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var runs []api.RunSpec
	for rows.Next() {
		var (
			r                 api.RunSpec
			workflow, status  string
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &workflow, &r.Host, &started, &finished, &status, &r.Error); err != nil {
			_ = rows.Close()
			return nil, err
		}
		r.Workflow = api.Workflow(workflow)
		r.Status = api.RunStatus(status)
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range runs {
		stages, err := s.stages(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Stages = stages
	}
	return runs, nil
}

func (s *Store) stages(ctx context.Context, runID int64) ([]api.StageResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, command, status, duration_ms, error
		FROM stages WHERE run_id = ? ORDER BY seq;`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()
	var out []api.StageResult
	for rows.Next() {
		var st api.StageResult
		var stage, status string
		if err := rows.Scan(&stage, &st.Command, &status, &st.DurationMS, &st.Error); err != nil {
			return nil, err
		}
		st.Stage = api.Stage(stage)
		st.Status = api.RunStatus(status)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
