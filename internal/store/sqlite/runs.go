package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/listenupapp/testimonials/internal/domain"
	"github.com/listenupapp/testimonials/internal/store"
)

// runColumns is the ordered list of columns selected in runs queries.
const runColumns = `id, source, status, started_at, finished_at, fetched, imported, updated,
	duplicates, failed_imports, new_avatars, mappings_saved, fatal_error`

// scanRun scans a sql.Row (or sql.Rows via its Scan method) into a domain.RunReport.
func scanRun(scanner interface{ Scan(dest ...any) error }) (*domain.RunReport, error) {
	var (
		r          domain.RunReport
		status     string
		startedAt  string
		finishedAt sql.NullString
		fatal      sql.NullString
	)

	err := scanner.Scan(
		&r.RunID,
		&r.Source,
		&status,
		&startedAt,
		&finishedAt,
		&r.Fetched,
		&r.Imported,
		&r.Updated,
		&r.Duplicates,
		&r.FailedImports,
		&r.NewAvatars,
		&r.MappingsSaved,
		&fatal,
	)
	if err != nil {
		return nil, err
	}

	r.Status = domain.RunStatus(status)
	r.FatalError = fatal.String
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		if r.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// SaveRun inserts or replaces a run and its error list in one transaction.
func (s *Store) SaveRun(ctx context.Context, r *domain.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			status = excluded.status,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			fetched = excluded.fetched,
			imported = excluded.imported,
			updated = excluded.updated,
			duplicates = excluded.duplicates,
			failed_imports = excluded.failed_imports,
			new_avatars = excluded.new_avatars,
			mappings_saved = excluded.mappings_saved,
			fatal_error = excluded.fatal_error`,
		r.RunID,
		r.Source,
		string(r.Status),
		formatTime(r.StartedAt),
		nullTime(r.FinishedAt),
		r.Fetched,
		r.Imported,
		r.Updated,
		r.Duplicates,
		r.FailedImports,
		r.NewAvatars,
		r.MappingsSaved,
		nullString(r.FatalError),
	)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", r.RunID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_errors WHERE run_id = ?`, r.RunID); err != nil {
		return fmt.Errorf("clear run errors: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_errors (run_id, seq, testimonial_id, stage, message) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run error insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range r.Errors {
		if _, err := stmt.ExecContext(ctx, r.RunID, i, e.ID, e.Stage, e.Message); err != nil {
			return fmt.Errorf("insert run error %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetRun returns a run with its errors. Returns store.ErrNotFound if absent.
func (s *Store) GetRun(ctx context.Context, id string) (*domain.RunReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("run " + id + " not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	if r.Errors, err = s.runErrors(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns the most recent runs first, without their error lists.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*domain.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.RunReport
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) runErrors(ctx context.Context, runID string) ([]domain.RecordError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT testimonial_id, stage, message FROM run_errors WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run errors: %w", err)
	}
	defer rows.Close()

	out := []domain.RecordError{}
	for rows.Next() {
		var e domain.RecordError
		if err := rows.Scan(&e.ID, &e.Stage, &e.Message); err != nil {
			return nil, fmt.Errorf("scan run error: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
