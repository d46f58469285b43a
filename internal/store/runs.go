package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amishk599/jobagent/internal/model"
)

// RecordRun stores the outcome of one ingestion call.
func (s *SQLiteStore) RecordRun(ctx context.Context, run model.IngestRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (
			id, provider, source, started_at, finished_at,
			inserted, updated, unchanged, skipped, status, error, normalizer
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Provider, run.Source, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Counts.Inserted, run.Counts.Updated, run.Counts.Unchanged, run.Counts.Skipped,
		run.Status, run.Error, run.Normalizer,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return model.NewStorageIntegrityError("record run "+run.ID, err)
		}
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to n runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, n int) ([]model.IngestRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, source, started_at, finished_at,
			inserted, updated, unchanged, skipped, status, error, normalizer
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		var (
			run               model.IngestRun
			started, finished string
		)
		if err := rows.Scan(
			&run.ID, &run.Provider, &run.Source, &started, &finished,
			&run.Counts.Inserted, &run.Counts.Updated, &run.Counts.Unchanged, &run.Counts.Skipped,
			&run.Status, &run.Error, &run.Normalizer,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// LastSuccessfulRun returns the start time of the latest fully successful run
// for the source that stored facets with the same normalizer fingerprint, or
// the zero time when there is none.
func (s *SQLiteStore) LastSuccessfulRun(ctx context.Context, provider, source, normalizer string) (time.Time, error) {
	var started sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(started_at) FROM ingest_runs
		WHERE provider = ? AND source = ? AND status = ? AND normalizer = ?`,
		provider, source, model.RunOK, normalizer,
	).Scan(&started)
	if err != nil {
		return time.Time{}, fmt.Errorf("last run for %s/%s: %w", provider, source, err)
	}
	if !started.Valid {
		return time.Time{}, nil
	}
	return parseTime(started.String)
}
