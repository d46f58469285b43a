package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; PRAGMA user_version records how many have
// run. Append new steps, never edit shipped ones: existing databases upgrade
// forward without losing rows.
var migrations = [][]string{
	// 1: canonical postings table.
	{
		`CREATE TABLE postings (
			id            INTEGER PRIMARY KEY,
			provider      TEXT NOT NULL,
			native_id     TEXT NOT NULL CHECK (native_id <> ''),
			source        TEXT NOT NULL DEFAULT '',
			company       TEXT NOT NULL DEFAULT '',
			title         TEXT NOT NULL,
			location      TEXT NOT NULL DEFAULT '',
			url           TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			posted_at     TEXT,
			first_seen_at TEXT NOT NULL,
			last_seen_at  TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			UNIQUE (provider, native_id)
		)`,
		`CREATE INDEX idx_postings_last_seen ON postings (last_seen_at)`,
	},
	// 2: derived facet columns.
	{
		`ALTER TABLE postings ADD COLUMN commitment TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE postings ADD COLUMN city TEXT`,
		`ALTER TABLE postings ADD COLUMN remote INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE postings ADD COLUMN role_level TEXT`,
		`ALTER TABLE postings ADD COLUMN work_type TEXT NOT NULL DEFAULT 'full-time'`,
		`CREATE INDEX idx_postings_city ON postings (city COLLATE NOCASE)`,
		`CREATE INDEX idx_postings_role_level ON postings (role_level)`,
	},
	// 3: external-content full-text index kept in step by triggers.
	{
		`CREATE VIRTUAL TABLE postings_fts USING fts5(
			title, description, location,
			content='postings', content_rowid='id',
			tokenize='porter unicode61 remove_diacritics 2'
		)`,
		`CREATE TRIGGER postings_ai AFTER INSERT ON postings BEGIN
			INSERT INTO postings_fts (rowid, title, description, location)
			VALUES (new.id, new.title, new.description, new.location);
		END`,
		`CREATE TRIGGER postings_ad AFTER DELETE ON postings BEGIN
			INSERT INTO postings_fts (postings_fts, rowid, title, description, location)
			VALUES ('delete', old.id, old.title, old.description, old.location);
		END`,
		`CREATE TRIGGER postings_au AFTER UPDATE ON postings BEGIN
			INSERT INTO postings_fts (postings_fts, rowid, title, description, location)
			VALUES ('delete', old.id, old.title, old.description, old.location);
			INSERT INTO postings_fts (rowid, title, description, location)
			VALUES (new.id, new.title, new.description, new.location);
		END`,
		`INSERT INTO postings_fts (postings_fts) VALUES ('rebuild')`,
	},
	// 4: one row per ingestion call.
	{
		`CREATE TABLE ingest_runs (
			id          TEXT PRIMARY KEY,
			provider    TEXT NOT NULL,
			source      TEXT NOT NULL,
			started_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			inserted    INTEGER NOT NULL DEFAULT 0,
			updated     INTEGER NOT NULL DEFAULT 0,
			unchanged   INTEGER NOT NULL DEFAULT 0,
			skipped     INTEGER NOT NULL DEFAULT 0,
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX idx_ingest_runs_source ON ingest_runs (provider, source, started_at)`,
	},
	// 5: facet rule fingerprint per run. Older runs keep '' and never match.
	{
		`ALTER TABLE ingest_runs ADD COLUMN normalizer TEXT NOT NULL DEFAULT ''`,
	},
}

// SchemaVersion is the user_version of a fully migrated database.
var SchemaVersion = len(migrations)

// migrate brings db up to SchemaVersion, one transaction per step.
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		if err := applyMigration(ctx, db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", version, err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", version, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("migration %d: setting version: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: commit: %w", version, err)
	}
	return nil
}
