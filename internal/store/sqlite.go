package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/amishk599/jobagent/internal/model"
)

// ErrNotFound is returned by Get when no posting has the given key.
var ErrNotFound = errors.New("posting not found")

// timeLayout is fixed width in UTC so that text comparison orders by time.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists canonical postings, their full-text index and the
// ingestion run log in one SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the clock used for first/last-seen timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and migrates
// it to the current schema.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: writes are serialized and the pragmas below stick.
	db.SetMaxOpenConns(1)

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

const upsertSQL = `
INSERT INTO postings (
	provider, native_id, source, company, title, location, url, description,
	commitment, posted_at, city, remote, role_level, work_type,
	first_seen_at, last_seen_at, content_hash
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (provider, native_id) DO UPDATE SET
	source       = excluded.source,
	company      = excluded.company,
	title        = excluded.title,
	location     = excluded.location,
	url          = excluded.url,
	description  = excluded.description,
	commitment   = excluded.commitment,
	posted_at    = COALESCE(excluded.posted_at, postings.posted_at),
	city         = excluded.city,
	remote       = excluded.remote,
	role_level   = excluded.role_level,
	work_type    = excluded.work_type,
	last_seen_at = excluded.last_seen_at,
	content_hash = excluded.content_hash
WHERE postings.content_hash <> excluded.content_hash`

// Upsert inserts p or updates the stored row with the same (provider,
// native id). A row whose content hash is unchanged is not written at all, so
// its last-seen timestamp and full-text entry stay as they were. A posting
// that arrives without a posted date keeps the stored one, and the hash is
// taken after that carry-over. The hash check and the write share one
// transaction; the FTS triggers run inside it.
func (s *SQLiteStore) Upsert(ctx context.Context, p model.Posting) (model.UpsertOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Unchanged, fmt.Errorf("upsert %s: begin: %w", p.Key(), err)
	}
	defer tx.Rollback()

	outcome := model.Updated
	var (
		stored       string
		storedPosted sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		"SELECT content_hash, posted_at FROM postings WHERE provider = ? AND native_id = ?",
		p.Provider, p.NativeID,
	).Scan(&stored, &storedPosted)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		outcome = model.Inserted
	case err != nil:
		return model.Unchanged, fmt.Errorf("upsert %s: reading hash: %w", p.Key(), err)
	case p.PostedAt == nil:
		if p.PostedAt, err = parseNullTime(storedPosted); err != nil {
			return model.Unchanged, fmt.Errorf("upsert %s: %w", p.Key(), err)
		}
	}

	hash := p.ComputeHash()
	if outcome == model.Updated && stored == hash {
		return model.Unchanged, nil
	}

	now := formatTime(s.now())
	_, err = tx.ExecContext(ctx, upsertSQL,
		p.Provider, p.NativeID, p.Source, p.Company, p.Title, p.Location, p.URL, p.Description,
		p.Commitment, nullTime(p.PostedAt), nullString(p.City), p.Remote, nullString(string(p.RoleLevel)), string(p.WorkType),
		now, now, hash,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return model.Unchanged, model.NewStorageIntegrityError("upsert "+p.Key(), err)
		}
		return model.Unchanged, fmt.Errorf("upsert %s: %w", p.Key(), err)
	}

	if err := tx.Commit(); err != nil {
		return model.Unchanged, fmt.Errorf("upsert %s: commit: %w", p.Key(), err)
	}
	return outcome, nil
}

const postingColumns = `provider, native_id, source, company, title, location, url, description,
	commitment, posted_at, city, remote, role_level, work_type,
	first_seen_at, last_seen_at, content_hash`

// Get returns the stored posting with the given key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, provider, nativeID string) (model.Posting, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+postingColumns+" FROM postings WHERE provider = ? AND native_id = ?",
		provider, nativeID,
	)

	var (
		p                     model.Posting
		postedAt, city, level sql.NullString
		workType              string
		firstSeen, lastSeen   string
	)
	err := row.Scan(
		&p.Provider, &p.NativeID, &p.Source, &p.Company, &p.Title, &p.Location, &p.URL, &p.Description,
		&p.Commitment, &postedAt, &city, &p.Remote, &level, &workType,
		&firstSeen, &lastSeen, &p.ContentHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Posting{}, fmt.Errorf("%s:%s: %w", provider, nativeID, ErrNotFound)
	}
	if err != nil {
		return model.Posting{}, fmt.Errorf("getting %s:%s: %w", provider, nativeID, err)
	}

	p.City = city.String
	p.RoleLevel = model.RoleLevel(level.String)
	p.WorkType = model.WorkType(workType)
	if p.PostedAt, err = parseNullTime(postedAt); err != nil {
		return model.Posting{}, err
	}
	if p.FirstSeen, err = parseTime(firstSeen); err != nil {
		return model.Posting{}, err
	}
	if p.LastSeen, err = parseTime(lastSeen); err != nil {
		return model.Posting{}, err
	}
	return p, nil
}

// Count returns the number of stored postings.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM postings").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting postings: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isConstraintViolation reports whether err is a SQLite constraint failure
// (UNIQUE, CHECK, NOT NULL, ...).
func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
