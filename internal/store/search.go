package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/amishk599/jobagent/internal/model"
)

const (
	// DefaultLimit applies when Search is called with limit <= 0.
	DefaultLimit = 20
	// MaxLimit caps any requested limit.
	MaxLimit = 500
)

// ftsQuery turns free text into an FTS5 expression: every token becomes a
// quoted phrase and the phrases are ANDed. Quoting keeps user input from being
// read as FTS5 syntax (NEAR, column filters, a stray quote).
func ftsQuery(text string) string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, tok := range tokens {
		tokens[i] = `"` + tok + `"`
	}
	return strings.Join(tokens, " AND ")
}

// Search runs a full-text query over title, description and location,
// intersected with the structural filters. Results are ordered by relevance,
// ties broken by most recent last-seen. Text without indexable tokens counts
// as empty; empty text with no filters returns model.ErrInvalidQuery. Empty
// text with filters is a plain filtered scan ordered by last-seen.
func (s *SQLiteStore) Search(ctx context.Context, text string, filters model.Filters, limit int) ([]model.Summary, error) {
	match := ftsQuery(text)
	if match == "" && filters.IsZero() {
		return nil, model.ErrInvalidQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var (
		where []string
		args  []any
		query strings.Builder
	)
	if match != "" {
		query.WriteString(`SELECT p.provider, p.native_id, p.company, p.title, p.location, p.city, p.remote,
	p.role_level, p.work_type, p.url, p.posted_at, p.last_seen_at,
	snippet(postings_fts, 1, '[', ']', '…', 12), bm25(postings_fts, 10.0, 1.0, 2.0) AS score
FROM postings_fts JOIN postings p ON p.id = postings_fts.rowid`)
		where = append(where, "postings_fts MATCH ?")
		args = append(args, match)
	} else {
		query.WriteString(`SELECT p.provider, p.native_id, p.company, p.title, p.location, p.city, p.remote,
	p.role_level, p.work_type, p.url, p.posted_at, p.last_seen_at, '', 0.0 AS score
FROM postings p`)
	}

	if filters.City != "" {
		where = append(where, "p.city = ? COLLATE NOCASE")
		args = append(args, filters.City)
	}
	if filters.RoleLevel != model.LevelUnknown {
		where = append(where, "p.role_level = ?")
		args = append(args, string(filters.RoleLevel))
	}
	if filters.Remote != nil {
		where = append(where, "p.remote = ?")
		args = append(args, *filters.Remote)
	}
	if filters.WorkType != "" {
		where = append(where, "p.work_type = ?")
		args = append(args, string(filters.WorkType))
	}

	if len(where) > 0 {
		query.WriteString("\nWHERE " + strings.Join(where, " AND "))
	}
	query.WriteString("\nORDER BY score, p.last_seen_at DESC\nLIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching postings: %w", err)
	}
	defer rows.Close()

	results := []model.Summary{}
	for rows.Next() {
		var (
			sum                   model.Summary
			city, level, postedAt sql.NullString
			workType, lastSeen    string
		)
		if err := rows.Scan(
			&sum.Provider, &sum.NativeID, &sum.Company, &sum.Title, &sum.Location, &city, &sum.Remote,
			&level, &workType, &sum.URL, &postedAt, &lastSeen,
			&sum.Snippet, &sum.Rank,
		); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		sum.City = city.String
		sum.RoleLevel = model.RoleLevel(level.String)
		sum.WorkType = model.WorkType(workType)
		if sum.PostedAt, err = parseNullTime(postedAt); err != nil {
			return nil, err
		}
		if sum.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, err
		}
		results = append(results, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}
