package store

import (
	"context"
	"fmt"

	"github.com/amishk599/jobagent/internal/model"
)

// facetColumns maps a facet name to the SQL expression it groups by.
var facetColumns = map[string]string{
	"provider":   "provider",
	"company":    "company",
	"city":       "COALESCE(city, '')",
	"remote":     "CASE remote WHEN 1 THEN 'true' ELSE 'false' END",
	"role_level": "COALESCE(role_level, '')",
	"work_type":  "work_type",
}

// FacetNames lists the facets FacetCounts accepts.
var FacetNames = []string{"provider", "company", "city", "remote", "role_level", "work_type"}

// FacetCounts returns how many postings share each value of facet, most
// common first. Unclassified postings count under the empty value.
func (s *SQLiteStore) FacetCounts(ctx context.Context, facet string) ([]model.FacetCount, error) {
	col, ok := facetColumns[facet]
	if !ok {
		return nil, fmt.Errorf("unknown facet %q", facet)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+col+" AS value, COUNT(*) AS n FROM postings GROUP BY value ORDER BY n DESC, value")
	if err != nil {
		return nil, fmt.Errorf("counting %s: %w", facet, err)
	}
	defer rows.Close()

	var counts []model.FacetCount
	for rows.Next() {
		var fc model.FacetCount
		if err := rows.Scan(&fc.Value, &fc.Count); err != nil {
			return nil, fmt.Errorf("scanning %s count: %w", facet, err)
		}
		counts = append(counts, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s counts: %w", facet, err)
	}
	return counts, nil
}
