package filter

import (
	"testing"

	"github.com/amishk599/jobagent/internal/model"
)

func posting(title, location, city string) model.Posting {
	return model.Posting{
		RawPosting: model.RawPosting{Title: title, Location: location},
		Facets:     model.Facets{City: city},
	}
}

func TestTitleAndCityFilter_Match(t *testing.T) {
	tests := []struct {
		name          string
		titleKeywords []string
		cities        []string
		posting       model.Posting
		wantMatch     bool
	}{
		{
			name:          "matches both title and city",
			titleKeywords: []string{"data analyst", "backend"},
			cities:        []string{"Boston", "Cambridge"},
			posting:       posting("Senior Data Analyst", "Boston, MA", "Boston"),
			wantMatch:     true,
		},
		{
			name:          "title match but city miss",
			titleKeywords: []string{"data analyst"},
			cities:        []string{"Boston"},
			posting:       posting("Data Analyst", "Cambridge, MA", "Cambridge"),
			wantMatch:     false,
		},
		{
			name:          "case insensitive matching",
			titleKeywords: []string{"ANALYST"},
			cities:        []string{"boston"},
			posting:       posting("Data Analyst", "Boston", "Boston"),
			wantMatch:     true,
		},
		{
			name:          "city facet must match exactly",
			cities:        []string{"Boston"},
			posting:       posting("Engineer", "Boston or Somerville", "Somerville"),
			wantMatch:     false,
		},
		{
			name:          "unclassified posting falls back to location text",
			cities:        []string{"Boston"},
			posting:       posting("Engineer", "Greater Boston Area", ""),
			wantMatch:     true,
		},
		{
			name:          "no keywords match",
			titleKeywords: []string{"devops", "sre"},
			posting:       posting("Frontend Engineer", "Boston", "Boston"),
			wantMatch:     false,
		},
		{
			name:      "empty lists pass all",
			posting:   posting("Any Role", "Anywhere", ""),
			wantMatch: true,
		},
		{
			name:          "blank keywords are ignored",
			titleKeywords: []string{" ", ""},
			posting:       posting("Any Role", "Anywhere", ""),
			wantMatch:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewTitleAndCityFilter(tt.titleKeywords, tt.cities)
			got := f.Match(tt.posting)
			if got != tt.wantMatch {
				t.Errorf("Match() = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}
