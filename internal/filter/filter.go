package filter

import (
	"strings"

	"github.com/amishk599/jobagent/internal/model"
)

// Ensure TitleAndCityFilter implements model.PostingFilter.
var _ model.PostingFilter = (*TitleAndCityFilter)(nil)

// TitleAndCityFilter matches postings whose title contains any of the title
// keywords and whose city facet is one of the listed cities. A posting with no
// city facet matches when its raw location mentions a listed city.
// Matching is case-insensitive. Empty lists are treated as "match all".
type TitleAndCityFilter struct {
	titleKeywords []string
	cities        []string
}

// NewTitleAndCityFilter returns a filter that requires both a title keyword
// match and a city match.
func NewTitleAndCityFilter(titleKeywords []string, cities []string) *TitleAndCityFilter {
	return &TitleAndCityFilter{
		titleKeywords: lowerAll(titleKeywords),
		cities:        lowerAll(cities),
	}
}

// Match reports whether p passes both the title and the city check.
func (f *TitleAndCityFilter) Match(p model.Posting) bool {
	if len(f.titleKeywords) > 0 {
		title := strings.ToLower(p.Title)
		if !containsAny(title, f.titleKeywords) {
			return false
		}
	}

	if len(f.cities) > 0 {
		if p.City != "" {
			city := strings.ToLower(p.City)
			for _, c := range f.cities {
				if city == c {
					return true
				}
			}
			return false
		}
		if !containsAny(strings.ToLower(p.Location), f.cities) {
			return false
		}
	}

	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
