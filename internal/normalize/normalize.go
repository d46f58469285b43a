// Package normalize derives the filterable facets of a posting from its raw
// fields. Every function here is pure: identical input yields identical
// facets, and input that cannot be classified yields empty facets rather
// than an error.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/amishk599/jobagent/internal/model"
)

// rulesVersion is bumped whenever the level, remote or work-type rules change.
const rulesVersion = 1

// DefaultCities is the Greater Boston allow-list used when no region is configured.
var DefaultCities = []string{
	"Boston", "Cambridge", "Somerville", "Brookline", "Newton", "Waltham",
	"Watertown", "Quincy", "Medford", "Malden", "Everett", "Chelsea",
	"Revere", "Arlington", "Belmont", "Lexington", "Burlington", "Woburn",
	"Bedford", "Billerica", "Needham", "Wellesley", "Natick", "Framingham",
	"Dedham", "Norwood", "Braintree", "Weymouth", "Andover", "Lowell",
	"Marlborough", "Salem",
}

type levelRule struct {
	level model.RoleLevel
	re    *regexp.Regexp
}

// levelRules are checked most senior first; the first match wins.
var levelRules = []levelRule{
	{model.LevelManager, regexp.MustCompile(`(?i)\b(manager|director|head of|vp|vice president|chief)\b`)},
	{model.LevelLead, regexp.MustCompile(`(?i)\b(lead|staff|principal|architect)\b`)},
	{model.LevelSenior, regexp.MustCompile(`(?i)\b(senior|sr|iii)\b`)},
	{model.LevelMid, regexp.MustCompile(`(?i)\b(mid[- ]?level|intermediate|ii)\b`)},
	{model.LevelEntry, regexp.MustCompile(`(?i)\b(entry[- ]?level|junior|jr|new grad|new graduate|associate)\b`)},
	{model.LevelIntern, regexp.MustCompile(`(?i)\b(intern|interns|internship|co[- ]?op)\b`)},
}

var (
	remoteRe     = regexp.MustCompile(`(?i)\bremote\b`)
	internshipRe = regexp.MustCompile(`(?i)\b(intern|interns|internship|co[- ]?op)\b`)
	contractRe   = regexp.MustCompile(`(?i)\b(contract|contractor|temporary|temp|fixed[- ]?term|freelance)\b`)
	partTimeRe   = regexp.MustCompile(`(?i)\bpart[- ]?time\b`)
)

type cityRule struct {
	name string
	re   *regexp.Regexp
}

// Normalizer derives facets for one metro region.
type Normalizer struct {
	cities []cityRule
}

// New creates a Normalizer matching the given city allow-list.
// A nil or empty list selects DefaultCities.
func New(cities []string) *Normalizer {
	if len(cities) == 0 {
		cities = DefaultCities
	}
	n := &Normalizer{}
	for _, c := range cities {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		n.cities = append(n.cities, cityRule{
			name: c,
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(c) + `\b`),
		})
	}
	return n
}

// Fingerprint identifies the rule set and city list. Postings stored under a
// different fingerprint may carry stale facets.
func (n *Normalizer) Fingerprint() string {
	d := xxhash.New()
	d.WriteString(strconv.Itoa(rulesVersion))
	for _, c := range n.cities {
		d.WriteString("\x1f")
		d.WriteString(c.name)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// Apply copies raw into a Posting and attaches its facets.
func (n *Normalizer) Apply(raw model.RawPosting) model.Posting {
	return model.Posting{RawPosting: raw, Facets: n.Facets(raw)}
}

// Facets derives city, remote, role level and work type from raw.
func (n *Normalizer) Facets(raw model.RawPosting) model.Facets {
	return model.Facets{
		City:      n.City(raw.Location),
		Remote:    raw.RemoteHint || remoteRe.MatchString(raw.Location),
		RoleLevel: RoleLevel(raw.Title),
		WorkType:  WorkType(raw.Title, raw.Commitment),
	}
}

// City returns the canonical name of the allow-listed city that appears
// earliest in location, or "" when none does. On equal positions the longer
// name wins ("South Boston" over "Boston" if both are listed).
func (n *Normalizer) City(location string) string {
	best, bestAt := "", -1
	for _, c := range n.cities {
		loc := c.re.FindStringIndex(location)
		if loc == nil {
			continue
		}
		if bestAt == -1 || loc[0] < bestAt || (loc[0] == bestAt && len(c.name) > len(best)) {
			best, bestAt = c.name, loc[0]
		}
	}
	return best
}

// RoleLevel classifies a title. The most senior matching keyword wins;
// no match returns model.LevelUnknown.
func RoleLevel(title string) model.RoleLevel {
	for _, r := range levelRules {
		if r.re.MatchString(title) {
			return r.level
		}
	}
	return model.LevelUnknown
}

// WorkType classifies the employment type from the title and the provider's
// commitment hint. Without a contrary signal the posting is full-time.
func WorkType(title, commitment string) model.WorkType {
	text := title + " " + commitment
	switch {
	case internshipRe.MatchString(text):
		return model.WorkInternship
	case contractRe.MatchString(text):
		return model.WorkContract
	case partTimeRe.MatchString(text):
		return model.WorkPartTime
	default:
		return model.WorkFullTime
	}
}
