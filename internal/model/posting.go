package model

import (
	"context"
	"iter"
	"time"
)

// Provider names as they appear in config and in the postings table.
const (
	ProviderGreenhouse = "greenhouse"
	ProviderLever      = "lever"
	ProviderWorkday    = "workday"
)

// RawPosting is one listing as mapped out of a provider payload, before facets
// are derived.
type RawPosting struct {
	Provider    string     // provider name
	NativeID    string     // provider's own id, unique per provider
	Source      string     // board token, company slug or cxs URL
	Company     string     // company / board display name
	Title       string     // job title
	Location    string     // free-text location
	URL         string     // public posting link
	Description string     // plain-text description
	Commitment  string     // employment-type hint (lever commitment, workday time type)
	RemoteHint  bool       // explicit remote flag from the provider
	PostedAt    *time.Time // nullable (not all APIs provide this)
}

// RoleLevel is the seniority facet derived from a title. Empty means unknown.
type RoleLevel string

const (
	LevelUnknown RoleLevel = ""
	LevelIntern  RoleLevel = "intern"
	LevelEntry   RoleLevel = "entry"
	LevelMid     RoleLevel = "mid"
	LevelSenior  RoleLevel = "senior"
	LevelLead    RoleLevel = "lead"
	LevelManager RoleLevel = "manager"
)

// RoleLevels lists the known levels from least to most senior.
var RoleLevels = []RoleLevel{LevelIntern, LevelEntry, LevelMid, LevelSenior, LevelLead, LevelManager}

// Rank returns the position of l in RoleLevels, or -1 when unknown.
func (l RoleLevel) Rank() int {
	for i, lvl := range RoleLevels {
		if lvl == l {
			return i
		}
	}
	return -1
}

// WorkType is the employment-type facet.
type WorkType string

const (
	WorkFullTime   WorkType = "full-time"
	WorkPartTime   WorkType = "part-time"
	WorkContract   WorkType = "contract"
	WorkInternship WorkType = "internship"
)

// WorkTypes lists every valid work type.
var WorkTypes = []WorkType{WorkFullTime, WorkPartTime, WorkContract, WorkInternship}

// Facets are the derived, filterable attributes of a posting.
// City and RoleLevel are optional: the empty value means "not classified".
type Facets struct {
	City      string
	Remote    bool
	RoleLevel RoleLevel
	WorkType  WorkType
}

// Posting is the canonical, stored job posting.
type Posting struct {
	RawPosting
	Facets

	FirstSeen   time.Time // set by the store on insert
	LastSeen    time.Time // bumped by the store when the content hash changes
	ContentHash string    // set by the store
}

// Key returns the provider-scoped unique key of the posting.
func (p Posting) Key() string {
	return p.Provider + ":" + p.NativeID
}

// UpsertOutcome reports what Upsert did with a posting.
type UpsertOutcome int

const (
	Unchanged UpsertOutcome = iota
	Inserted
	Updated
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Counts summarizes one ingestion call.
type Counts struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// Add records one upsert outcome.
func (c *Counts) Add(o UpsertOutcome) {
	switch o {
	case Inserted:
		c.Inserted++
	case Updated:
		c.Updated++
	default:
		c.Unchanged++
	}
}

// Merge adds other into c.
func (c *Counts) Merge(other Counts) {
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.Unchanged += other.Unchanged
	c.Skipped += other.Skipped
}

// Total is the number of records seen, including skipped ones.
func (c Counts) Total() int {
	return c.Inserted + c.Updated + c.Unchanged + c.Skipped
}

// Run statuses recorded in the ingest_runs table.
const (
	RunOK      = "ok"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// IngestRun is the record of one Ingest call for one source.
type IngestRun struct {
	ID         string
	Provider   string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Counts     Counts
	Status     string
	Error      string
	Normalizer string // fingerprint of the facet rules the run stored with
}

// Filters are the structural constraints of a search. Zero values mean
// "no constraint"; Remote is a pointer so false can be asked for explicitly.
type Filters struct {
	City      string
	RoleLevel RoleLevel
	Remote    *bool
	WorkType  WorkType
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.City == "" && f.RoleLevel == LevelUnknown && f.Remote == nil && f.WorkType == ""
}

// Summary is one search hit.
type Summary struct {
	Provider  string     `json:"provider"`
	NativeID  string     `json:"native_id"`
	Company   string     `json:"company"`
	Title     string     `json:"title"`
	Location  string     `json:"location"`
	City      string     `json:"city,omitempty"`
	Remote    bool       `json:"remote"`
	RoleLevel RoleLevel  `json:"role_level,omitempty"`
	WorkType  WorkType   `json:"work_type"`
	URL       string     `json:"url"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
	LastSeen  time.Time  `json:"last_seen"`
	Snippet   string     `json:"snippet,omitempty"`
	Rank      float64    `json:"rank"`
}

// FacetCount is the number of stored postings sharing one facet value.
type FacetCount struct {
	Value string
	Count int
}

// Source identifies one board to ingest.
type Source struct {
	Identifier    string    // board token, company slug or cxs URL
	Company       string    // optional display-name override
	ModifiedSince time.Time // zero disables conditional requests
}

// Pacer blocks until the next request to target may start.
type Pacer interface {
	Wait(ctx context.Context, target string) error
}

// Provider fetches every listing of one source as a lazy sequence.
// A *MalformedRecordError in the sequence marks a single skipped record;
// any other error ends the sequence and means the source was abandoned.
type Provider interface {
	Name() string
	FetchAll(ctx context.Context, src Source, pacer Pacer) iter.Seq2[RawPosting, error]
}

// PostingStore persists postings and ingestion runs.
type PostingStore interface {
	Upsert(ctx context.Context, p Posting) (UpsertOutcome, error)
	RecordRun(ctx context.Context, run IngestRun) error
}

// RunHistory is implemented by stores that can answer when a source last
// ingested cleanly under the given normalizer fingerprint. Used for
// conditional requests.
type RunHistory interface {
	LastSuccessfulRun(ctx context.Context, provider, source, normalizer string) (time.Time, error)
}

// Notifier sends notifications for newly stored postings.
type Notifier interface {
	Notify(postings []Posting) error
}

// PostingFilter decides whether a posting is worth a notification.
type PostingFilter interface {
	Match(p Posting) bool
}
