package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/amishk599/jobagent/internal/model"
)

const (
	workdayPageSize = 20
	workdayMaxPages = 50
)

// workdayPostingSchema is the minimum record shape the mapper relies on.
// The cxs API is not a public contract, so records that drift from it are
// skipped rather than failing the page.
const workdayPostingSchema = `{
	"type": "object",
	"required": ["title", "externalPath"],
	"properties": {
		"title":         {"type": "string", "minLength": 1},
		"externalPath":  {"type": "string", "minLength": 1},
		"locationsText": {"type": "string"},
		"postedOn":      {"type": "string"},
		"remoteType":    {"type": "string"},
		"timeType":      {"type": "string"},
		"bulletFields":  {"type": "array", "items": {"type": "string"}},
		"subtitles": {
			"type": "array",
			"items": {"type": "object", "properties": {"title": {"type": "string"}}}
		}
	}
}`

var workdaySchema = mustSchema(workdayPostingSchema)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("compiling workday schema: %v", err))
	}
	return schema
}

// workdayListingResponse is the response from the Workday jobs listing
// endpoint. Some tenants nest the postings under "data".
type workdayListingResponse struct {
	Total       int               `json:"total"`
	JobPostings []json.RawMessage `json:"jobPostings"`
	Data        *struct {
		Total       int               `json:"total"`
		JobPostings []json.RawMessage `json:"jobPostings"`
	} `json:"data"`
}

func (r workdayListingResponse) postings() ([]json.RawMessage, int) {
	if r.JobPostings == nil && r.Data != nil {
		return r.Data.JobPostings, r.Data.Total
	}
	return r.JobPostings, r.Total
}

type workdayListing struct {
	Title         string            `json:"title"`
	ExternalPath  string            `json:"externalPath"`
	LocationsText string            `json:"locationsText"`
	PostedOn      string            `json:"postedOn"`
	RemoteType    string            `json:"remoteType"`
	TimeType      string            `json:"timeType"`
	BulletFields  []string          `json:"bulletFields"`
	Subtitles     []workdaySubtitle `json:"subtitles"`
}

type workdaySubtitle struct {
	Title string `json:"title"`
}

// workdayListingRequest is the POST body for the Workday jobs listing endpoint.
type workdayListingRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

// workdayEndpoint is a parsed cxs jobs URL:
// https://{host}/wday/cxs/{tenant}/{site}/jobs
type workdayEndpoint struct {
	jobsURL string
	root    string // scheme://host
	tenant  string
	site    string
}

func parseWorkdayEndpoint(raw string) (workdayEndpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return workdayEndpoint{}, fmt.Errorf("workday endpoint %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return workdayEndpoint{}, fmt.Errorf("workday endpoint %q: not an absolute url", raw)
	}
	ep := workdayEndpoint{
		jobsURL: strings.TrimRight(raw, "/"),
		root:    u.Scheme + "://" + u.Host,
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) >= 3 {
		ep.tenant = segs[2]
	}
	if len(segs) >= 5 {
		ep.site = segs[3]
	}
	return ep, nil
}

// referer mirrors the career site page that would normally issue the request.
func (ep workdayEndpoint) referer() string {
	if ep.site == "" {
		return ep.root + "/"
	}
	return ep.root + "/en-US/" + ep.site
}

func (ep workdayEndpoint) publicURL(externalPath string) string {
	if !strings.HasPrefix(externalPath, "/") {
		externalPath = "/" + externalPath
	}
	if ep.site == "" {
		return ep.root + externalPath
	}
	return ep.root + "/" + ep.site + externalPath
}

// WorkdayAdapter fetches jobs from a Workday career site's cxs endpoint.
type WorkdayAdapter struct {
	client   *Client
	pageSize int
	maxPages int
}

// NewWorkdayAdapter creates a new Workday provider.
func NewWorkdayAdapter(client *Client) *WorkdayAdapter {
	return &WorkdayAdapter{client: client, pageSize: workdayPageSize, maxPages: workdayMaxPages}
}

func (a *WorkdayAdapter) Name() string { return model.ProviderWorkday }

// FetchAll pages through the cxs endpoint src.Identifier. Each page is a POST
// with a JSON body; tenants that reject it with 400/405 are retried with GET
// and query parameters for the rest of the source. Paging stops on an empty or
// short page, once offset reaches the reported total, or after maxPages.
func (a *WorkdayAdapter) FetchAll(ctx context.Context, src model.Source, pacer model.Pacer) iter.Seq2[model.RawPosting, error] {
	return func(yield func(model.RawPosting, error) bool) {
		ep, err := parseWorkdayEndpoint(src.Identifier)
		if err != nil {
			yield(model.RawPosting{}, err)
			return
		}

		useGET := false
		total := 0
		for page := 1; page <= a.maxPages; page++ {
			offset := (page - 1) * a.pageSize
			resp, usedGET, err := a.fetchPage(ctx, pacer, ep, page, offset, useGET)
			if err != nil {
				yield(model.RawPosting{}, err)
				return
			}
			useGET = usedGET

			records, pageTotal := resp.postings()
			// Workday only reports the total on the first page.
			if pageTotal > 0 {
				total = pageTotal
			}
			if len(records) == 0 {
				return
			}

			for i, rec := range records {
				raw, err := a.mapListing(i, rec, ep, src)
				if !yield(raw, err) {
					return
				}
			}

			if len(records) < a.pageSize {
				return
			}
			if total > 0 && offset+a.pageSize >= total {
				return
			}
		}
		a.client.logger.Warn("workday page cap reached", "source", src.Identifier, "max_pages", a.maxPages)
	}
}

func (a *WorkdayAdapter) fetchPage(ctx context.Context, pacer model.Pacer, ep workdayEndpoint, page, offset int, useGET bool) (workdayListingResponse, bool, error) {
	header := http.Header{}
	header.Set("Referer", ep.referer())
	header.Set("Accept-Language", "en-US,en;q=0.9")
	op := fmt.Sprintf("workday %s page %d", ep.tenant, page)

	var resp workdayListingResponse
	if !useGET {
		_, err := a.client.fetchJSON(ctx, pacer, pageRequest{
			op:     op,
			method: http.MethodPost,
			url:    ep.jobsURL,
			header: header,
			body: workdayListingRequest{
				AppliedFacets: map[string]any{},
				Limit:         a.pageSize,
				Offset:        offset,
				SearchText:    "",
			},
		}, &resp)
		var httpErr *model.HTTPError
		if err == nil || !errors.As(err, &httpErr) ||
			(httpErr.StatusCode != http.StatusBadRequest && httpErr.StatusCode != http.StatusMethodNotAllowed) {
			return resp, false, err
		}
		a.client.logger.Debug("workday POST rejected, falling back to GET", "op", op, "status", httpErr.StatusCode)
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(a.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("searchText", "")
	_, err := a.client.fetchJSON(ctx, pacer, pageRequest{
		op:     op,
		method: http.MethodGet,
		url:    ep.jobsURL + "?" + q.Encode(),
		header: header,
	}, &resp)
	return resp, true, err
}

func (a *WorkdayAdapter) mapListing(index int, data json.RawMessage, ep workdayEndpoint, src model.Source) (model.RawPosting, error) {
	result, err := workdaySchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return model.RawPosting{}, &model.MalformedRecordError{Provider: model.ProviderWorkday, Index: index, Reason: "undecodable posting", Err: err}
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return model.RawPosting{}, &model.MalformedRecordError{Provider: model.ProviderWorkday, Index: index, Reason: strings.Join(reasons, "; ")}
	}

	var l workdayListing
	if err := json.Unmarshal(data, &l); err != nil {
		return model.RawPosting{}, &model.MalformedRecordError{Provider: model.ProviderWorkday, Index: index, Reason: "undecodable posting", Err: err}
	}

	company := src.Company
	if company == "" && len(l.Subtitles) > 0 {
		company = collapseSpace(l.Subtitles[0].Title)
	}
	if company == "" {
		company = ep.tenant
	}

	commitment := strings.TrimSpace(l.TimeType + " " + strings.Join(l.BulletFields, " "))
	// externalPath is only unique within one tenant's site.
	link := ep.publicURL(l.ExternalPath)

	return model.RawPosting{
		Provider:   model.ProviderWorkday,
		NativeID:   link,
		Source:     src.Identifier,
		Company:    company,
		Title:      collapseSpace(l.Title),
		Location:   collapseSpace(l.LocationsText),
		URL:        link,
		Commitment: commitment,
		RemoteHint: strings.Contains(strings.ToLower(l.RemoteType), "remote"),
		PostedAt:   parsePostedOn(l.PostedOn, a.client.now()),
	}, nil
}

var daysAgoRegex = regexp.MustCompile(`^Posted (\d+)\+? Days? Ago$`)

// parsePostedOn converts a Workday relative date string to an approximate
// date relative to now. "Posted 30+ Days Ago" is too vague and yields nil.
func parsePostedOn(postedOn string, now time.Time) *time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch postedOn {
	case "Posted Today":
		return &today
	case "Posted Yesterday":
		t := today.AddDate(0, 0, -1)
		return &t
	}

	if strings.Contains(postedOn, "+") {
		return nil
	}
	if n, ok := parseDaysAgo(postedOn); ok {
		t := today.AddDate(0, 0, -n)
		return &t
	}
	return nil
}

func parseDaysAgo(s string) (int, bool) {
	matches := daysAgoRegex.FindStringSubmatch(s)
	if matches == nil {
		return 0, false
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
