package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amishk599/jobagent/internal/model"
)

const (
	leverBaseURL  = "https://api.lever.co/v0/postings"
	leverPageSize = 100
)

// leverCategories represents the categories object in a Lever job.
type leverCategories struct {
	Team         string   `json:"team"`
	Department   string   `json:"department"`
	Location     string   `json:"location"`
	Commitment   string   `json:"commitment"`
	AllLocations []string `json:"allLocations"`
}

type leverList struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

// leverJob represents a single job in the Lever API response.
type leverJob struct {
	ID               string          `json:"id"`
	Text             string          `json:"text"`
	Description      string          `json:"description"`
	DescriptionPlain string          `json:"descriptionPlain"`
	Lists            []leverList     `json:"lists"`
	AdditionalPlain  string          `json:"additionalPlain"`
	Categories       leverCategories `json:"categories"`
	Country          string          `json:"country"`
	CreatedAt        int64           `json:"createdAt"`
	WorkplaceType    string          `json:"workplaceType"`
	HostedURL        string          `json:"hostedUrl"`
	ApplyURL         string          `json:"applyUrl"`
}

// LeverAdapter fetches jobs from the Lever public postings API, one
// skip/limit page at a time.
type LeverAdapter struct {
	client   *Client
	pageSize int
}

// NewLeverAdapter creates a new Lever provider.
func NewLeverAdapter(client *Client) *LeverAdapter {
	return &LeverAdapter{client: client, pageSize: leverPageSize}
}

func (a *LeverAdapter) Name() string { return model.ProviderLever }

// FetchAll yields every posting of the company slug src.Identifier. Paging
// stops at the first short page.
func (a *LeverAdapter) FetchAll(ctx context.Context, src model.Source, pacer model.Pacer) iter.Seq2[model.RawPosting, error] {
	return func(yield func(model.RawPosting, error) bool) {
		slug := src.Identifier
		company := src.Company
		if company == "" {
			company = slug
		}

		seen := make(map[string]bool)
		var prevFirst json.RawMessage
		for page := 1; ; page++ {
			skip := (page - 1) * a.pageSize
			var records []json.RawMessage
			_, err := a.client.fetchJSON(ctx, pacer, pageRequest{
				op:     fmt.Sprintf("lever %s page %d", slug, page),
				method: http.MethodGet,
				url:    fmt.Sprintf("%s/%s?mode=json&skip=%d&limit=%d", leverBaseURL, url.PathEscape(slug), skip, a.pageSize),
			}, &records)
			if err != nil {
				yield(model.RawPosting{}, err)
				return
			}

			// A page that repeats the previous one means the API ignored skip.
			if len(records) > 0 && prevFirst != nil && bytes.Equal(records[0], prevFirst) {
				return
			}
			if len(records) > 0 {
				prevFirst = records[0]
			}

			// Malformed records count as fresh so a bad page does not end paging.
			fresh := 0
			for i, rec := range records {
				raw, err := mapLeverJob(i, rec, slug, company)
				if err == nil {
					if seen[raw.NativeID] {
						continue
					}
					seen[raw.NativeID] = true
				}
				fresh++
				if !yield(raw, err) {
					return
				}
			}

			if len(records) < a.pageSize || fresh == 0 {
				return
			}
		}
	}
}

func mapLeverJob(index int, data json.RawMessage, slug, company string) (model.RawPosting, error) {
	var lj leverJob
	if err := json.Unmarshal(data, &lj); err != nil {
		return model.RawPosting{}, &model.MalformedRecordError{Provider: model.ProviderLever, Index: index, Reason: "undecodable posting", Err: err}
	}
	if lj.ID == "" {
		return model.RawPosting{}, &model.MalformedRecordError{Provider: model.ProviderLever, Index: index, Reason: "missing id"}
	}
	title := collapseSpace(lj.Text)
	if title == "" {
		return model.RawPosting{}, &model.MalformedRecordError{Provider: model.ProviderLever, Index: index, Reason: "missing title"}
	}

	// Determine location: prefer allLocations if available, fallback to location
	location := lj.Categories.Location
	if len(lj.Categories.AllLocations) > 0 {
		location = strings.Join(lj.Categories.AllLocations, ", ")
	}
	if location == "" {
		location = lj.Country
	}

	link := lj.HostedURL
	if link == "" {
		link = lj.ApplyURL
	}

	raw := model.RawPosting{
		Provider:    model.ProviderLever,
		NativeID:    lj.ID,
		Source:      slug,
		Company:     company,
		Title:       title,
		Location:    collapseSpace(location),
		URL:         link,
		Description: leverDescription(lj),
		Commitment:  lj.Categories.Commitment,
		RemoteHint:  strings.EqualFold(lj.WorkplaceType, "remote"),
	}

	// Convert createdAt (Unix milliseconds) to time.Time
	if lj.CreatedAt > 0 {
		t := time.UnixMilli(lj.CreatedAt).UTC()
		raw.PostedAt = &t
	}
	return raw, nil
}

// leverDescription joins the body, the titled lists and the closing section.
func leverDescription(lj leverJob) string {
	var parts []string
	if body := strings.TrimSpace(lj.DescriptionPlain); body != "" {
		parts = append(parts, body)
	} else if body := htmlToText(lj.Description); body != "" {
		parts = append(parts, body)
	}
	for _, l := range lj.Lists {
		section := collapseSpace(l.Text)
		if items := htmlToText(l.Content); items != "" {
			section = strings.TrimSpace(section + "\n" + items)
		}
		if section != "" {
			parts = append(parts, section)
		}
	}
	if extra := strings.TrimSpace(lj.AdditionalPlain); extra != "" {
		parts = append(parts, extra)
	}
	return strings.Join(parts, "\n\n")
}
