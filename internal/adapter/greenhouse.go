package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amishk599/jobagent/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID             int64              `json:"id"`
	Title          string             `json:"title"`
	Location       greenhouseLocation `json:"location"`
	AbsoluteURL    string             `json:"absolute_url"`
	Content        string             `json:"content"`
	FirstPublished string             `json:"first_published"`
	UpdatedAt      string             `json:"updated_at"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response. Jobs are
// kept raw so one bad record does not fail the page.
type greenhouseResponse struct {
	Jobs []json.RawMessage `json:"jobs"`
}

type greenhouseBoard struct {
	Name string `json:"name"`
}

// GreenhouseAdapter fetches jobs from the Greenhouse public boards API.
// The board API is not paginated: one request returns the whole board.
type GreenhouseAdapter struct {
	client *Client
}

// NewGreenhouseAdapter creates a new Greenhouse provider.
func NewGreenhouseAdapter(client *Client) *GreenhouseAdapter {
	return &GreenhouseAdapter{client: client}
}

func (a *GreenhouseAdapter) Name() string { return model.ProviderGreenhouse }

// FetchAll yields every job on the board identified by src.Identifier (the
// board token). When src.ModifiedSince is set the request is conditional and
// a 304 yields nothing.
func (a *GreenhouseAdapter) FetchAll(ctx context.Context, src model.Source, pacer model.Pacer) iter.Seq2[model.RawPosting, error] {
	return func(yield func(model.RawPosting, error) bool) {
		token := src.Identifier
		company := src.Company
		if company == "" {
			name, err := a.boardName(ctx, token, pacer)
			if err != nil {
				yield(model.RawPosting{}, err)
				return
			}
			company = name
		}

		header := http.Header{}
		if !src.ModifiedSince.IsZero() {
			header.Set("If-Modified-Since", src.ModifiedSince.UTC().Format(http.TimeFormat))
		}

		var resp greenhouseResponse
		status, err := a.client.fetchJSON(ctx, pacer, pageRequest{
			op:     fmt.Sprintf("greenhouse %s jobs", token),
			method: http.MethodGet,
			url:    fmt.Sprintf("%s/%s/jobs?content=true", greenhouseBaseURL, url.PathEscape(token)),
			header: header,
		}, &resp)
		if err != nil {
			yield(model.RawPosting{}, err)
			return
		}
		if status == http.StatusNotModified {
			a.client.logger.Debug("greenhouse board not modified", "source", token)
			return
		}

		for i, rawJob := range resp.Jobs {
			raw, err := a.mapJob(i, rawJob, token, company)
			if !yield(raw, err) {
				return
			}
		}
	}
}

// boardName looks up the board's display name, falling back to the token.
// Only a missing board (404) or cancellation is an error.
func (a *GreenhouseAdapter) boardName(ctx context.Context, token string, pacer model.Pacer) (string, error) {
	var board greenhouseBoard
	_, err := a.client.fetchJSON(ctx, pacer, pageRequest{
		op:     fmt.Sprintf("greenhouse %s board", token),
		method: http.MethodGet,
		url:    fmt.Sprintf("%s/%s", greenhouseBaseURL, url.PathEscape(token)),
	}, &board)
	if err != nil {
		var httpErr *model.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("greenhouse board %q not found: %w", token, err)
		}
		if ctx.Err() != nil {
			return "", err
		}
		a.client.logger.Warn("greenhouse board name unavailable, using token", "source", token, "error", err)
		return token, nil
	}
	if board.Name == "" {
		return token, nil
	}
	return board.Name, nil
}

func (a *GreenhouseAdapter) mapJob(index int, data json.RawMessage, token, company string) (model.RawPosting, error) {
	var gj greenhouseJob
	if err := json.Unmarshal(data, &gj); err != nil {
		return model.RawPosting{}, &model.MalformedRecordError{Provider: model.ProviderGreenhouse, Index: index, Reason: "undecodable job", Err: err}
	}
	if gj.ID == 0 {
		return model.RawPosting{}, &model.MalformedRecordError{Provider: model.ProviderGreenhouse, Index: index, Reason: "missing id"}
	}
	title := collapseSpace(gj.Title)
	if title == "" {
		return model.RawPosting{}, &model.MalformedRecordError{Provider: model.ProviderGreenhouse, Index: index, Reason: "missing title"}
	}

	raw := model.RawPosting{
		Provider:    model.ProviderGreenhouse,
		NativeID:    strconv.FormatInt(gj.ID, 10),
		Source:      token,
		Company:     company,
		Title:       title,
		Location:    collapseSpace(gj.Location.Name),
		URL:         gj.AbsoluteURL,
		Description: htmlToText(gj.Content),
	}

	// Prefer first_published, fall back to updated_at.
	for _, ts := range []string{gj.FirstPublished, gj.UpdatedAt} {
		if ts == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			t = t.UTC()
			raw.PostedAt = &t
			break
		}
	}
	return raw, nil
}
