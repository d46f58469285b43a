package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amishk599/jobagent/internal/model"
	"github.com/amishk599/jobagent/internal/retry"
)

// DefaultUserAgent identifies the agent to job-board APIs.
const DefaultUserAgent = "jobagent/1.0 (+https://github.com/amishk599/jobagent)"

// maxBodyBytes bounds a single page response.
const maxBodyBytes = 32 << 20

// Client is the HTTP plumbing shared by every provider adapter: pacing,
// retries, status handling and JSON decoding of one page at a time.
type Client struct {
	http      *http.Client
	retry     *retry.Policy
	userAgent string
	logger    *slog.Logger
	now       func() time.Time
}

// NewClient creates a Client. The http.Client carries the per-request timeout.
func NewClient(httpClient *http.Client, policy *retry.Policy, userAgent string, logger *slog.Logger) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		http:      httpClient,
		retry:     policy,
		userAgent: userAgent,
		logger:    logger,
		now:       time.Now,
	}
}

// pageRequest describes one page fetch.
type pageRequest struct {
	op     string // for logs and errors, e.g. "lever acme page 2"
	method string
	url    string
	body   any // JSON-encoded when non-nil
	header http.Header
}

// fetchJSON performs req under the retry policy, waiting on pacer before
// every attempt, and decodes a 2xx body into out. It returns the final
// status code; a 304 leaves out untouched.
func (c *Client) fetchJSON(ctx context.Context, pacer model.Pacer, req pageRequest, out any) (int, error) {
	target, err := url.Parse(req.url)
	if err != nil {
		return 0, fmt.Errorf("%s: parsing url: %w", req.op, err)
	}

	var payload []byte
	if req.body != nil {
		payload, err = json.Marshal(req.body)
		if err != nil {
			return 0, fmt.Errorf("%s: marshal body: %w", req.op, err)
		}
	}

	var status int
	err = c.retry.Do(ctx, req.op, func(ctx context.Context) error {
		if err := pacer.Wait(ctx, target.Host); err != nil {
			return err
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
		if err != nil {
			return fmt.Errorf("%s: %w", req.op, err)
		}
		for k, vs := range req.header {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
		httpReq.Header.Set("User-Agent", c.userAgent)
		httpReq.Header.Set("Accept", "application/json")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		c.logger.Debug("fetching page", "op", req.op, "method", req.method, "url", req.url)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%s: %w", req.op, err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		if status == http.StatusNotModified {
			return nil
		}
		if status < 200 || status > 299 {
			return &model.HTTPError{
				StatusCode: status,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
				Err:        fmt.Errorf("%s: unexpected status %d", req.op, status),
			}
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("%s: reading body: %w", req.op, err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: decoding response: %w", req.op, err)
		}
		return nil
	})
	return status, err
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds ("120") and HTTP-date forms. Returns zero if absent or unparseable.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
