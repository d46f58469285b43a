package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobagent/internal/model"
	"github.com/amishk599/jobagent/internal/retry"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// DefaultDigestSize is how many postings share one Slack message. Two blocks
// per posting plus a header stays well under Slack's 50-block limit.
const DefaultDigestSize = 10

var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}()

// SlackNotifier posts new-posting digests to a Slack Incoming Webhook.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	retry      *retry.Policy
	logger     *slog.Logger
	digestSize int
	pause      time.Duration // between digest messages
}

// NewSlackNotifier returns a notifier that groups postings into Block Kit
// digests. A nil policy sends each message once.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, policy *retry.Policy, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		retry:      policy,
		logger:     logger,
		digestSize: DefaultDigestSize,
		pause:      time.Second,
	}
}

// Notify sends the postings as one or more digest messages. It fails only
// when no message got through; individual failures are logged.
func (s *SlackNotifier) Notify(postings []model.Posting) error {
	if len(postings) == 0 {
		return nil
	}

	ctx := context.Background()
	var sent, failed int
	var lastErr error
	for start := 0; start < len(postings); start += s.digestSize {
		if start > 0 && s.pause > 0 {
			time.Sleep(s.pause)
		}
		batch := postings[start:min(start+s.digestSize, len(postings))]
		if err := s.post(ctx, buildDigest(batch, len(postings))); err != nil {
			s.logger.Error("slack digest failed", "postings", len(batch), "error", err)
			failed++
			lastErr = err
			continue
		}
		sent++
	}

	if sent == 0 {
		return fmt.Errorf("all %d slack messages failed: %w", failed, lastErr)
	}
	s.logger.Info("slack notifications complete", "postings", len(postings), "messages", sent, "failed_messages", failed)
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	send := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("post to slack: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			httpErr := &model.HTTPError{StatusCode: resp.StatusCode}
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				httpErr.RetryAfter = time.Duration(secs) * time.Second
			}
			return httpErr
		}
		return nil
	}

	if s.retry == nil {
		return send(ctx)
	}
	return s.retry.Do(ctx, "slack webhook", send)
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"` // notification fallback
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type      string        `json:"type"`
	Text      *slackText    `json:"text,omitempty"`
	Fields    []slackText   `json:"fields,omitempty"`
	Accessory *slackElement `json:"accessory,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style,omitempty"`
}

// SendTestMessage sends a dummy posting to verify the integration works.
func SendTestMessage(n model.Notifier) error {
	now := time.Now()
	test := model.Posting{
		RawPosting: model.RawPosting{
			Provider: "test",
			NativeID: "test-001",
			Company:  "jobagent",
			Title:    "Test Notification: Integration Verified",
			Location: "Boston, MA",
			URL:      "https://github.com/amishk599/jobagent",
			PostedAt: &now,
		},
		Facets: model.Facets{
			City:      "Boston",
			RoleLevel: model.LevelSenior,
			WorkType:  model.WorkFullTime,
		},
		FirstSeen: now,
	}
	return n.Notify([]model.Posting{test})
}

// buildDigest renders one message: a header, then a section and a divider
// per posting. total is the size of the whole notification, which may span
// several digests.
func buildDigest(postings []model.Posting, total int) slackPayload {
	headline := "🚀 1 new posting"
	if total != 1 {
		headline = fmt.Sprintf("🚀 %d new postings", total)
	}

	blocks := []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: headline},
	}}
	for _, p := range postings {
		blocks = append(blocks, postingSection(p), slackBlock{Type: "divider"})
	}
	return slackPayload{Text: headline, Blocks: blocks}
}

func postingSection(p model.Posting) slackBlock {
	title := escapeMrkdwn(p.Title)
	if p.URL != "" {
		title = "<" + p.URL + "|" + title + ">"
	}

	where := p.Location
	if where == "" {
		where = "location n/a"
	}
	lines := []string{
		"*" + title + "*",
		escapeMrkdwn(p.Company) + " · " + escapeMrkdwn(where),
		facetLine(p),
	}

	b := slackBlock{
		Type: "section",
		Text: &slackText{Type: "mrkdwn", Text: strings.Join(lines, "\n")},
	}
	if p.URL != "" {
		b.Accessory = &slackElement{
			Type:  "button",
			Text:  slackText{Type: "plain_text", Text: "Apply"},
			URL:   p.URL,
			Style: "primary",
		}
	}
	return b
}

// facetLine is the context row: level, work type, remote, posted date and
// provider.
func facetLine(p model.Posting) string {
	var parts []string
	if p.RoleLevel != model.LevelUnknown {
		parts = append(parts, string(p.RoleLevel))
	}
	if p.WorkType != "" {
		parts = append(parts, string(p.WorkType))
	}
	if p.Remote {
		parts = append(parts, "remote")
	}
	if p.PostedAt != nil {
		parts = append(parts, "posted "+p.PostedAt.In(eastern).Format("Jan 2"))
	} else {
		parts = append(parts, "just detected")
	}
	parts = append(parts, "via "+p.Provider)
	return "_" + strings.Join(parts, " · ") + "_"
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeMrkdwn escapes the characters Slack treats as control sequences.
func escapeMrkdwn(s string) string {
	return mrkdwnEscaper.Replace(s)
}
