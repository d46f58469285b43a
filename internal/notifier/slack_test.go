package notifier

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobagent/internal/model"
	"github.com/amishk599/jobagent/internal/retry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func timePtr(t time.Time) *time.Time { return &t }

func samplePosting(title, company string) model.Posting {
	return model.Posting{
		RawPosting: model.RawPosting{
			Provider: "greenhouse",
			NativeID: "123",
			Company:  company,
			Title:    title,
			Location: "Boston, MA",
			URL:      "https://example.com/apply",
			PostedAt: timePtr(time.Date(2026, 1, 15, 15, 0, 0, 0, time.UTC)),
		},
		Facets: model.Facets{City: "Boston", RoleLevel: model.LevelSenior, WorkType: model.WorkFullTime},
	}
}

func newTestNotifier(srv *httptest.Server, policy *retry.Policy) *SlackNotifier {
	n := NewSlackNotifier(srv.URL, srv.Client(), policy, discardLogger())
	n.pause = 0
	return n
}

// payloadRecorder is a webhook that stores every payload and answers with
// the status returned by respond (200 when nil).
type payloadRecorder struct {
	mu       sync.Mutex
	payloads []slackPayload
	calls    atomic.Int32
	respond  func(call int32, w http.ResponseWriter) int
}

func (rec *payloadRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	call := rec.calls.Add(1)
	status := http.StatusOK
	if rec.respond != nil {
		status = rec.respond(call, w)
	}
	if status == http.StatusOK {
		var p slackPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		rec.mu.Lock()
		rec.payloads = append(rec.payloads, p)
		rec.mu.Unlock()
	}
	w.WriteHeader(status)
}

func TestSlackNotifier_EmptyPostings(t *testing.T) {
	rec := &payloadRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := newTestNotifier(srv, nil)
	if err := n.Notify(nil); err != nil {
		t.Errorf("Notify(nil) = %v, want nil", err)
	}
	if err := n.Notify([]model.Posting{}); err != nil {
		t.Errorf("Notify([]) = %v, want nil", err)
	}
	if c := rec.calls.Load(); c != 0 {
		t.Errorf("expected 0 HTTP calls, got %d", c)
	}
}

func TestSlackNotifier_SingleDigest(t *testing.T) {
	rec := &payloadRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := newTestNotifier(srv, nil)
	postings := []model.Posting{
		samplePosting("Engineer 1", "A"),
		samplePosting("Engineer 2", "B"),
		samplePosting("Engineer 3", "C"),
	}
	if err := n.Notify(postings); err != nil {
		t.Fatalf("Notify() = %v, want nil", err)
	}

	if c := rec.calls.Load(); c != 1 {
		t.Fatalf("expected one digest message, got %d calls", c)
	}
	p := rec.payloads[0]
	if p.Text != "🚀 3 new postings" || p.Blocks[0].Text.Text != p.Text {
		t.Errorf("headline = %q / %q", p.Text, p.Blocks[0].Text.Text)
	}
	if len(p.Blocks) != 1+2*3 {
		t.Errorf("blocks = %d, want header plus section and divider per posting", len(p.Blocks))
	}
}

func TestSlackNotifier_SplitsIntoDigests(t *testing.T) {
	rec := &payloadRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := newTestNotifier(srv, nil)
	n.digestSize = 2
	postings := []model.Posting{
		samplePosting("A", "X"), samplePosting("B", "X"), samplePosting("C", "X"),
		samplePosting("D", "X"), samplePosting("E", "X"),
	}
	if err := n.Notify(postings); err != nil {
		t.Fatalf("Notify() = %v", err)
	}
	if c := rec.calls.Load(); c != 3 {
		t.Fatalf("calls = %d, want 3 digests of at most 2", c)
	}
	if got := len(rec.payloads[2].Blocks); got != 3 {
		t.Errorf("last digest blocks = %d, want 3", got)
	}
	// Every digest carries the overall count.
	for _, p := range rec.payloads {
		if p.Text != "🚀 5 new postings" {
			t.Errorf("headline = %q", p.Text)
		}
	}
}

func TestSlackNotifier_AllFail(t *testing.T) {
	rec := &payloadRecorder{respond: func(int32, http.ResponseWriter) int {
		return http.StatusBadRequest
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := newTestNotifier(srv, nil)
	err := n.Notify([]model.Posting{samplePosting("A", "X")})
	if err == nil {
		t.Fatal("expected error when every message fails")
	}
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadRequest {
		t.Errorf("error = %v, want wrapped HTTP 400", err)
	}
}

func TestSlackNotifier_PartialFailure(t *testing.T) {
	rec := &payloadRecorder{respond: func(call int32, _ http.ResponseWriter) int {
		if call == 1 {
			return http.StatusBadRequest
		}
		return http.StatusOK
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := newTestNotifier(srv, nil)
	n.digestSize = 1
	postings := []model.Posting{samplePosting("Fails", "A"), samplePosting("Succeeds", "B")}
	if err := n.Notify(postings); err != nil {
		t.Errorf("expected nil (partial success), got %v", err)
	}
}

func TestSlackNotifier_RateLimitedIsRetried(t *testing.T) {
	rec := &payloadRecorder{respond: func(call int32, w http.ResponseWriter) int {
		if call == 1 {
			return http.StatusTooManyRequests
		}
		return http.StatusOK
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	var retries int
	policy := retry.New(2, time.Millisecond, discardLogger())
	policy.OnRetry = func(op string, _ int, _ error) {
		retries++
		if op != "slack webhook" {
			t.Errorf("op = %q", op)
		}
	}

	n := newTestNotifier(srv, policy)
	if err := n.Notify([]model.Posting{samplePosting("Rate Limited", "Test")}); err != nil {
		t.Fatalf("expected nil after retry, got %v", err)
	}
	if c := rec.calls.Load(); c != 2 {
		t.Errorf("expected 2 HTTP calls (initial + retry), got %d", c)
	}
	if retries != 1 {
		t.Errorf("retries = %d, want 1", retries)
	}
}

func TestSlackNotifier_ClientErrorIsNotRetried(t *testing.T) {
	rec := &payloadRecorder{respond: func(int32, http.ResponseWriter) int {
		return http.StatusNotFound
	}}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	n := newTestNotifier(srv, retry.New(3, time.Millisecond, discardLogger()))
	if err := n.Notify([]model.Posting{samplePosting("A", "X")}); err == nil {
		t.Fatal("expected error")
	}
	if c := rec.calls.Load(); c != 1 {
		t.Errorf("calls = %d, want 1", c)
	}
}

func TestPostingSection(t *testing.T) {
	p := samplePosting("Data <Analyst> & Co", "Acme")
	b := postingSection(p)

	if b.Type != "section" || b.Text == nil || b.Text.Type != "mrkdwn" {
		t.Fatalf("block = %+v", b)
	}
	lines := strings.Split(b.Text.Text, "\n")
	if len(lines) != 3 {
		t.Fatalf("section lines = %q", lines)
	}
	if lines[0] != "*<https://example.com/apply|Data &lt;Analyst&gt; &amp; Co>*" {
		t.Errorf("title line = %q", lines[0])
	}
	if lines[1] != "Acme · Boston, MA" {
		t.Errorf("company line = %q", lines[1])
	}
	if lines[2] != "_senior · full-time · posted Jan 15 · via greenhouse_" {
		t.Errorf("facet line = %q", lines[2])
	}
	if b.Accessory == nil || b.Accessory.URL != p.URL || b.Accessory.Style != "primary" {
		t.Errorf("accessory = %+v", b.Accessory)
	}
}

func TestPostingSection_SparsePosting(t *testing.T) {
	p := model.Posting{
		RawPosting: model.RawPosting{Provider: "lever", Company: "TestCo", Title: "SRE Intern"},
		Facets:     model.Facets{Remote: true, RoleLevel: model.LevelIntern, WorkType: model.WorkInternship},
	}
	b := postingSection(p)

	want := "*SRE Intern*\nTestCo · location n/a\n_intern · internship · remote · just detected · via lever_"
	if b.Text.Text != want {
		t.Errorf("text = %q, want %q", b.Text.Text, want)
	}
	if b.Accessory != nil {
		t.Error("no button without a URL")
	}
}

func TestBuildDigest_SingularHeadline(t *testing.T) {
	d := buildDigest([]model.Posting{samplePosting("A", "X")}, 1)
	if d.Text != "🚀 1 new posting" {
		t.Errorf("headline = %q", d.Text)
	}
	if d.Blocks[len(d.Blocks)-1].Type != "divider" {
		t.Error("each posting should end with a divider")
	}
}

func TestSendTestMessage(t *testing.T) {
	rec := &recordingNotifier{}
	if err := SendTestMessage(rec); err != nil {
		t.Fatalf("SendTestMessage = %v", err)
	}
	if len(rec.got) != 1 || rec.got[0].URL == "" {
		t.Errorf("notified = %+v", rec.got)
	}
}

type recordingNotifier struct{ got []model.Posting }

func (r *recordingNotifier) Notify(p []model.Posting) error {
	r.got = append(r.got, p...)
	return nil
}
