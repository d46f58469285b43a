package adapter

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobagent/internal/model"
	"github.com/amishk599/jobagent/internal/retry"
)

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// roundTripFunc adapts a function into an http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// newTestClient creates a Client whose requests all land on srv, with one
// fast retry per page.
func newTestClient(srv *httptest.Server) *Client {
	httpClient := &http.Client{
		Timeout: 5 * time.Second,
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			// Rewrite the URL to hit the test server instead.
			req.URL.Scheme = "http"
			req.URL.Host = srv.Listener.Addr().String()
			return http.DefaultTransport.RoundTrip(req)
		}),
	}
	c := NewClient(httpClient, retry.New(1, time.Millisecond, discardLogger()), "", discardLogger())
	c.now = func() time.Time { return time.Date(2026, 2, 13, 15, 0, 0, 0, time.UTC) }
	return c
}

// recordingPacer never waits and remembers every target it was asked about.
type recordingPacer struct {
	mu      sync.Mutex
	targets []string
}

func (p *recordingPacer) Wait(_ context.Context, target string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets = append(p.targets, target)
	return nil
}

func (p *recordingPacer) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.targets)
}

// collect drains seq into postings, malformed-record errors and the
// terminal error, if any.
func collect(seq iter.Seq2[model.RawPosting, error]) (postings []model.RawPosting, malformed []*model.MalformedRecordError, terminal error) {
	for raw, err := range seq {
		if err != nil {
			var bad *model.MalformedRecordError
			if errors.As(err, &bad) {
				malformed = append(malformed, bad)
				continue
			}
			terminal = err
			continue
		}
		postings = append(postings, raw)
	}
	return postings, malformed, terminal
}

// --- tests ---

func TestFetchJSON_SetsHeadersAndPacesEveryAttempt(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"name": "Acme"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	pacer := &recordingPacer{}
	var out struct{ Name string }
	status, err := c.fetchJSON(context.Background(), pacer, pageRequest{
		op: "test", method: http.MethodGet, url: "https://boards-api.greenhouse.io/v1/boards/acme",
	}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusOK || out.Name != "Acme" {
		t.Fatalf("got status %d name %q", status, out.Name)
	}
	if pacer.calls() != 2 {
		t.Fatalf("expected the pacer before both attempts, got %d calls", pacer.calls())
	}
	if pacer.targets[0] != "boards-api.greenhouse.io" {
		t.Errorf("expected pacing on the API host, got %q", pacer.targets[0])
	}
}

func TestFetchJSON_RetriesMalformedPayloadThenGivesUp(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`{not valid json`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	var out map[string]any
	_, err := c.fetchJSON(context.Background(), &recordingPacer{}, pageRequest{
		op: "test", method: http.MethodGet, url: "https://api.lever.co/v0/postings/acme",
	}, &out)

	var transient *model.TransientFetchError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientFetchError, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts.Load())
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"120", 120 * time.Second},
		{"-5", 0},
		{"soon", 0},
		{now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if got := parseRetryAfter(tt.value, now); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "double-encoded HTML from Greenhouse API",
			input: "This is the job description. &lt;p&gt;Any HTML included.&lt;/p&gt;",
			want:  "This is the job description.\nAny HTML included.",
		},
		{
			name:  "typical job description with nested tags and whitespace",
			input: "&lt;p&gt;We are hiring.&lt;/p&gt;\n&lt;ul&gt;\n  &lt;li&gt;Write code&lt;/li&gt;\n  &lt;li&gt;Review PRs&lt;/li&gt;\n&lt;/ul&gt;",
			want:  "We are hiring.\nWrite code\nReview PRs",
		},
		{
			name:  "real HTML keeps escaped text escaped",
			input: "<p>Use &lt;b&gt; sparingly</p>",
			want:  "Use <b> sparingly",
		},
		{
			name:  "line breaks and scripts",
			input: "<div>One<br>Two<script>alert(1)</script></div>",
			want:  "One\nTwo",
		},
		{
			name:  "plain text with no HTML",
			input: "No tags here.",
			want:  "No tags here.",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := htmlToText(tc.input)
			if got != tc.want {
				t.Errorf("htmlToText(%q)\n got  %q\n want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestProviders(t *testing.T) {
	providers := Providers(NewClient(http.DefaultClient, retry.New(0, 0, discardLogger()), "", discardLogger()))
	for _, name := range []string{model.ProviderGreenhouse, model.ProviderLever, model.ProviderWorkday} {
		p, ok := providers[name]
		if !ok {
			t.Fatalf("missing provider %s", name)
		}
		if p.Name() != name {
			t.Errorf("provider %s reports name %s", name, p.Name())
		}
	}
}
