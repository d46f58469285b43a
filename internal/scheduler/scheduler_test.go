package scheduler

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobagent/internal/ingest"
	"github.com/amishk599/jobagent/internal/model"
	"github.com/amishk599/jobagent/internal/normalize"
	"github.com/amishk599/jobagent/internal/ratelimit"
	"github.com/amishk599/jobagent/internal/store"
)

// --- Mock implementations ---

// recordingIngester records the order of sources and returns canned errors.
type recordingIngester struct {
	mu     sync.Mutex
	order  []string
	calls  atomic.Int32
	errs   map[string]error
	counts model.Counts
}

func (r *recordingIngester) Ingest(_ context.Context, req ingest.Request) (model.Counts, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.order = append(r.order, req.Source)
	r.mu.Unlock()
	return r.counts, r.errs[req.Source]
}

// pagedProvider serves numbered pages per source; failPage makes one page of
// one source fail the way an exhausted retry does.
type pagedProvider struct {
	pages    map[string][][]string // source -> pages of native ids
	failSrc  string
	failPage int
}

func (p *pagedProvider) Name() string { return model.ProviderGreenhouse }

func (p *pagedProvider) FetchAll(_ context.Context, src model.Source, _ model.Pacer) iter.Seq2[model.RawPosting, error] {
	return func(yield func(model.RawPosting, error) bool) {
		for i, page := range p.pages[src.Identifier] {
			if src.Identifier == p.failSrc && i+1 == p.failPage {
				yield(model.RawPosting{}, &model.TransientFetchError{Op: src.Identifier, Attempts: 3, Err: errors.New("HTTP 503")})
				return
			}
			for _, id := range page {
				raw := model.RawPosting{
					Provider: model.ProviderGreenhouse,
					NativeID: id,
					Source:   src.Identifier,
					Title:    "Engineer " + id,
				}
				if !yield(raw, nil) {
					return
				}
			}
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requests(sources ...string) []ingest.Request {
	reqs := make([]ingest.Request, len(sources))
	for i, src := range sources {
		reqs[i] = ingest.Request{Provider: model.ProviderGreenhouse, Source: src}
	}
	return reqs
}

// --- Tests ---

func TestRunOnce_OrderPreserved(t *testing.T) {
	ing := &recordingIngester{counts: model.Counts{Inserted: 1}}
	s := NewScheduler(ing, requests("a", "b", "c"), discardLogger())

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(ing.order) != len(want) {
		t.Fatalf("order = %v, want %v", ing.order, want)
	}
	for i := range want {
		if ing.order[i] != want[i] {
			t.Errorf("order = %v, want %v", ing.order, want)
			break
		}
	}
	if report.Totals.Inserted != 3 {
		t.Errorf("Totals.Inserted = %d, want 3", report.Totals.Inserted)
	}
}

func TestRunOnce_SkippedSourceDoesNotStopOthers(t *testing.T) {
	ing := &recordingIngester{errs: map[string]error{
		"a": &model.SourceSkippedError{Provider: "greenhouse", Source: "a", Err: errors.New("HTTP 503")},
	}}
	s := NewScheduler(ing, requests("a", "b"), discardLogger())

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := ing.calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	if report.Sources[0].Err == nil || report.Sources[1].Err != nil {
		t.Errorf("per-source errors = %v, %v", report.Sources[0].Err, report.Sources[1].Err)
	}
}

func TestRunOnce_FatalErrorAborts(t *testing.T) {
	fatal := model.NewStorageIntegrityError("upsert", errors.New("CHECK constraint failed"))
	ing := &recordingIngester{errs: map[string]error{"b": fatal}}
	s := NewScheduler(ing, requests("a", "b", "c"), discardLogger())

	report, err := s.RunOnce(context.Background())
	if !model.IsFatal(err) {
		t.Fatalf("RunOnce error = %v, want storage integrity error", err)
	}
	if got := ing.calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (c must not run)", got)
	}
	if len(report.Sources) != 2 {
		t.Errorf("report has %d sources, want 2", len(report.Sources))
	}
}

func TestRunOnce_CancelledContextStops(t *testing.T) {
	ing := &recordingIngester{}
	s := NewScheduler(ing, requests("a", "b"), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("RunOnce error = %v, want context.Canceled", err)
	}
	if got := ing.calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestRunOnce_AfterCycleHook(t *testing.T) {
	ing := &recordingIngester{counts: model.Counts{Updated: 2}}
	s := NewScheduler(ing, requests("a"), discardLogger())

	var got Report
	s.AfterCycle = func(r Report) { got = r }
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got.Totals.Updated != 2 {
		t.Errorf("hook saw Totals = %+v", got.Totals)
	}
}

// Source b fails on page 2: b's first page and sources a and c are stored.
func TestRunOnce_PartialSourceFailureIsolation(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()

	provider := &pagedProvider{
		pages: map[string][][]string{
			"a": {{"a1", "a2"}},
			"b": {{"b1", "b2"}, {"b3"}},
			"c": {{"c1"}},
		},
		failSrc:  "b",
		failPage: 2,
	}
	svc := ingest.NewService(
		map[string]model.Provider{model.ProviderGreenhouse: provider},
		normalize.New(nil),
		st,
		ratelimit.NewLimiter(0),
		discardLogger(),
	)
	s := NewScheduler(svc, requests("a", "b", "c"), discardLogger())

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	var skipped *model.SourceSkippedError
	if !errors.As(report.Sources[1].Err, &skipped) {
		t.Errorf("source b error = %v, want SourceSkippedError", report.Sources[1].Err)
	}

	for _, id := range []string{"a1", "a2", "b1", "b2", "c1"} {
		if _, err := st.Get(context.Background(), model.ProviderGreenhouse, id); err != nil {
			t.Errorf("Get(%s): %v", id, err)
		}
	}
	if _, err := st.Get(context.Background(), model.ProviderGreenhouse, "b3"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(b3) error = %v, want ErrNotFound", err)
	}
}

func TestRun_CancelReturnsPromptly(t *testing.T) {
	s := NewScheduler(&recordingIngester{}, requests("a"), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, time.Hour)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return within 2s after cancel")
	}
}

func TestRun_RepeatsOnInterval(t *testing.T) {
	ing := &recordingIngester{}
	s := NewScheduler(ing, requests("a"), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, 50*time.Millisecond)
	}()

	// Allow time for at least two full passes.
	time.Sleep(180 * time.Millisecond)
	cancel()
	<-done

	if got := ing.calls.Load(); got < 2 {
		t.Errorf("ingest calls = %d, want >= 2", got)
	}
}

func TestRun_FatalErrorReturned(t *testing.T) {
	fatal := model.NewStorageIntegrityError("upsert", errors.New("NOT NULL constraint failed"))
	s := NewScheduler(&recordingIngester{errs: map[string]error{"a": fatal}}, requests("a"), discardLogger())

	if err := s.Run(context.Background(), time.Hour); !model.IsFatal(err) {
		t.Errorf("Run error = %v, want storage integrity error", err)
	}
}
