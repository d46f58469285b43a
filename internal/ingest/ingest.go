// Package ingest runs one source through the pipeline:
// fetch → normalize → upsert → notify → record run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobagent/internal/metrics"
	"github.com/amishk599/jobagent/internal/model"
	"github.com/amishk599/jobagent/internal/normalize"
	"github.com/amishk599/jobagent/internal/ratelimit"
)

// Request names one source to ingest.
type Request struct {
	Provider string        // provider name, e.g. "lever"
	Source   string        // board token, company slug or cxs URL
	Name     string        // optional company display name
	Rate     time.Duration // minimum spacing between requests; zero uses the limiter default
}

// Service owns the ingest pipeline and its dependencies. Sources are expected
// to run one at a time.
type Service struct {
	providers  map[string]model.Provider
	normalizer *normalize.Normalizer
	store      model.PostingStore
	limiter    *ratelimit.Limiter
	notifier   model.Notifier
	filter     model.PostingFilter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sends newly inserted postings that pass filter to n.
// A nil filter passes everything.
func WithNotifier(n model.Notifier, filter model.PostingFilter) Option {
	return func(s *Service) {
		s.notifier = n
		s.filter = filter
	}
}

// WithMetrics records every run in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an ingest service wired with all its dependencies.
func NewService(
	providers map[string]model.Provider,
	normalizer *normalize.Normalizer,
	store model.PostingStore,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		providers:  providers,
		normalizer: normalizer,
		store:      store,
		limiter:    limiter,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest fetches every listing of one source and upserts it. Records are
// stored as they arrive, so a failure on a later page keeps earlier ones.
//
// A page that fails after retries ends the source with a
// *model.SourceSkippedError alongside the partial counts. A
// *model.StorageIntegrityError is returned as is and must stop the caller.
func (s *Service) Ingest(ctx context.Context, req Request) (model.Counts, error) {
	provider, ok := s.providers[req.Provider]
	if !ok {
		return model.Counts{}, fmt.Errorf("unknown provider %q", req.Provider)
	}
	if req.Source == "" {
		return model.Counts{}, fmt.Errorf("%s: empty source", req.Provider)
	}

	run := model.IngestRun{
		ID:         uuid.NewString(),
		Provider:   req.Provider,
		Source:     req.Source,
		StartedAt:  s.now(),
		Normalizer: s.normalizer.Fingerprint(),
	}
	logger := s.logger.With("run_id", run.ID, "provider", req.Provider, "source", req.Source)

	// Only a clean run under the current facet rules may skip unchanged boards;
	// after a region change every posting is fetched and re-normalized.
	src := model.Source{Identifier: req.Source, Company: req.Name}
	if history, ok := s.store.(model.RunHistory); ok {
		last, err := history.LastSuccessfulRun(ctx, req.Provider, req.Source, run.Normalizer)
		if err != nil {
			logger.Warn("reading last run failed, fetching everything", "error", err)
		} else {
			src.ModifiedSince = last
		}
	}

	var pacer model.Pacer = s.limiter
	if req.Rate > 0 {
		pacer = s.limiter.Pacer(req.Rate)
	}

	var (
		counts   model.Counts
		inserted []model.Posting
		srcErr   error
	)
	for raw, err := range provider.FetchAll(ctx, src, pacer) {
		if err != nil {
			var malformed *model.MalformedRecordError
			if errors.As(err, &malformed) {
				counts.Skipped++
				logger.Warn("skipping malformed record", "index", malformed.Index, "reason", malformed.Reason)
				continue
			}
			srcErr = err
			break
		}

		p := s.normalizer.Apply(raw)
		outcome, err := s.store.Upsert(ctx, p)
		if err != nil {
			if model.IsFatal(err) {
				var integrity *model.StorageIntegrityError
				errors.As(err, &integrity)
				logger.Error("storage integrity failure", "error", err, "stack", string(integrity.Stack))
				s.finish(ctx, logger, run, counts, err)
				return counts, err
			}
			srcErr = err
			break
		}
		counts.Add(outcome)
		if outcome == model.Inserted {
			inserted = append(inserted, p)
		}
	}

	s.notify(logger, inserted)

	if srcErr != nil {
		srcErr = &model.SourceSkippedError{Provider: req.Provider, Source: req.Source, Err: srcErr}
	}
	if err := s.finish(ctx, logger, run, counts, srcErr); err != nil {
		return counts, err
	}
	return counts, srcErr
}

// finish records the run and its metrics. Only a fatal store error is
// returned; anything else is logged.
func (s *Service) finish(ctx context.Context, logger *slog.Logger, run model.IngestRun, counts model.Counts, runErr error) error {
	run.FinishedAt = s.now()
	run.Counts = counts
	switch {
	case runErr == nil:
		run.Status = model.RunOK
	case counts.Total() > 0:
		run.Status = model.RunPartial
	default:
		run.Status = model.RunFailed
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	s.metrics.ObserveRun(run)

	// Record even when the run was cancelled.
	if err := s.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		if model.IsFatal(err) {
			return err
		}
		logger.Warn("recording run failed", "error", err)
	}

	args := []any{
		"status", run.Status,
		"inserted", counts.Inserted,
		"updated", counts.Updated,
		"unchanged", counts.Unchanged,
		"skipped", counts.Skipped,
		"elapsed", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
	}
	if runErr != nil {
		logger.Warn("source ingested with errors", append(args, "error", runErr)...)
	} else {
		logger.Info("source ingested", args...)
	}
	return nil
}

func (s *Service) notify(logger *slog.Logger, inserted []model.Posting) {
	if s.notifier == nil || len(inserted) == 0 {
		return
	}
	var matched []model.Posting
	for _, p := range inserted {
		if s.filter == nil || s.filter.Match(p) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return
	}
	if err := s.notifier.Notify(matched); err != nil {
		logger.Error("notifying new postings failed", "count", len(matched), "error", err)
	}
}
