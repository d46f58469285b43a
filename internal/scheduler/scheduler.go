package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/amishk599/jobagent/internal/ingest"
	"github.com/amishk599/jobagent/internal/model"
)

// Ingester runs one source. Implemented by *ingest.Service.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (model.Counts, error)
}

// SourceResult is the outcome of one source within a cycle.
type SourceResult struct {
	Request ingest.Request
	Counts  model.Counts
	Err     error
}

// Report summarizes one pass over every source.
type Report struct {
	Sources []SourceResult
	Totals  model.Counts
	Failed  int // sources that ended with an error
}

// Scheduler runs the configured sources one at a time, in registry order.
type Scheduler struct {
	ingester Ingester
	sources  []ingest.Request
	logger   *slog.Logger

	// AfterCycle, if set, is called with the report of every finished cycle.
	AfterCycle func(Report)
}

// NewScheduler creates a scheduler over sources.
func NewScheduler(ingester Ingester, sources []ingest.Request, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		ingester: ingester,
		sources:  sources,
		logger:   logger,
	}
}

// RunOnce ingests every source once. A source that fails is logged and the
// cycle moves on; only a fatal storage error or cancellation stops it early.
// The report covers every source attempted so far.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	start := time.Now()

	for _, req := range s.sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		counts, err := s.ingester.Ingest(ctx, req)
		report.Sources = append(report.Sources, SourceResult{Request: req, Counts: counts, Err: err})
		report.Totals.Merge(counts)
		if err != nil {
			report.Failed++
			if model.IsFatal(err) {
				s.logger.Error("aborting run on storage failure", "provider", req.Provider, "source", req.Source, "error", err)
				return report, err
			}
			s.logger.Warn("source skipped", "provider", req.Provider, "source", req.Source, "error", err)
		}
	}

	s.logger.Info("run complete",
		"sources", len(s.sources),
		"failed", report.Failed,
		"inserted", report.Totals.Inserted,
		"updated", report.Totals.Updated,
		"unchanged", report.Totals.Unchanged,
		"skipped", report.Totals.Skipped,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	if s.AfterCycle != nil {
		s.AfterCycle(report)
	}
	return report, nil
}

// Run runs one immediate cycle, then one every interval. It returns nil when
// ctx is cancelled (graceful shutdown) and the error of a fatal cycle.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	s.logger.Info("starting scheduler",
		"interval", interval.String(),
		"sources", len(s.sources),
	)

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("shutting down scheduler")
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-time.After(interval):
		}
	}
}
