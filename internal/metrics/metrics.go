// Package metrics defines the Prometheus collectors for ingestion runs. The
// tool is a batch job, so instead of serving a scrape endpoint the registry is
// written to a node-exporter textfile after each run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/amishk599/jobagent/internal/model"
)

// Metrics holds the collectors and the private registry they live in.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PostingsTotal   *prometheus.CounterVec
	SkippedTotal    *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	LastSuccessTime *prometheus.GaugeVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PostingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobagent_postings_total",
				Help: "Postings processed by provider and upsert outcome.",
			},
			[]string{"provider", "outcome"},
		),
		SkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobagent_skipped_records_total",
				Help: "Malformed records skipped by provider.",
			},
			[]string{"provider"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobagent_fetch_retries_total",
				Help: "Page fetch retries by operation.",
			},
			[]string{"op"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobagent_ingest_runs_total",
				Help: "Ingest runs by provider and status (ok, partial, failed).",
			},
			[]string{"provider", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobagent_ingest_run_duration_seconds",
				Help:    "Wall time of one source ingest in seconds.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider"},
		),
		LastSuccessTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jobagent_last_success_timestamp_seconds",
				Help: "Unix time of the last fully successful ingest per source.",
			},
			[]string{"provider", "source"},
		),
	}

	m.registry.MustRegister(
		m.PostingsTotal,
		m.SkippedTotal,
		m.RetriesTotal,
		m.RunsTotal,
		m.RunDuration,
		m.LastSuccessTime,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRun records the outcome of one finished ingest run.
func (m *Metrics) ObserveRun(run model.IngestRun) {
	if m == nil {
		return
	}
	m.PostingsTotal.WithLabelValues(run.Provider, model.Inserted.String()).Add(float64(run.Counts.Inserted))
	m.PostingsTotal.WithLabelValues(run.Provider, model.Updated.String()).Add(float64(run.Counts.Updated))
	m.PostingsTotal.WithLabelValues(run.Provider, model.Unchanged.String()).Add(float64(run.Counts.Unchanged))
	m.SkippedTotal.WithLabelValues(run.Provider).Add(float64(run.Counts.Skipped))
	m.RunsTotal.WithLabelValues(run.Provider, run.Status).Inc()
	m.RunDuration.WithLabelValues(run.Provider).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	if run.Status == model.RunOK {
		m.LastSuccessTime.WithLabelValues(run.Provider, run.Source).Set(float64(run.FinishedAt.Unix()))
	}
}

// RecordRetry counts one retried request. Its signature matches
// retry.Policy.OnRetry.
func (m *Metrics) RecordRetry(op string, _ int, _ error) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(op).Inc()
}

// WriteTextfile writes every metric in the node-exporter textfile format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
