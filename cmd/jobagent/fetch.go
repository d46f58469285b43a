package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobagent/internal/adapter"
	"github.com/amishk599/jobagent/internal/ingest"
	"github.com/amishk599/jobagent/internal/metrics"
	"github.com/amishk599/jobagent/internal/model"
	"github.com/amishk599/jobagent/internal/normalize"
	"github.com/amishk599/jobagent/internal/notifier"
	"github.com/amishk599/jobagent/internal/ratelimit"
	"github.com/amishk599/jobagent/internal/retry"
	"github.com/amishk599/jobagent/internal/scheduler"
	"github.com/amishk599/jobagent/internal/store"
)

var (
	fetchDryRun  bool
	fetchEvery   time.Duration
	fetchSources []string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Ingest every enabled source",
	Long: `Fetches every enabled source in registry order and upserts the postings.
With --every the run repeats on that interval until SIGINT/SIGTERM.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchDryRun, "dry-run", false, "fetch and log, but do not write to the database")
	fetchCmd.Flags().DurationVar(&fetchEvery, "every", 0, "repeat the run on this interval (e.g. 30m)")
	fetchCmd.Flags().StringSliceVar(&fetchSources, "source", nil, "only run sources matching provider:source, source or name (repeatable)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	reqs := selectSources(cfg.Requests(), fetchSources)
	if len(reqs) == 0 {
		return fmt.Errorf("no enabled source matches %v", fetchSources)
	}
	logger.Info("config loaded",
		"sources", len(reqs),
		"database", cfg.Database,
		"min_delay", cfg.RateLimit.MinDelay.String(),
		"max_retries", cfg.Retry.MaxRetries,
	)

	m := metrics.New()
	policy := retry.New(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, logger)
	policy.OnRetry = m.RecordRetry

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	client := adapter.NewClient(httpClient, policy, cfg.UserAgent, logger)

	// Dry runs see every posting as new, so alerts only go to the log.
	var postingStore model.PostingStore
	var n model.Notifier
	if fetchDryRun {
		logger.Info("dry-run mode enabled, nothing will be stored")
		postingStore = store.NewNopStore()
		n = notifier.NewLogNotifier(logger)
	} else {
		sqlStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer sqlStore.Close()
		postingStore = sqlStore
		n = setupNotifier(cfg, httpClient, logger)
	}

	svc := ingest.NewService(
		adapter.Providers(client),
		normalize.New(cfg.Region.Cities),
		postingStore,
		ratelimit.NewLimiter(cfg.RateLimit.MinDelay),
		logger,
		ingest.WithNotifier(n, alertFilter(cfg)),
		ingest.WithMetrics(m),
	)

	sched := scheduler.NewScheduler(svc, reqs, logger)
	sched.AfterCycle = func(scheduler.Report) {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	ctx := cmd.Context()
	if fetchEvery > 0 {
		return sched.Run(ctx, fetchEvery)
	}

	report, err := sched.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("interrupted", "completed_sources", len(report.Sources))
			return nil
		}
		return err
	}
	return nil
}

// selectSources keeps the requests matching any of the given selectors.
// A selector is "provider:source", a bare source or a display name.
// No selectors keeps everything.
func selectSources(reqs []ingest.Request, selectors []string) []ingest.Request {
	if len(selectors) == 0 {
		return reqs
	}
	var out []ingest.Request
	for _, r := range reqs {
		for _, sel := range selectors {
			sel = strings.TrimSpace(sel)
			if strings.EqualFold(sel, r.Provider+":"+r.Source) ||
				sel == r.Source ||
				(r.Name != "" && strings.EqualFold(sel, r.Name)) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
