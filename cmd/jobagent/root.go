package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobagent/internal/config"
	"github.com/amishk599/jobagent/internal/filter"
	"github.com/amishk599/jobagent/internal/model"
	"github.com/amishk599/jobagent/internal/notifier"
	"github.com/amishk599/jobagent/internal/retry"
	"github.com/amishk599/jobagent/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:          "jobagent",
	Short:        "Job board ingestion and local search",
	Long:         "jobagent pulls postings from Greenhouse, Lever and Workday boards into a local SQLite index and searches them.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: "+config.EnvConfigPath+" env var or ./"+config.DefaultPath+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBAGENT_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	return config.Load(config.ResolvePath(path))
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		policy := retry.New(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, logger)
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, policy, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// alertFilter selects which new postings are worth a notification.
func alertFilter(cfg *config.Config) model.PostingFilter {
	return filter.NewTitleAndCityFilter(cfg.Notification.TitleKeywords, cfg.Notification.Cities)
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.Database)
}
