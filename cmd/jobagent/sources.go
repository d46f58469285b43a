package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List all configured sources",
	Long:  "Reads the config and prints a table of every source in registry order.",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-12s %-40s %-20s %-9s %s\n", "Provider", "Source", "Name", "Status", "Min delay")
	fmt.Fprintln(w, strings.Repeat("─", 95))

	enabled, disabled := 0, 0
	for _, s := range cfg.Sources {
		status := "enabled"
		if !s.Enabled {
			status = "disabled"
			disabled++
		} else {
			enabled++
		}
		delay := s.Rate
		if delay == 0 {
			delay = cfg.RateLimit.MinDelayFor(s.Provider)
		}
		fmt.Fprintf(w, "%-12s %-40s %-20s %-9s %s\n", s.Provider, truncate(s.Source, 40), truncate(s.Name, 20), status, delay)
	}

	fmt.Fprintf(w, "\nTotal: %d sources (%d enabled, %d disabled)\n", len(cfg.Sources), enabled, disabled)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
