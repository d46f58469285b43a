package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobagent/internal/model"
)

var statsRuns int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show facet counts and recent ingestion runs",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsRuns, "runs", 10, "number of recent runs to show")
	rootCmd.AddCommand(statsCmd)
}

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	total, err := s.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %d\n", sectionStyle.Render("Postings:"), total)

	for _, facet := range []string{"provider", "city", "role_level", "work_type", "remote"} {
		counts, err := s.FacetCounts(ctx, facet)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s\n", sectionStyle.Render(facet))
		printFacetCounts(w, counts)
	}

	runs, err := s.RecentRuns(ctx, statsRuns)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s\n", sectionStyle.Render("Recent runs"))
	printRuns(w, runs)
	return nil
}

func printFacetCounts(w io.Writer, counts []model.FacetCount) {
	if len(counts) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, c := range counts {
		value := c.Value
		if value == "" {
			value = "(unclassified)"
		}
		fmt.Fprintf(w, "  %-30s %6d\n", value, c.Count)
	}
}

func printRuns(w io.Writer, runs []model.IngestRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "  (no runs yet)")
		return
	}
	for _, r := range runs {
		status := r.Status
		switch r.Status {
		case model.RunFailed:
			status = failedStyle.Render(status)
		case model.RunPartial:
			status = partialStyle.Render(status)
		}
		fmt.Fprintf(w, "  %s  %-10s %-30s %-8s +%d ~%d =%d !%d  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Provider, truncate(r.Source, 30), status,
			r.Counts.Inserted, r.Counts.Updated, r.Counts.Unchanged, r.Counts.Skipped,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		)
		if r.Error != "" {
			fmt.Fprintf(w, "      %s\n", r.Error)
		}
	}
}
