package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobagent/internal/browse"
	"github.com/amishk599/jobagent/internal/model"
	"github.com/amishk599/jobagent/internal/store"
)

type filterFlags struct {
	city     string
	level    string
	workType string
	remote   bool
	limit    int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.city, "city", "", "only postings in this city")
	cmd.Flags().StringVar(&f.level, "level", "", "role level: intern, entry, mid, senior, lead, manager")
	cmd.Flags().StringVar(&f.workType, "work-type", "", "full-time, part-time, contract or internship")
	cmd.Flags().BoolVar(&f.remote, "remote", false, "only remote postings (--remote=false for on-site only)")
	cmd.Flags().IntVar(&f.limit, "limit", store.DefaultLimit, fmt.Sprintf("maximum results (at most %d)", store.MaxLimit))
}

// filters builds search filters. Remote is only constrained when the flag
// was given explicitly.
func (f *filterFlags) filters(cmd *cobra.Command) (model.Filters, error) {
	var remote *bool
	if cmd.Flags().Changed("remote") {
		r := f.remote
		remote = &r
	}
	return parseFilters(f.city, f.level, f.workType, remote)
}

func parseFilters(city, level, workType string, remote *bool) (model.Filters, error) {
	out := model.Filters{
		City:   strings.TrimSpace(city),
		Remote: remote,
	}
	if level != "" {
		lvl := model.RoleLevel(strings.ToLower(level))
		if lvl.Rank() < 0 {
			return model.Filters{}, fmt.Errorf("unknown level %q", level)
		}
		out.RoleLevel = lvl
	}
	if workType != "" {
		wt := model.WorkType(strings.ToLower(workType))
		if !slices.Contains(model.WorkTypes, wt) {
			return model.Filters{}, fmt.Errorf("unknown work type %q", workType)
		}
		out.WorkType = wt
	}
	return out, nil
}

var (
	queryFlags filterFlags
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query [TEXT]",
	Short: "Search stored postings",
	Long: `Full-text search over title, description and location,
ranked by relevance then recency. TEXT may be empty when a filter is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryFlags.register(queryCmd)
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	filters, err := queryFlags.filters(cmd)
	if err != nil {
		return err
	}
	var text string
	if len(args) == 1 {
		text = args[0]
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.Search(cmd.Context(), text, filters, queryFlags.limit)
	if err != nil {
		if errors.Is(err, model.ErrInvalidQuery) {
			return fmt.Errorf("%w (try: jobagent query \"data analyst\" --city Boston)", err)
		}
		return err
	}

	if queryJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printResults(cmd.OutOrStdout(), results)
	return nil
}

var (
	resultTitleStyle   = lipgloss.NewStyle().Bold(true)
	resultCompanyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	resultMetaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	resultURLStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Underline(true)
)

func printResults(w io.Writer, results []model.Summary) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No postings found.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%2d. %s  %s\n", i+1, resultTitleStyle.Render(r.Title), resultCompanyStyle.Render(r.Company))
		fmt.Fprintf(w, "    %s\n", resultMetaStyle.Render(browse.Subtitle(r)))
		if r.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", r.Snippet)
		}
		fmt.Fprintf(w, "    %s\n", resultURLStyle.Render(r.URL))
	}
	fmt.Fprintf(w, "\n%d result(s)\n", len(results))
}
