package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobagent/internal/browse"
	"github.com/amishk599/jobagent/internal/model"
)

var (
	browseFlags    filterFlags
	browsePickCity bool
)

var browseCmd = &cobra.Command{
	Use:   "browse [TEXT]",
	Short: "Browse search results interactively (TUI)",
	Long: `Runs a search and opens the split-pane browser: every result on the left,
results matching the notification filter on the right. With --pick-city a
city picker runs first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

func init() {
	browseFlags.register(browseCmd)
	browseCmd.Flags().BoolVar(&browsePickCity, "pick-city", false, "choose the city from the stored postings first")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	filters, err := browseFlags.filters(cmd)
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

	if browsePickCity {
		counts, err := s.FacetCounts(cmd.Context(), "city")
		if err != nil {
			return err
		}
		// Unclassified postings have no city to filter on.
		cities := slices.DeleteFunc(counts, func(fc model.FacetCount) bool { return fc.Value == "" })
		city, ok, err := browse.RunFacetPicker("Pick a city", cities)
		if err != nil {
			return fmt.Errorf("picker: %w", err)
		}
		if !ok {
			return nil
		}
		filters.City = city
	}

	label := text
	if label == "" {
		label = "filtered postings"
	}
	results, err := browse.RunLoader(label, func(ctx context.Context) ([]model.Summary, error) {
		return s.Search(ctx, text, filters, browseFlags.limit)
	})
	if err != nil {
		if errors.Is(err, browse.ErrCancelled) {
			return nil
		}
		if errors.Is(err, model.ErrInvalidQuery) {
			return fmt.Errorf("%w (give search text or a filter)", err)
		}
		return err
	}

	return browse.Run(text, results, alertFilter(cfg), s.Get)
}
