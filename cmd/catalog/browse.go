package main

import (
	"github.com/Sternrassler/catalog-client/internal/tui"
	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/logging"
	"github.com/spf13/cobra"
)

func newBrowseCmd(root *rootOptions) *cobra.Command {
	var (
		paged    bool
		search   string
		sort     string
		category string
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse products in the terminal",
		Long: `Opens the interactive product browser. The list scrolls infinitely,
or pages with --paged. Logs go to CATALOG_LOG_FILE when set and are
discarded otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg

			order, err := catalog.ParseSortOrder(sort)
			if err != nil {
				return err
			}

			if cfg.LogFile != "" {
				_, closer, err := logging.SetupFile(cfg.Logging())
				if err != nil {
					return err
				}
				defer closer.Close()
			} else {
				logging.Silence()
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return tui.Run(cmd.Context(), a.catalog, tui.Options{
				Paged: paged,
				Filter: catalog.Filter{
					Search:   search,
					Sort:     order,
					Category: category,
				},
			})
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&paged, "paged", false, "page through the list instead of scrolling")
	flags.StringVar(&search, "search", "", "initial search text")
	flags.StringVar(&sort, "sort", "", "initial price order: asc or desc")
	flags.StringVar(&category, "category", "", "initial category slug")
	return cmd
}
