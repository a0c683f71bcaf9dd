package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/Sternrassler/catalog-client/internal/views"
	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/logging"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newGetCmd(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			if err := checkFormat(format, "text", "json", "yaml"); err != nil {
				return err
			}

			cfg := root.cfg
			logging.Setup(cfg.Logging())

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.api.GetProduct(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeProduct(cmd.OutOrStdout(), p, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	return cmd
}

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (want one of %v)", format, allowed)
}

func writeProduct(w io.Writer, p *catalog.Product, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "yaml":
		return yaml.NewEncoder(w).Encode(views.NewCard(*p))
	}

	fmt.Fprintf(w, "%s\n", p.Title)
	fmt.Fprintf(w, "  Price:    %s", p.FormattedPrice())
	if !p.DiscountPercentage.IsZero() {
		fmt.Fprintf(w, " ($%s after %s%% off)", p.DiscountedPrice().StringFixed(2), p.DiscountPercentage.String())
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Category: %s\n", p.Category)
	fmt.Fprintf(w, "  Stock:    %s\n", humanize.Comma(int64(p.Stock)))
	if p.Description != "" {
		fmt.Fprintf(w, "\n%s\n", p.Description)
	}
	return nil
}
