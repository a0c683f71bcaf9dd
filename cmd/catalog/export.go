package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/client"
	"github.com/Sternrassler/catalog-client/pkg/logging"
	"github.com/Sternrassler/catalog-client/pkg/pagination"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newExportCmd(root *rootOptions) *cobra.Command {
	var (
		format      string
		out         string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full product list",
		Long: `Fetches every offset page of the product list in parallel and writes
the products in order as JSON or YAML.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "json", "yaml"); err != nil {
				return err
			}

			cfg := root.cfg
			logger := logging.Setup(cfg.Logging())

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			batchCfg := pagination.DefaultConfig()
			if concurrency > 0 {
				batchCfg.MaxConcurrency = concurrency
			}
			products, err := exportProducts(cmd.Context(), a.api, batchCfg)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			cw := &countingWriter{w: w}
			if err := encodeProducts(cw, products, format); err != nil {
				return fmt.Errorf("write export: %w", err)
			}

			logger.Info().
				Int("products", len(products)).
				Str("size", humanize.Bytes(uint64(cw.n))).
				Str("format", format).
				Msg("Export complete")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	flags.StringVarP(&out, "out", "o", "", "output file (default stdout)")
	flags.IntVar(&concurrency, "concurrency", 0, "parallel page fetches")
	return cmd
}

// exportProducts fetches every offset page and flattens them in page order.
func exportProducts(ctx context.Context, api *client.Client, cfg pagination.Config) ([]catalog.Product, error) {
	size := api.PageSize()
	fetch := pagination.FetchFunc[*catalog.ProductList](func(ctx context.Context, page int) (*catalog.ProductList, int, error) {
		list, err := api.FetchPage(ctx, page)
		if err != nil {
			return nil, 0, err
		}
		return list, pagination.TotalPages(list.Total, size), nil
	})

	pages, err := pagination.NewBatchFetcher[*catalog.ProductList](fetch, cfg).FetchAllPages(ctx)
	if err != nil {
		return nil, err
	}

	var products []catalog.Product
	for _, list := range pagination.Ordered(pages) {
		products = append(products, list.Products...)
	}
	return products, nil
}

func encodeProducts(w io.Writer, products []catalog.Product, format string) error {
	if products == nil {
		products = []catalog.Product{}
	}
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(products)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(products)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
