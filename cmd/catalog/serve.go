package main

import (
	"github.com/Sternrassler/catalog-client/internal/server"
	"github.com/Sternrassler/catalog-client/pkg/logging"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web shop and JSON API",
		Long: `Serves the product list at /products, product details at /products/{id}
and the JSON API under /api. Health, readiness and Prometheus metrics are
exposed at /health, /ready and /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			logger := logging.Setup(cfg.Logging())

			if addr == "" {
				addr = ":" + cfg.Port
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srvCfg := server.DefaultConfig()
			srvCfg.Addr = addr
			srv, err := server.New(a.catalog, a.api, srvCfg)
			if err != nil {
				return err
			}

			logger.Info().
				Str("base_url", cfg.BaseURL).
				Bool("redis", a.rdb != nil).
				Msg("Catalog server configured")
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default \":$CATALOG_PORT\")")
	return cmd
}
