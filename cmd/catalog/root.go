package main

import (
	"github.com/Sternrassler/catalog-client/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags. Set flags override the
// environment.
type rootOptions struct {
	envFile  string
	baseURL  string
	redisURL string
	logLevel string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Product catalog client",
		Long: `catalog fetches products from a DummyJSON-compatible product API and
presents them as a web shop, a terminal browser or an export.

Configuration is read from CATALOG_* environment variables, optionally
seeded from a .env file. Flags override the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to seed the environment from")
	flags.StringVar(&opts.baseURL, "base-url", "", "product API root (CATALOG_BASE_URL)")
	flags.StringVar(&opts.redisURL, "redis", "", "Redis address or URL (CATALOG_REDIS_URL)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (CATALOG_LOG_LEVEL)")

	cmd.AddCommand(
		newServeCmd(opts),
		newBrowseCmd(opts),
		newGetCmd(opts),
		newExportCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = o.baseURL
	}
	if flags.Changed("redis") {
		cfg.RedisURL = o.redisURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.cfg = cfg
	return nil
}
