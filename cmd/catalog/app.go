package main

import (
	"context"
	"fmt"

	"github.com/Sternrassler/catalog-client/internal/config"
	"github.com/Sternrassler/catalog-client/internal/views"
	"github.com/Sternrassler/catalog-client/pkg/client"
	"github.com/Sternrassler/catalog-client/pkg/logging"
	"github.com/Sternrassler/catalog-client/pkg/query"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// app bundles the clients every command needs.
type app struct {
	cfg     *config.Config
	rdb     *redis.Client
	api     *client.Client
	qc      *query.Client
	catalog *views.Catalog
}

// newApp connects to Redis when configured and builds the client stack.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return nil, err
	}
	if redisOpts != nil {
		a.rdb = redis.NewClient(redisOpts)
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.rdb.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", redisOpts.Addr, err)
		}
		log.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")
	}

	a.api, err = client.New(cfg.Client(a.rdb))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create catalog client: %w", err)
	}

	a.qc = query.NewClient(query.DefaultConfig(), logging.NewLogger("query"))
	a.catalog = views.New(a.api, a.qc, views.Config{})
	return a, nil
}

// Close releases the clients in reverse order of creation.
func (a *app) Close() {
	if a.qc != nil {
		a.qc.Close()
	}
	if a.api != nil {
		a.api.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
}
