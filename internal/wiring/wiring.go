// Package wiring assembles stores, the property builder and search runners
// from configuration, so each binary only deals with its own transport.
package wiring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DeafMist/pagemap-facets/internal/config"
	"github.com/DeafMist/pagemap-facets/internal/customsearch"
	"github.com/DeafMist/pagemap-facets/internal/elasticsearch"
	"github.com/DeafMist/pagemap-facets/internal/logger"
	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/processing"
	"github.com/DeafMist/pagemap-facets/internal/search"
	"github.com/DeafMist/pagemap-facets/internal/store"
	"github.com/DeafMist/pagemap-facets/internal/store/redisstore"
	"github.com/DeafMist/pagemap-facets/internal/store/sqlite"
	"github.com/DeafMist/pagemap-facets/internal/units"
)

// OpenStore opens the backend named by cfg.StoreBackend. The returned close
// function is never nil.
func OpenStore(ctx context.Context, cfg config.Common, log *slog.Logger) (store.Store, func() error, error) {
	log = logger.OrDiscard(log)
	noop := func() error { return nil }

	switch cfg.StoreBackend {
	case config.BackendMemory, "":
		return store.NewMemory(), noop, nil

	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info("sqlite store opened", slog.String("path", s.Path()))
		return s, s.Close, nil

	case config.BackendRedis:
		s, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("open redis store: %w", err)
		}
		log.Info("redis store opened", slog.String("addr", cfg.RedisAddr))
		return s, s.Close, nil

	case config.BackendElasticsearch:
		c, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			return nil, noop, err
		}
		if err := c.EnsureIndex(ctx); err != nil {
			return nil, noop, fmt.Errorf("prepare elasticsearch index: %w", err)
		}
		return c, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewBuilder returns a property builder using real unit and duration conversion.
func NewBuilder(profile models.Profile, st store.Store, log *slog.Logger) *processing.Builder {
	refiner := processing.NewRefiner(units.NewConverter(), units.NewDurations(), log)
	return processing.NewBuilder(profile, refiner, st, log)
}

// NewRunner builds a search runner backed by the Custom Search API.
func NewRunner(ctx context.Context, cfg config.Search, profile models.Profile, st store.Store, log *slog.Logger) (*search.Runner, error) {
	client, err := NewRetriever(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return search.NewRunner(client, NewBuilder(profile, st, log), st, profile, cfg.PageLimit, log), nil
}

// NewRetriever builds the Custom Search client from configuration.
func NewRetriever(ctx context.Context, cfg config.Search, log *slog.Logger) (*customsearch.Client, error) {
	client, err := customsearch.New(ctx, customsearch.Config{
		APIKey:            cfg.GoogleAPIKey,
		SearchEngineID:    cfg.SearchEngineID,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create search client: %w", err)
	}
	return client, nil
}
