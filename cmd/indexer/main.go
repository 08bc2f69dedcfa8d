package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/propertysearch/backend/internal/adapters/cache"
	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/backends"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
)

// The indexer rebuilds the shared text and geo backends (Typesense,
// Elasticsearch, Redis) from the property source. API instances pick up the
// new catalogue on their next SEARCH_REINDEX_INTERVAL rebuild.
func main() {
	var reset bool
	var intervalFlag string
	flag.BoolVar(&reset, "reset", false, "drop the text index before reindexing")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-indexer", cfg.Environment, cfg.LogLevel)

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}

	var interval time.Duration
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			log.Fatal().Err(err).Str("interval", intervalValue).Msg("invalid interval")
		}
		if interval <= 0 {
			log.Fatal().Msg("interval must be greater than zero")
		}
	}

	if cfg.Search.TextBackend == "bleve" && cfg.Search.GeoBackend == "bleve" {
		log.Fatal().Msg("bleve indexes live inside each API instance; configure SEARCH_TEXT_BACKEND or SEARCH_GEO_BACKEND to use the indexer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := indexOnce(ctx, cfg, reset || os.Getenv("RESET_INDEX") == "true"); err != nil {
			log.Error().Err(err).Msg("reindex failed")
		}

		if interval <= 0 {
			break
		}

		reset = false
		log.Info().Dur("next_run_in", interval).Msg("reindex complete")

		select {
		case <-ctx.Done():
			log.Info().Msg("reindexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, cfg *config.Config, reset bool) error {
	var pgClient *postgres.Client
	if cfg.Database.Enabled && cfg.Search.SeedFile == "" {
		client, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			return err
		}
		defer client.Close()
		pgClient = client
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable; caches will not be invalidated")
		} else {
			defer client.Close()
			redisClient = client
		}
	}

	repos, err := backends.NewRepositories(cfg, pgClient)
	if err != nil {
		return err
	}
	indexes, err := backends.NewIndexes(ctx, cfg, redisClient, reset)
	if err != nil {
		return err
	}
	defer indexes.Close()

	var invalidator *services.CacheInvalidationService
	if redisClient != nil {
		layer := services.NewCacheLayer(cache.NewRedisAdapter(redisClient), cfg.Cache, cfg.Search.RequestTimeout, nil)
		invalidator = services.NewCacheInvalidationService(layer)
	}
	indexer := services.NewIndexingService(repos.Documents, services.NewDocumentStore(), indexes.Text, indexes.Geo, nil, nil)
	snapshot, err := indexer.Rebuild(ctx)
	if err != nil {
		return err
	}

	if invalidator != nil {
		if err := invalidator.InvalidateSearchCaches(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate search caches")
		}
	}

	log.Info().Int("documents", snapshot.Len()).Bool("reset", reset).Msg("reindex finished")
	return nil
}
