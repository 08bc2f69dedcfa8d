package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/propertysearch/backend/internal/adapters/events"
	"github.com/zatekoja/propertysearch/backend/internal/api/handlers"
	"github.com/zatekoja/propertysearch/backend/internal/api/middleware"
	"github.com/zatekoja/propertysearch/backend/internal/api/routes"
	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/backends"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Environment, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// PostgreSQL is the property source unless a seed file is configured
	var pgClient *postgres.Client
	if cfg.Database.Enabled && cfg.Search.SeedFile == "" {
		pgClient, err = postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()
	}

	// Redis backs the shared cache, geo index and event bus; without it the
	// instance runs on local equivalents
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing with local cache and event bus")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	repos, err := backends.NewRepositories(cfg, pgClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repositories")
	}

	indexes, err := backends.NewIndexes(ctx, cfg, redisClient, false)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize search indexes")
	}
	defer indexes.Close()

	cacheProvider, err := backends.NewCacheProvider(cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache")
	}

	var eventBus providers.EventBus
	if redisClient != nil {
		eventBus = events.NewRedisEventBus(redisClient)
	} else {
		eventBus = events.NewMemoryEventBus()
		log.Warn().Msg("using in-process event bus; property events only reach this instance")
	}

	// Core stores
	docs := services.NewDocumentStore()
	popularity := services.NewPopularityStore(repos.Popularity)
	if err := popularity.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to load popularity snapshot, starting cold")
	}

	layer := services.NewCacheLayer(cacheProvider, cfg.Cache, cfg.Search.RequestTimeout, metrics)
	normalizer := services.NewNormalizer(cfg.Search)

	pipeline := services.NewSearchPipeline(
		docs,
		services.NewTextRanker(indexes.Text, cfg.Ranking, cfg.Search.TextCandidateLimit, cfg.Search.TextTimeout),
		services.NewGeoFilter(indexes.Geo, cfg.Search.MaxRadiusKm, cfg.Search.GeoTimeout),
		services.NewFacetAggregator(cfg.Search.PriceBuckets),
		services.NewScoreComposer(cfg.Ranking, popularity),
		metrics,
	)
	searchService := services.NewCachedSearchService(pipeline, layer, popularity, metrics)
	suggestionService := services.NewSuggestionService(docs, popularity, layer)
	destinationService := services.NewPopularDestinationsService(docs, popularity, layer)
	invalidator := services.NewCacheInvalidationService(layer)

	indexer := services.NewIndexingService(repos.Documents, docs, indexes.Text, indexes.Geo, eventBus, invalidator)
	if _, err := indexer.Rebuild(ctx); err != nil {
		log.Error().Err(err).Msg("initial index build failed; serving 503 on /health until the next rebuild")
	}
	if err := indexer.Start(); err != nil {
		log.Warn().Err(err).Msg("failed to subscribe to property events")
	}
	indexer.StartPeriodicRebuild(cfg.Search.ReindexEvery)

	analytics := services.NewAnalyticsFeedbackLoop(cfg.Analytics, repos.Events, popularity, metrics)
	analytics.Start()

	if cfg.Cache.WarmInterval > 0 {
		warming := services.NewCacheWarmingService(searchService, destinationService, normalizer, cfg.Cache.WarmDestinations)
		go warming.StartPeriodicWarming(ctx, cfg.Cache.WarmInterval)
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter, err = middleware.NewRateLimiter(cfg.RateLimit)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize rate limiter")
		}
	}

	router := routes.NewRouter(
		handlers.NewSearchHandler(searchService, normalizer, analytics),
		handlers.NewSuggestHandler(suggestionService, destinationService, normalizer),
		handlers.NewEventHandler(analytics, eventBus),
		handlers.NewHealthHandler(docs, popularity, cacheProvider),
		rateLimiter,
		cfg.Server.AllowedOrigins,
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// the analytics queue is drained after the server stops accepting requests
	if err := analytics.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("analytics loop did not drain before shutdown deadline")
	}
	indexer.Stop()
	cancel()

	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("error closing event bus")
	}

	log.Info().Msg("server stopped")
}
