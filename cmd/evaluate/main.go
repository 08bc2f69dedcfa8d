package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/evaluation"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/backends"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
)

// pipelineSearch scores the ranking itself, without the cache in front of it
type pipelineSearch struct {
	pipeline *services.SearchPipeline
}

func (p pipelineSearch) Search(ctx context.Context, req *entities.SearchRequest) (*entities.SearchResult, error) {
	result, _, err := p.pipeline.Execute(ctx, req)
	return result, err
}

func main() {
	goldenPath := flag.String("golden", "config/golden_queries.json", "path to the golden query set")
	minRecall := flag.Float64("min-recall", evaluation.DefaultGuardrails().MinRecallAt10, "minimum average recall@10")
	minMRR := flag.Float64("min-mrr", evaluation.DefaultGuardrails().MinMRRAt10, "minimum average mrr@10")
	verbose := flag.Bool("v", false, "include per-query results in the output")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("property-search-evaluate", cfg.Environment, cfg.LogLevel)

	queries, err := evaluation.LoadGoldenQueries(*goldenPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load golden queries")
	}
	if err := evaluation.ValidateGoldenQueries(queries); err != nil {
		log.Fatal().Err(err).Msg("invalid golden queries")
	}

	ctx := context.Background()

	var pgClient *postgres.Client
	if cfg.Database.Enabled && cfg.Search.SeedFile == "" {
		pgClient, err = postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
		}
		defer pgClient.Close()
	}

	var redisClient *redis.Client
	if cfg.Search.GeoBackend == "redis" {
		redisClient, err = redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("redis geo backend configured but Redis is unavailable")
		}
		defer redisClient.Close()
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

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	docs := services.NewDocumentStore()
	popularity := services.NewPopularityStore(repos.Popularity)
	if err := popularity.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to load popularity snapshot, evaluating without it")
	}

	indexer := services.NewIndexingService(repos.Documents, docs, indexes.Text, indexes.Geo, nil, nil)
	snapshot, err := indexer.Rebuild(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build index")
	}
	log.Info().Int("documents", snapshot.Len()).Int("queries", len(queries)).Msg("running evaluation")

	pipeline := services.NewSearchPipeline(
		docs,
		services.NewTextRanker(indexes.Text, cfg.Ranking, cfg.Search.TextCandidateLimit, cfg.Search.TextTimeout),
		services.NewGeoFilter(indexes.Geo, cfg.Search.MaxRadiusKm, cfg.Search.GeoTimeout),
		services.NewFacetAggregator(cfg.Search.PriceBuckets),
		services.NewScoreComposer(cfg.Ranking, popularity),
		metrics,
	)

	runner := evaluation.NewRunner(pipelineSearch{pipeline: pipeline}, services.NewNormalizer(cfg.Search))
	summary, err := runner.Run(ctx, queries)
	if err != nil {
		log.Fatal().Err(err).Msg("evaluation failed")
	}

	guards := evaluation.DefaultGuardrails()
	guards.MinRecallAt10 = *minRecall
	guards.MinMRRAt10 = *minMRR
	violations := evaluation.NewGuardrails(guards).Check(summary)

	if !*verbose {
		summary.Results = nil
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode summary")
	}
	fmt.Println(string(out))

	if len(violations) > 0 {
		for _, v := range violations {
			log.Error().Str("violation", v).Msg("quality gate failed")
		}
		os.Exit(1)
	}
}
