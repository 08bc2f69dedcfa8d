// Package backends builds the storage, index and cache backends selected by config.
package backends

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/propertysearch/backend/internal/adapters/cache"
	"github.com/zatekoja/propertysearch/backend/internal/adapters/database"
	"github.com/zatekoja/propertysearch/backend/internal/adapters/memory"
	"github.com/zatekoja/propertysearch/backend/internal/adapters/search"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	"github.com/zatekoja/propertysearch/backend/internal/domain/repositories"
	esclient "github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/elasticsearch"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/redis"
	tsclient "github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
)

// RedisGeoKey is the sorted set holding property coordinates
const RedisGeoKey = "search:geo:properties"

// Repositories groups the persistence backends
type Repositories struct {
	Documents  repositories.SearchDocumentRepository
	Popularity repositories.PopularityRepository
	Events     repositories.SearchEventRepository
}

// NewRepositories uses PostgreSQL when a client is given, otherwise the seed file
func NewRepositories(cfg *config.Config, pg *postgres.Client) (*Repositories, error) {
	if pg != nil {
		return &Repositories{
			Documents:  database.NewSearchDocumentAdapter(pg),
			Popularity: database.NewPopularityAdapter(pg),
			Events:     database.NewSearchEventAdapter(pg),
		}, nil
	}

	set := &Repositories{
		Popularity: memory.NewPopularityRepository(),
		Events:     memory.NewEventLog(0),
	}
	if cfg.Search.SeedFile == "" {
		log.Warn().Msg("no database and no seed file configured; starting with an empty catalogue")
		set.Documents = memory.NewDocumentRepository(nil)
		return set, nil
	}
	docs, err := memory.LoadDocumentFile(cfg.Search.SeedFile)
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", cfg.Search.SeedFile).Msg("loaded seed catalogue")
	set.Documents = docs
	return set, nil
}

// Indexes holds the text and geo index backends
type Indexes struct {
	Text  providers.TextIndex
	Geo   providers.GeoIndex
	bleve []*search.BleveIndex
}

// Close releases local indexes
func (s *Indexes) Close() {
	for _, idx := range s.bleve {
		if err := idx.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close bleve index")
		}
	}
}

// NewIndexes builds the configured text and geo backends. When both are bleve
// they share one index.
func NewIndexes(ctx context.Context, cfg *config.Config, redisClient *redis.Client, reset bool) (*Indexes, error) {
	set := &Indexes{}
	var local *search.BleveIndex
	bleveIndex := func() (*search.BleveIndex, error) {
		if local != nil {
			return local, nil
		}
		idx, err := search.NewBleveIndex()
		if err != nil {
			return nil, err
		}
		local = idx
		set.bleve = append(set.bleve, idx)
		return idx, nil
	}

	switch cfg.Search.TextBackend {
	case "typesense":
		client, err := tsclient.NewClient(&cfg.Typesense)
		if err != nil {
			return nil, err
		}
		if err := client.InitSchema(ctx, reset); err != nil {
			return nil, err
		}
		set.Text = search.NewTypesenseAdapter(client)
	case "elasticsearch":
		client, err := esclient.NewClient(&cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		if err := client.InitIndex(ctx, reset); err != nil {
			return nil, err
		}
		set.Text = search.NewElasticsearchAdapter(client)
	default:
		idx, err := bleveIndex()
		if err != nil {
			return nil, err
		}
		set.Text = idx
	}

	switch cfg.Search.GeoBackend {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("SEARCH_GEO_BACKEND=redis requires Redis")
		}
		set.Geo = search.NewRedisGeoIndex(redisClient, RedisGeoKey)
	default:
		idx, err := bleveIndex()
		if err != nil {
			return nil, err
		}
		set.Geo = idx
	}

	log.Info().
		Str("text_backend", cfg.Search.TextBackend).
		Str("geo_backend", cfg.Search.GeoBackend).
		Msg("search indexes initialized")
	return set, nil
}

// NewCacheProvider falls back to a local LRU when Redis is configured but down
func NewCacheProvider(cfg *config.Config, redisClient *redis.Client) (providers.CacheProvider, error) {
	var shared providers.CacheProvider
	if redisClient != nil {
		shared = cache.NewRedisAdapter(redisClient)
	}

	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryAdapter(cfg.Cache.LocalEntries)
	case "tiered":
		if shared == nil {
			local, err := cache.NewMemoryAdapter(cfg.Cache.LocalEntries)
			if err != nil {
				return nil, err
			}
			shared = local
		}
		return cache.NewTieredAdapter(shared, cfg.Cache.L1MaxCost, cfg.Cache.L1TTL)
	default:
		if shared == nil {
			log.Warn().Msg("Redis cache unavailable, using local LRU cache")
			return cache.NewMemoryAdapter(cfg.Cache.LocalEntries)
		}
		return shared, nil
	}
}
