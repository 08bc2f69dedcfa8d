package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_TypesenseConfig(t *testing.T) {
	t.Setenv("TYPESENSE_URL", "http://test-typesense:8108")
	t.Setenv("TYPESENSE_API_KEY", "test-key")
	t.Setenv("SEARCH_TEXT_BACKEND", "Typesense")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://test-typesense:8108", cfg.Typesense.URL)
	assert.Equal(t, "test-key", cfg.Typesense.APIKey)
	assert.Equal(t, "typesense", cfg.Search.TextBackend)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8108", cfg.Typesense.URL)
	assert.Equal(t, "bleve", cfg.Search.TextBackend)
	assert.Equal(t, "VND", cfg.Search.DefaultCurrency)
	assert.Equal(t, 20, cfg.Search.DefaultPageSize)
	assert.Equal(t, 5*time.Minute, cfg.Cache.SearchTTL)
	assert.Equal(t, 3*time.Minute, cfg.Cache.SuggestionsTTL)
	assert.Equal(t, 30*time.Minute, cfg.Cache.PopularTTL)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Elasticsearch.Addresses)
}

func TestLoad_ParsesListsAndDurations(t *testing.T) {
	t.Setenv("ES_ADDRESSES", "http://es1:9200, http://es2:9200")
	t.Setenv("SEARCH_PRICE_BUCKETS", "100,200")
	t.Setenv("CACHE_FACETS_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Elasticsearch.Addresses)
	assert.Equal(t, []float64{100, 200}, cfg.Search.PriceBuckets)
	assert.Equal(t, 90*time.Second, cfg.Cache.TierTTL("facets"))
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "memcached")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseDSN_StatementTimeout(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_STATEMENT_TIMEOUT", "2s")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg, err := Load()
	require.NoError(t, err)

	dsn := cfg.Database.DatabaseDSN()
	assert.Contains(t, dsn, "host=db ")
	assert.Contains(t, dsn, "options='-c statement_timeout=2000'")
	assert.Equal(t, "warn", cfg.LogLevel)

	cfg.Database.StatementTimeout = 0
	assert.NotContains(t, cfg.Database.DatabaseDSN(), "statement_timeout")
}
