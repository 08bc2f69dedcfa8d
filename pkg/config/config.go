package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment   string
	LogLevel      string
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Typesense     TypesenseConfig
	Elasticsearch ElasticsearchConfig
	Search        SearchConfig
	Ranking       RankingConfig
	Cache         CacheConfig
	Analytics     AnalyticsConfig
	RateLimit     RateLimitConfig
	OTEL          OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// StatementTimeout bounds every query on the read path; zero leaves the server default
	StatementTimeout time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL        string
	APIKey     string
	Collection string
}

// ElasticsearchConfig holds Elasticsearch configuration
type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// SearchConfig holds pipeline limits, budgets and backend selection
type SearchConfig struct {
	// TextBackend is one of bleve, typesense, elasticsearch
	TextBackend string
	// GeoBackend is one of bleve, redis
	GeoBackend string
	// SeedFile optionally loads documents from JSON instead of Postgres
	SeedFile string

	DefaultPageSize    int
	MaxPageSize        int
	MaxPage            int
	DefaultRadiusKm    float64
	MinRadiusKm        float64
	MaxRadiusKm        float64
	DefaultCurrency    string
	DefaultSuggestions int
	MaxSuggestions     int
	TextCandidateLimit int
	PriceBuckets       []float64

	TextTimeout    time.Duration
	GeoTimeout     time.Duration
	RequestTimeout time.Duration
	ReindexEvery   time.Duration
}

// RankingConfig holds score composition weights
type RankingConfig struct {
	NameBoost        float64
	CityBoost        float64
	DescriptionBoost float64
	ExactNameBoost   float64

	RelevanceWeight float64
	DistanceWeight  float64
	BusinessWeight  float64
	DistanceDecayKm float64

	PopularityWeight float64
	ConversionWeight float64
	ReviewWeight     float64
	PromotedBonus    float64
}

// CacheConfig holds cache tier settings
type CacheConfig struct {
	// Backend is one of redis, memory, tiered
	Backend        string
	KeyPrefix      string
	LocalEntries   int
	L1MaxCost      int64
	L1TTL          time.Duration
	StaleFactor    int
	SearchTTL      time.Duration
	SuggestionsTTL time.Duration
	PopularTTL     time.Duration
	FacetsTTL      time.Duration
	LocationTTL    time.Duration

	// WarmInterval of zero disables periodic cache warming
	WarmInterval     time.Duration
	WarmDestinations int
}

// AnalyticsConfig holds feedback loop settings
type AnalyticsConfig struct {
	QueueSize          int
	BatchSize          int
	FlushInterval      time.Duration
	Window             time.Duration
	SmoothingAlpha     float64
	VolumeWeight       float64
	CTRWeight          float64
	ConversionWeight   float64
	ExpectedSessions   uint
	BloomFalsePositive float64
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
	MaxClients        int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "")),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DB_ENABLED", true),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "property_search"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			URL:        getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey:     getEnv("TYPESENSE_API_KEY", "xyz"),
			Collection: getEnv("TYPESENSE_COLLECTION", "properties"),
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: getEnvAsList("ES_ADDRESSES", []string{"http://localhost:9200"}),
			Username:  getEnv("ES_USERNAME", ""),
			Password:  getEnv("ES_PASSWORD", ""),
			Index:     getEnv("ES_INDEX", "properties"),
		},
		Search: SearchConfig{
			TextBackend:        strings.ToLower(getEnv("SEARCH_TEXT_BACKEND", "bleve")),
			GeoBackend:         strings.ToLower(getEnv("SEARCH_GEO_BACKEND", "bleve")),
			SeedFile:           getEnv("SEARCH_SEED_FILE", ""),
			DefaultPageSize:    getEnvAsInt("SEARCH_DEFAULT_PAGE_SIZE", 20),
			MaxPageSize:        getEnvAsInt("SEARCH_MAX_PAGE_SIZE", 100),
			MaxPage:            getEnvAsInt("SEARCH_MAX_PAGE", 50),
			DefaultRadiusKm:    getEnvAsFloat("SEARCH_DEFAULT_RADIUS_KM", 10),
			MinRadiusKm:        getEnvAsFloat("SEARCH_MIN_RADIUS_KM", 0.1),
			MaxRadiusKm:        getEnvAsFloat("SEARCH_MAX_RADIUS_KM", 100),
			DefaultCurrency:    strings.ToUpper(getEnv("SEARCH_DEFAULT_CURRENCY", "VND")),
			DefaultSuggestions: getEnvAsInt("SUGGEST_DEFAULT_LIMIT", 5),
			MaxSuggestions:     getEnvAsInt("SUGGEST_MAX_LIMIT", 10),
			TextCandidateLimit: getEnvAsInt("SEARCH_TEXT_CANDIDATES", 1000),
			PriceBuckets:       getEnvAsFloatList("SEARCH_PRICE_BUCKETS", []float64{500000, 1000000, 2000000, 5000000}),
			TextTimeout:        getEnvAsDuration("SEARCH_TEXT_TIMEOUT", 300*time.Millisecond),
			GeoTimeout:         getEnvAsDuration("SEARCH_GEO_TIMEOUT", 200*time.Millisecond),
			RequestTimeout:     getEnvAsDuration("SEARCH_REQUEST_TIMEOUT", 2*time.Second),
			ReindexEvery:       getEnvAsDuration("SEARCH_REINDEX_INTERVAL", 0),
		},
		Ranking: RankingConfig{
			NameBoost:        getEnvAsFloat("RANK_NAME_BOOST", 3.0),
			CityBoost:        getEnvAsFloat("RANK_CITY_BOOST", 2.0),
			DescriptionBoost: getEnvAsFloat("RANK_DESCRIPTION_BOOST", 1.0),
			ExactNameBoost:   getEnvAsFloat("RANK_EXACT_NAME_BOOST", 0.5),
			RelevanceWeight:  getEnvAsFloat("RANK_RELEVANCE_WEIGHT", 0.6),
			DistanceWeight:   getEnvAsFloat("RANK_DISTANCE_WEIGHT", 0.2),
			BusinessWeight:   getEnvAsFloat("RANK_BUSINESS_WEIGHT", 0.2),
			DistanceDecayKm:  getEnvAsFloat("RANK_DISTANCE_DECAY_KM", 10.0),
			PopularityWeight: getEnvAsFloat("RANK_POPULARITY_WEIGHT", 0.4),
			ConversionWeight: getEnvAsFloat("RANK_CONVERSION_WEIGHT", 0.3),
			ReviewWeight:     getEnvAsFloat("RANK_REVIEW_WEIGHT", 0.3),
			PromotedBonus:    getEnvAsFloat("RANK_PROMOTED_BONUS", 0.1),
		},
		Cache: CacheConfig{
			Backend:        strings.ToLower(getEnv("CACHE_BACKEND", "redis")),
			KeyPrefix:      getEnv("CACHE_KEY_PREFIX", "search:cache"),
			LocalEntries:   getEnvAsInt("CACHE_LOCAL_ENTRIES", 10000),
			L1MaxCost:      int64(getEnvAsInt("CACHE_L1_MAX_BYTES", 64<<20)),
			L1TTL:          getEnvAsDuration("CACHE_L1_TTL", 30*time.Second),
			StaleFactor:    getEnvAsInt("CACHE_STALE_FACTOR", 6),
			SearchTTL:      getEnvAsDuration("CACHE_SEARCH_TTL", 5*time.Minute),
			SuggestionsTTL: getEnvAsDuration("CACHE_SUGGESTIONS_TTL", 3*time.Minute),
			PopularTTL:     getEnvAsDuration("CACHE_POPULAR_TTL", 30*time.Minute),
			FacetsTTL:      getEnvAsDuration("CACHE_FACETS_TTL", 10*time.Minute),
			LocationTTL:    getEnvAsDuration("CACHE_LOCATION_TTL", 5*time.Minute),

			WarmInterval:     getEnvAsDuration("CACHE_WARM_INTERVAL", 0),
			WarmDestinations: getEnvAsInt("CACHE_WARM_DESTINATIONS", 5),
		},
		Analytics: AnalyticsConfig{
			QueueSize:          getEnvAsInt("ANALYTICS_QUEUE_SIZE", 10000),
			BatchSize:          getEnvAsInt("ANALYTICS_BATCH_SIZE", 200),
			FlushInterval:      getEnvAsDuration("ANALYTICS_FLUSH_INTERVAL", 2*time.Second),
			Window:             getEnvAsDuration("ANALYTICS_WINDOW", 5*time.Minute),
			SmoothingAlpha:     getEnvAsFloat("ANALYTICS_SMOOTHING_ALPHA", 0.6),
			VolumeWeight:       getEnvAsFloat("ANALYTICS_VOLUME_WEIGHT", 0.4),
			CTRWeight:          getEnvAsFloat("ANALYTICS_CTR_WEIGHT", 0.3),
			ConversionWeight:   getEnvAsFloat("ANALYTICS_CONVERSION_WEIGHT", 0.3),
			ExpectedSessions:   uint(getEnvAsInt("ANALYTICS_EXPECTED_SESSIONS", 100000)),
			BloomFalsePositive: getEnvAsFloat("ANALYTICS_BLOOM_FP_RATE", 0.01),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
			MaxClients:        getEnvAsInt("RATE_LIMIT_MAX_CLIENTS", 50000),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "property-search"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Search.TextBackend {
	case "bleve", "typesense", "elasticsearch":
	default:
		return fmt.Errorf("unknown SEARCH_TEXT_BACKEND %q", c.Search.TextBackend)
	}
	switch c.Search.GeoBackend {
	case "bleve", "redis":
	default:
		return fmt.Errorf("unknown SEARCH_GEO_BACKEND %q", c.Search.GeoBackend)
	}
	switch c.Cache.Backend {
	case "redis", "memory", "tiered":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Search.MaxPageSize < 1 || c.Search.DefaultPageSize < 1 {
		return fmt.Errorf("page sizes must be positive")
	}
	if c.Search.MinRadiusKm <= 0 || c.Search.MaxRadiusKm < c.Search.MinRadiusKm {
		return fmt.Errorf("invalid radius bounds [%v, %v]", c.Search.MinRadiusKm, c.Search.MaxRadiusKm)
	}
	return nil
}

// TierTTL returns the TTL configured for a cache tier
func (c *CacheConfig) TierTTL(tier string) time.Duration {
	switch tier {
	case "suggestions":
		return c.SuggestionsTTL
	case "popular":
		return c.PopularTTL
	case "facets":
		return c.FacetsTTL
	case "location":
		return c.LocationTTL
	default:
		return c.SearchTTL
	}
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=property-search",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
	if c.StatementTimeout > 0 {
		dsn += fmt.Sprintf(" options='-c statement_timeout=%d'", c.StatementTimeout.Milliseconds())
	}
	return dsn
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsFloatList(key string, defaultValue []float64) []float64 {
	parts := getEnvAsList(key, nil)
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, v)
	}
	return out
}
