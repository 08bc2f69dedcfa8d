package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
	"github.com/zatekoja/propertysearch/backend/pkg/retry"
)

// Client represents an Elasticsearch client bound to the property index
type Client struct {
	client *elasticsearch.Client
	index  string
}

// NewClient creates a new Elasticsearch client with exponential backoff retry
func NewClient(cfg *config.ElasticsearchConfig) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	err = retry.DoWithLog(
		context.Background(),
		retry.DefaultConfig(),
		"Elasticsearch",
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			res, err := es.Info(es.Info.WithContext(ctx))
			if err != nil {
				return err
			}
			defer res.Body.Close()
			if res.StatusCode == 401 || res.StatusCode == 403 {
				return retry.Permanent(fmt.Errorf("elasticsearch rejected credentials: %s", res.Status()))
			}
			if res.IsError() {
				return fmt.Errorf("elasticsearch error: %s", res.String())
			}
			return nil
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", nextDelay).Msg("Elasticsearch connection attempt failed")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch after retries: %w", err)
	}

	log.Info().Strs("addresses", cfg.Addresses).Msg("Successfully connected to Elasticsearch")
	return &Client{client: es, index: cfg.Index}, nil
}

// NewFromClient wraps an existing client
func NewFromClient(es *elasticsearch.Client, index string) *Client {
	return &Client{client: es, index: index}
}

// Client returns the underlying Elasticsearch client
func (c *Client) Client() *elasticsearch.Client {
	return c.client
}

// Index returns the property index name
func (c *Client) Index() string {
	return c.index
}

// Text is folded before indexing, so the standard analyzer is sufficient.
var indexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"dynamic_templates": []interface{}{
			map[string]interface{}{
				"descriptions": map[string]interface{}{
					"match":   "description_*",
					"mapping": map[string]interface{}{"type": "text"},
				},
			},
		},
		"properties": map[string]interface{}{
			"name":           map[string]interface{}{"type": "text"},
			"city":           map[string]interface{}{"type": "text"},
			"property_type":  map[string]interface{}{"type": "keyword"},
			"star_rating":    map[string]interface{}{"type": "integer"},
			"rating_average": map[string]interface{}{"type": "float"},
			"location":       map[string]interface{}{"type": "geo_point"},
			"updated_at":     map[string]interface{}{"type": "long"},
		},
	},
}

// InitIndex ensures the property index exists. With reset the existing index is
// deleted first.
func (c *Client) InitIndex(ctx context.Context, reset bool) error {
	if reset {
		res, err := c.client.Indices.Delete([]string{c.index}, c.client.Indices.Delete.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("failed to delete index: %w", err)
		}
		res.Body.Close()
	}

	res, err := c.client.Indices.Exists([]string{c.index}, c.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	data, err := json.Marshal(indexMapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err = c.client.Indices.Create(c.index,
		c.client.Indices.Create.WithContext(ctx),
		c.client.Indices.Create.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}

	log.Info().Str("index", c.index).Msg("Created Elasticsearch index")
	return nil
}
