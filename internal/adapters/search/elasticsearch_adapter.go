package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	esclient "github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/elasticsearch"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

// ElasticsearchAdapter implements the text index using Elasticsearch
type ElasticsearchAdapter struct {
	client *esclient.Client
}

var _ providers.TextIndex = (*ElasticsearchAdapter)(nil)

// NewElasticsearchAdapter creates a new Elasticsearch adapter
func NewElasticsearchAdapter(client *esclient.Client) *ElasticsearchAdapter {
	return &ElasticsearchAdapter{client: client}
}

func elasticsearchDocument(doc *entities.SearchDocument) map[string]interface{} {
	fields := documentFields(doc)
	if doc.Location.Valid() {
		fields[locationField] = map[string]float64{
			"lat": doc.Location.Latitude,
			"lon": doc.Location.Longitude,
		}
	}
	return fields
}

// Index writes documents one by one
func (a *ElasticsearchAdapter) Index(ctx context.Context, docs []*entities.SearchDocument) error {
	es := a.client.Client()
	for _, doc := range docs {
		data, err := json.Marshal(elasticsearchDocument(doc))
		if err != nil {
			return fmt.Errorf("failed to marshal property %s: %w", doc.ID, err)
		}

		res, err := es.Index(a.client.Index(), bytes.NewReader(data),
			es.Index.WithContext(ctx),
			es.Index.WithDocumentID(doc.ID),
		)
		if err != nil {
			return fmt.Errorf("failed to index property %s: %w", doc.ID, err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("elasticsearch error indexing %s: %s", doc.ID, res.String())
		}
	}
	return nil
}

// Delete removes documents by id; missing documents are ignored
func (a *ElasticsearchAdapter) Delete(ctx context.Context, ids []string) error {
	es := a.client.Client()
	for _, id := range ids {
		res, err := es.Delete(a.client.Index(), id, es.Delete.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("failed to delete property %s: %w", id, err)
		}
		res.Body.Close()
		if res.IsError() && res.StatusCode != http.StatusNotFound {
			return fmt.Errorf("elasticsearch error deleting %s: %s", id, res.String())
		}
	}
	return nil
}

// SearchField runs a bool/should of per-token match queries with fuzziness
func (a *ElasticsearchAdapter) SearchField(ctx context.Context, q providers.FieldQuery) (map[string]float64, error) {
	tokens := foldTokens(q.Tokens)
	if len(tokens) == 0 {
		return map[string]float64{}, nil
	}

	should := make([]interface{}, 0, len(tokens))
	for _, tok := range tokens {
		should = append(should, map[string]interface{}{
			"match": map[string]interface{}{
				q.Field: map[string]interface{}{
					"query":     tok,
					"fuzziness": utils.FuzzinessFor(tok),
				},
			},
		})
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	body := map[string]interface{}{
		"size":    limit,
		"_source": false,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               should,
				"minimum_should_match": 1,
			},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	es := a.client.Client()
	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(a.client.Index()),
		es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", q.Field, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch error: %s", res.String())
	}

	var result esResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	scores := make(map[string]float64, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		scores[hit.ID] = hit.Score
	}
	return scores, nil
}

// esResponse is the subset of the search response the adapter reads
type esResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID    string  `json:"_id"`
			Score float64 `json:"_score"`
		} `json:"hits"`
	} `json:"hits"`
}
