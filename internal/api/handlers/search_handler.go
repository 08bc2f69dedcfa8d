package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// SearchService defines the search operations used by the handler
type SearchService interface {
	Search(ctx context.Context, req *entities.SearchRequest) (*entities.SearchResult, error)
}

// EventRecorder accepts analytics events without blocking
type EventRecorder interface {
	Record(ctx context.Context, event *entities.SearchEvent) (bool, error)
}

// SearchHandler serves text, nearby and facet searches
type SearchHandler struct {
	search     SearchService
	normalizer *services.Normalizer
	recorder   EventRecorder
}

// NewSearchHandler creates a new search handler. recorder may be nil.
func NewSearchHandler(search SearchService, normalizer *services.Normalizer, recorder EventRecorder) *SearchHandler {
	return &SearchHandler{search: search, normalizer: normalizer, recorder: recorder}
}

// Search handles GET /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, entities.RequestClassSearch)
}

// Nearby handles GET /api/v1/search/nearby
func (h *SearchHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, entities.RequestClassLocation)
}

// Facets handles GET /api/v1/search/facets
func (h *SearchHandler) Facets(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, entities.RequestClassFacets)
}

func (h *SearchHandler) serve(w http.ResponseWriter, r *http.Request, class entities.RequestClass) {
	raw := rawSearchParams(r)
	req, err := h.normalizer.Normalize(raw, class)
	if err != nil {
		RespondWithError(w, r, err)
		return
	}

	result, err := h.search.Search(r.Context(), req)
	if err != nil {
		RespondWithError(w, r, err)
		return
	}

	if class != entities.RequestClassFacets {
		h.recordSearch(r.Context(), req, raw, result)
	}
	respondWithJSON(w, http.StatusOK, result)
}

// recordSearch feeds the analytics loop. Dropped events are not an error.
func (h *SearchHandler) recordSearch(ctx context.Context, req *entities.SearchRequest, raw services.RawSearchParams, result *entities.SearchResult) {
	if h.recorder == nil {
		return
	}
	event := &entities.SearchEvent{
		Type:            entities.SearchEventTypeSearch,
		Query:           req.Query,
		Language:        req.Language,
		FilterSignature: req.Signature(),
		Cities:          splitParam(raw.Cities),
		SessionID:       req.SessionID,
		UserID:          req.UserID,
		ResultCount:     result.Pagination.Total,
		ResponseTimeMs:  result.Meta.LatencyMs,
		ShownIDs:        result.IDs(),
		Currency:        req.Currency,
	}
	if loc := req.Location(); loc != nil {
		center := loc.Center
		event.Location = &center
	}
	_, _ = h.recorder.Record(ctx, event)
}

func rawSearchParams(r *http.Request) services.RawSearchParams {
	q := r.URL.Query()
	id := entities.IdentityFromContext(r.Context())
	return services.RawSearchParams{
		Query:     q.Get("q"),
		Language:  q.Get("lang"),
		Page:      q.Get("page"),
		Size:      q.Get("size"),
		Sort:      q.Get("sort"),
		MinPrice:  q.Get("min_price"),
		MaxPrice:  q.Get("max_price"),
		Currency:  q.Get("currency"),
		Stars:     q.Get("stars"),
		Amenities: q.Get("amenities"),
		Types:     q.Get("types"),
		MinRating: q.Get("min_rating"),
		Cities:    q.Get("cities"),
		Lat:       q.Get("lat"),
		Lon:       q.Get("lon"),
		Radius:    q.Get("radius"),
		SessionID: id.SessionID,
		UserID:    id.UserID,
	}
}
