package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// SuggestionService defines the autocomplete operation used by the handler
type SuggestionService interface {
	Suggest(ctx context.Context, req *entities.SuggestRequest) (*services.SuggestionList, error)
}

// DestinationService defines the popular destinations operation used by the handler
type DestinationService interface {
	PopularDestinations(ctx context.Context, limit int) (*services.DestinationList, error)
}

// SuggestHandler serves autocomplete and popular destinations
type SuggestHandler struct {
	suggestions  SuggestionService
	destinations DestinationService
	normalizer   *services.Normalizer
}

// NewSuggestHandler creates a new suggest handler
func NewSuggestHandler(suggestions SuggestionService, destinations DestinationService, normalizer *services.Normalizer) *SuggestHandler {
	return &SuggestHandler{suggestions: suggestions, destinations: destinations, normalizer: normalizer}
}

// Suggest handles GET /api/v1/suggest
func (h *SuggestHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := h.normalizer.NormalizeSuggest(services.RawSuggestParams{
		Query:    q.Get("q"),
		Language: q.Get("lang"),
		Lat:      q.Get("lat"),
		Lon:      q.Get("lon"),
		Limit:    q.Get("limit"),
	})

	list, err := h.suggestions.Suggest(r.Context(), req)
	if err != nil {
		RespondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// PopularDestinations handles GET /api/v1/destinations/popular
func (h *SuggestHandler) PopularDestinations(w http.ResponseWriter, r *http.Request) {
	// out of range limits are clamped by the service
	limit, _ := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))

	list, err := h.destinations.PopularDestinations(r.Context(), limit)
	if err != nil {
		RespondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func splitParam(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
