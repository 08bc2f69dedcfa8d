package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
)

// HealthHandler reports index and cache state
type HealthHandler struct {
	docs       *services.DocumentStore
	popularity *services.PopularityStore
	cache      providers.CacheProvider
}

// NewHealthHandler creates a new health handler. cache may be nil.
func NewHealthHandler(docs *services.DocumentStore, popularity *services.PopularityStore, cache providers.CacheProvider) *HealthHandler {
	return &HealthHandler{docs: docs, popularity: popularity, cache: cache}
}

type healthResponse struct {
	Status               string            `json:"status"`
	Documents            int               `json:"documents"`
	Generation           uint64            `json:"generation"`
	PopularityGeneration uint64            `json:"popularity_generation"`
	Checks               map[string]string `json:"checks"`
}

// Health handles GET /health. A failing cache degrades responses but does not
// take the service out of rotation.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	snapshot := h.docs.Current()
	resp := healthResponse{
		Status:               "ok",
		Documents:            snapshot.Len(),
		Generation:           snapshot.Generation,
		PopularityGeneration: h.popularity.Current().Generation,
		Checks:               map[string]string{"index": "ok"},
	}

	if h.cache == nil {
		resp.Checks["cache"] = "disabled"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := h.cache.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks["cache"] = "unavailable"
		} else {
			resp.Checks["cache"] = "ok"
		}
	}
	if snapshot.Generation == 0 {
		resp.Status = "starting"
		resp.Checks["index"] = "not built"
		respondWithJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}
