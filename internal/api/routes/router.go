package routes

import (
	"net/http"

	"github.com/zatekoja/propertysearch/backend/internal/api/handlers"
	"github.com/zatekoja/propertysearch/backend/internal/api/middleware"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	searchHandler  *handlers.SearchHandler
	suggestHandler *handlers.SuggestHandler
	eventHandler   *handlers.EventHandler
	healthHandler  *handlers.HealthHandler

	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. rateLimiter and metrics may be nil.
func NewRouter(
	searchHandler *handlers.SearchHandler,
	suggestHandler *handlers.SuggestHandler,
	eventHandler *handlers.EventHandler,
	healthHandler *handlers.HealthHandler,
	rateLimiter *middleware.RateLimiter,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		searchHandler:  searchHandler,
		suggestHandler: suggestHandler,
		eventHandler:   eventHandler,
		healthHandler:  healthHandler,
		rateLimiter:    rateLimiter,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
	}
}

// handle registers a route. Tracing wraps the handler inside the mux so spans are
// named after the matched pattern.
func (r *Router) handle(pattern string, h http.HandlerFunc) {
	r.mux.Handle(pattern, middleware.ObservabilityMiddleware(r.metrics)(h))
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.handle("GET /health", r.healthHandler.Health)

	// Search endpoints
	r.handle("GET /api/v1/search", r.searchHandler.Search)
	r.handle("GET /api/v1/search/nearby", r.searchHandler.Nearby)
	r.handle("GET /api/v1/search/facets", r.searchHandler.Facets)

	// Autocomplete and destinations
	r.handle("GET /api/v1/suggest", r.suggestHandler.Suggest)
	r.handle("GET /api/v1/destinations/popular", r.suggestHandler.PopularDestinations)

	// Analytics and catalog change notifications
	r.handle("POST /api/v1/events", r.eventHandler.RecordSearchEvent)
	r.handle("POST /api/v1/internal/property-events", r.eventHandler.PropertyEvent)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	if r.rateLimiter != nil {
		handler = r.rateLimiter.Middleware(handler)
	}
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.IdentityMiddleware(handler)
	handler = middleware.ResponseOptimization(handler)

	// CORS wraps everything so preflights never reach the limiter
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
