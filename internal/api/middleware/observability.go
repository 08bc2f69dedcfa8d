package middleware

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
)

// ObservabilityMiddleware opens a span per route and records the request
// metric. It is mounted per route so r.Pattern names the span.
func ObservabilityMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}

			ctx, span := observability.StartSpan(r.Context(), route)
			defer span.End()

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.user_agent", r.UserAgent()),
			}
			if q := r.URL.Query(); q.Has("q") {
				attrs = append(attrs,
					attribute.String("search.query", q.Get("q")),
					attribute.String("search.lang", q.Get("lang")),
				)
			}
			observability.SetSpanAttributes(span, attrs...)

			rec := newStatusRecorder(w)
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))

			observability.RecordRequestMetric(ctx, metrics, r.Method, route, rec.status, time.Since(start))
			observability.SetSpanAttributes(span,
				attribute.Int("http.status_code", rec.status),
				attribute.Int("http.response_size", rec.bytes),
			)
			if rec.status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
		})
	}
}
