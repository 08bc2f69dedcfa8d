package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
)

// LoggingMiddleware writes one access log line per request. Health probes
// log at debug; client and server errors at warn and error.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		level := zerolog.InfoLevel
		switch {
		case rec.status >= 500:
			level = zerolog.ErrorLevel
		case rec.status >= 400:
			level = zerolog.WarnLevel
		case r.URL.Path == "/health":
			level = zerolog.DebugLevel
		}

		event := observability.LoggerFromContext(r.Context()).WithLevel(level).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start))
		if retry := rec.Header().Get("Retry-After"); retry != "" {
			event = event.Str("retry_after", retry)
		}
		event.Msg("request")
	})
}
