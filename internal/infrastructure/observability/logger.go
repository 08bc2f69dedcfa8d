package observability

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// InitLogger configures the global zerolog logger. Development gets console
// output at debug; everything else JSON at info. A valid level overrides both.
func InitLogger(serviceName, env, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl := zerolog.InfoLevel
	if env == "development" {
		lvl = zerolog.DebugLevel
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().
			Str("service", serviceName).
			Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Caller().
			Str("service", serviceName).
			Logger()
	}

	if parsed, err := zerolog.ParseLevel(level); err == nil && level != "" {
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)
}

// LoggerFromContext returns the global logger enriched with the trace and the
// caller identity carried by ctx
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	lc := log.With()

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		lc = lc.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}

	id := entities.IdentityFromContext(ctx)
	if id.UserID != "" {
		lc = lc.Str("user_id", id.UserID)
	}
	if id.SessionID != "" {
		lc = lc.Str("session_id", id.SessionID)
	}

	logger := lc.Logger()
	return &logger
}
