package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/propertysearch/backend"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount         metric.Int64Counter
	RequestDuration      metric.Float64Histogram
	CacheHitCount        metric.Int64Counter
	CacheMissCount       metric.Int64Counter
	UpstreamComputeCount metric.Int64Counter
	SharedFlightCount    metric.Int64Counter
	DegradationCount     metric.Int64Counter
	EventsDroppedCount   metric.Int64Counter
	StageDuration        metric.Float64Histogram
}

// Setup initializes OpenTelemetry tracing, metrics export and runtime instrumentation
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		_ = tracerProvider.Shutdown(ctx)
		_ = meterProvider.Shutdown(ctx)
		return nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	requestCount, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheHitCount, err := meter.Int64Counter(
		"search.cache.hit.count",
		metric.WithDescription("Number of search cache hits"),
	)
	if err != nil {
		return nil, err
	}

	cacheMissCount, err := meter.Int64Counter(
		"search.cache.miss.count",
		metric.WithDescription("Number of search cache misses"),
	)
	if err != nil {
		return nil, err
	}

	upstreamCount, err := meter.Int64Counter(
		"search.pipeline.compute.count",
		metric.WithDescription("Number of upstream pipeline executions"),
	)
	if err != nil {
		return nil, err
	}

	sharedCount, err := meter.Int64Counter(
		"search.singleflight.shared.count",
		metric.WithDescription("Number of callers served by another caller's computation"),
	)
	if err != nil {
		return nil, err
	}

	degradationCount, err := meter.Int64Counter(
		"search.degradation.count",
		metric.WithDescription("Number of responses served through a fallback"),
	)
	if err != nil {
		return nil, err
	}

	droppedCount, err := meter.Int64Counter(
		"analytics.events.dropped.count",
		metric.WithDescription("Number of analytics events dropped because the queue was full"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"search.stage.duration",
		metric.WithDescription("Pipeline stage duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCount:         requestCount,
		RequestDuration:      requestDuration,
		CacheHitCount:        cacheHitCount,
		CacheMissCount:       cacheMissCount,
		UpstreamComputeCount: upstreamCount,
		SharedFlightCount:    sharedCount,
		DegradationCount:     degradationCount,
		EventsDroppedCount:   droppedCount,
		StageDuration:        stageDuration,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordRequestMetric records a request metric with attributes
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	metrics.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordStage records the duration of one pipeline stage
func RecordStage(ctx context.Context, metrics *Metrics, stage string, duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.StageDuration.Record(ctx, float64(duration.Microseconds())/1000.0,
		metric.WithAttributes(attribute.String("search.stage", stage)))
}

// RecordCacheHit records a cache hit for a tier
func RecordCacheHit(ctx context.Context, metrics *Metrics, tier string) {
	if metrics == nil {
		return
	}
	metrics.CacheHitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.tier", tier)))
}

// RecordCacheMiss records a cache miss for a tier
func RecordCacheMiss(ctx context.Context, metrics *Metrics, tier string) {
	if metrics == nil {
		return
	}
	metrics.CacheMissCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.tier", tier)))
}

// RecordUpstreamCompute records one pipeline execution behind the cache
func RecordUpstreamCompute(ctx context.Context, metrics *Metrics, tier string, shared bool) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("cache.tier", tier))
	if shared {
		metrics.SharedFlightCount.Add(ctx, 1, attrs)
		return
	}
	metrics.UpstreamComputeCount.Add(ctx, 1, attrs)
}

// RecordDegradation records a response served through a fallback
func RecordDegradation(ctx context.Context, metrics *Metrics, fallback string) {
	if metrics == nil {
		return
	}
	metrics.DegradationCount.Add(ctx, 1, metric.WithAttributes(attribute.String("search.fallback", fallback)))
}

// RecordEventDropped records an analytics event that did not fit in the queue
func RecordEventDropped(ctx context.Context, metrics *Metrics, eventType string) {
	if metrics == nil {
		return
	}
	metrics.EventsDroppedCount.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}
