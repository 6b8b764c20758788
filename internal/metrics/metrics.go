package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/estofados/storefront/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// AppMetrics holds all application metrics.
// A nil *AppMetrics is valid and records nothing.
type AppMetrics struct {
	// Gateway HTTP Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestsErrors  metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Store API Metrics
	APICallsTotal   metric.Int64Counter
	APICallDuration metric.Float64Histogram

	// Token store Metrics
	DBQueriesTotal  metric.Int64Counter
	DBQueryDuration metric.Float64Histogram

	// Storefront Metrics
	AuthAttempts   metric.Int64Counter
	CartMutations  metric.Int64Counter
	CartItemsCount metric.Int64Gauge
	CatalogLoads   metric.Int64Counter
	StaleResponses metric.Int64Counter
	Notices        metric.Int64Counter

	serviceName string
}

// Histogram buckets in milliseconds, up to 60s
var buckets = []float64{2, 4, 6, 8, 10, 50, 100, 200, 400, 800, 1000, 1400, 2000, 5000, 10000, 15000, 20000, 30000, 45000, 60000}

// InitMetrics initializes OpenTelemetry metrics. When exporting is disabled the
// provider has no reader, so instruments work but nothing leaves the process.
func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*AppMetrics, *sdkmetric.MeterProvider, error) {
	envRes, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		envRes = resource.Empty()
	}

	// Explicit attributes take precedence over env
	explicitRes, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.OTELServiceName),
			semconv.ServiceVersion(cfg.OTELServiceVersion),
			attribute.String("deployment.environment", cfg.OTELDeploymentEnvironment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create explicit resource: %w", err)
	}

	res, err := resource.Merge(envRes, explicitRes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to merge resources: %w", err)
	}

	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTELMetricsEnabled {
		// WithEndpoint expects host:port without a scheme
		exporterOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.OTELExporterOTLPEndpoint),
			otlpmetrichttp.WithURLPath("/v1/metrics"),
		}
		if cfg.OTELExporterOTLPHeaders != "" {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithHeaders(parseHeaders(cfg.OTELExporterOTLPHeaders)))
		}
		if cfg.OTELExporterOTLPInsecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}

		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}

		providerOpts = append(providerOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second)),
		))

		logger.Info("metrics exporter configured",
			slog.String("endpoint", cfg.OTELExporterOTLPEndpoint),
			slog.Bool("insecure", cfg.OTELExporterOTLPInsecure),
			slog.String("service_name", cfg.OTELServiceName),
		)
	} else {
		logger.Info("metrics export disabled")
	}

	meterProvider := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(meterProvider)

	m, err := New(meterProvider.Meter(cfg.OTELServiceName), cfg.OTELServiceName)
	if err != nil {
		return nil, nil, err
	}
	return m, meterProvider, nil
}

// New creates every instrument on the given meter
func New(meter metric.Meter, serviceName string) (*AppMetrics, error) {
	m := &AppMetrics{serviceName: serviceName}
	var err error

	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of gateway HTTP requests"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	if m.HTTPRequestsErrors, err = meter.Int64Counter(
		"http.server.request.error.count",
		metric.WithDescription("Total number of gateway HTTP error requests"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http errors counter: %w", err)
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Gateway HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	if m.APICallsTotal, err = meter.Int64Counter(
		"storeapi.call.count",
		metric.WithDescription("Total number of calls to the store API"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create store api counter: %w", err)
	}

	if m.APICallDuration, err = meter.Float64Histogram(
		"storeapi.call.duration",
		metric.WithDescription("Store API call duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create store api duration histogram: %w", err)
	}

	if m.DBQueriesTotal, err = meter.Int64Counter(
		"db.client.queries.count",
		metric.WithDescription("Total number of token store queries"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create db queries counter: %w", err)
	}

	if m.DBQueryDuration, err = meter.Float64Histogram(
		"db.client.queries.duration",
		metric.WithDescription("Token store query duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	); err != nil {
		return nil, fmt.Errorf("failed to create db duration histogram: %w", err)
	}

	if m.AuthAttempts, err = meter.Int64Counter(
		"auth_attempts_total",
		metric.WithDescription("Login, register and restore attempts by outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create auth counter: %w", err)
	}

	if m.CartMutations, err = meter.Int64Counter(
		"cart_mutations_total",
		metric.WithDescription("Cart refresh, add and remove operations by outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cart mutations counter: %w", err)
	}

	if m.CartItemsCount, err = meter.Int64Gauge(
		"cart_items_count",
		metric.WithDescription("Units in the current cart snapshot"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cart items gauge: %w", err)
	}

	if m.CatalogLoads, err = meter.Int64Counter(
		"catalog_loads_total",
		metric.WithDescription("Catalog slice loads by slice and outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create catalog loads counter: %w", err)
	}

	if m.StaleResponses, err = meter.Int64Counter(
		"stale_responses_total",
		metric.WithDescription("Responses discarded because the session changed in flight"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create stale responses counter: %w", err)
	}

	if m.Notices, err = meter.Int64Counter(
		"notices_total",
		metric.WithDescription("User notices emitted by kind"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("failed to create notices counter: %w", err)
	}

	return m, nil
}

// WithServiceName adds service.name to attributes
func (m *AppMetrics) WithServiceName(attrs []attribute.KeyValue) []attribute.KeyValue {
	return append(attrs, attribute.String("service.name", m.serviceName))
}

func (m *AppMetrics) opts(attrs ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(m.WithServiceName(attrs)...)
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records a gateway request
func (m *AppMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	}
	m.HTTPRequestsTotal.Add(ctx, 1, m.opts(attrs...))
	if status >= 400 {
		m.HTTPRequestsErrors.Add(ctx, 1, m.opts(attrs...))
	}
	m.HTTPRequestDuration.Record(ctx, float64(time.Since(start).Milliseconds()), m.opts(attrs...))
}

// RecordAPICall records a store API call. status is 0 when no response arrived.
func (m *AppMetrics) RecordAPICall(ctx context.Context, method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("storeapi.route", route),
		attribute.Int("http.status_code", status),
		attribute.String("status", outcome(status >= 200 && status < 300)),
	}
	m.APICallsTotal.Add(ctx, 1, m.opts(attrs...))
	m.APICallDuration.Record(ctx, float64(time.Since(start).Milliseconds()), m.opts(attrs...))
}

// RecordDBQuery records token store query metrics including the SQL statement
func (m *AppMetrics) RecordDBQuery(ctx context.Context, system, operation, table, statement string, start time.Time, success bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
		attribute.String("db.statement", statement),
		attribute.String("db.system", system),
		attribute.String("status", outcome(success)),
	}
	m.DBQueriesTotal.Add(ctx, 1, m.opts(attrs...))
	m.DBQueryDuration.Record(ctx, float64(time.Since(start).Milliseconds()), m.opts(attrs...))
}

// RecordAuth records a login, register or restore attempt
func (m *AppMetrics) RecordAuth(ctx context.Context, kind string, success bool) {
	if m == nil {
		return
	}
	m.AuthAttempts.Add(ctx, 1, m.opts(
		attribute.String("auth.kind", kind),
		attribute.String("status", outcome(success)),
	))
}

// RecordCartMutation records a cart operation
func (m *AppMetrics) RecordCartMutation(ctx context.Context, op string, success bool) {
	if m == nil {
		return
	}
	m.CartMutations.Add(ctx, 1, m.opts(
		attribute.String("cart.operation", op),
		attribute.String("status", outcome(success)),
	))
}

// RecordCartItems records the unit count of the current cart snapshot
func (m *AppMetrics) RecordCartItems(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.CartItemsCount.Record(ctx, int64(count), m.opts())
}

// RecordCatalogLoad records the outcome of loading one catalog slice
func (m *AppMetrics) RecordCatalogLoad(ctx context.Context, slice string, success bool) {
	if m == nil {
		return
	}
	m.CatalogLoads.Add(ctx, 1, m.opts(
		attribute.String("catalog.slice", slice),
		attribute.String("status", outcome(success)),
	))
}

// RecordStaleResponse records a response dropped after a session change
func (m *AppMetrics) RecordStaleResponse(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.StaleResponses.Add(ctx, 1, m.opts(attribute.String("cart.operation", op)))
}

// RecordNotice records a user notice
func (m *AppMetrics) RecordNotice(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Notices.Add(ctx, 1, m.opts(attribute.String("notice.kind", kind)))
}

// parseHeaders parses header string in format "key1=value1,key2=value2"
// and returns a map of headers
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}

	pairs := strings.Split(headerStr, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}
