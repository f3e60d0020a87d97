package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
)

// Result values for refresh and provider-call metrics.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics records the service's observability metrics. The zero value is a
// safe no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	providerCallsTotal   metric.Int64Counter
	providerCallDuration metric.Float64Histogram

	tokenRefreshTotal metric.Int64Counter

	partialFetchDropsTotal metric.Int64Counter
}

// NewMetrics creates a Metrics instance with all instruments registered.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.providerCallsTotal, err = meter.Int64Counter(
		"provider_calls_total",
		metric.WithDescription("Total number of mail provider API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_calls_total counter: %w", err)
	}

	m.providerCallDuration, err = meter.Float64Histogram(
		"provider_call_duration_seconds",
		metric.WithDescription("Mail provider API call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_call_duration_seconds histogram: %w", err)
	}

	m.tokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of access token refresh attempts"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.partialFetchDropsTotal, err = meter.Int64Counter(
		"partial_fetch_drops_total",
		metric.WithDescription("Messages dropped because their detail fetch failed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create partial_fetch_drops_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordProviderCall records one mail provider API call.
func (m *Metrics) RecordProviderCall(ctx context.Context, operation, result string, duration time.Duration) {
	if m.providerCallsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrResult, result),
	)
	m.providerCallsTotal.Add(ctx, 1, attrs)
	m.providerCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordTokenRefresh records one access token refresh attempt.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m.tokenRefreshTotal == nil {
		return
	}
	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordPartialFetchDrops records detail fetches that failed and were
// dropped from a list response.
func (m *Metrics) RecordPartialFetchDrops(ctx context.Context, dropped int) {
	if m.partialFetchDropsTotal == nil || dropped <= 0 {
		return
	}
	m.partialFetchDropsTotal.Add(ctx, int64(dropped))
}
