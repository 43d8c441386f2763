package observability

import (
	"context"
	"fmt"
	"time"

	"atsboost/internal/config"
	"atsboost/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Business metric types accepted by RecordBusinessMetric
const (
	MetricCVAnalyzed   = "cv_analyzed"
	MetricRateLimitHit = "rate_limit_hit"
	MetricCacheLookup  = "cache_lookup"
)

// Metrics holds all custom metrics for ATSBoost
type Metrics struct {
	// AI operation metrics
	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram

	// Business metrics
	CVsAnalyzed   metric.Int64Counter
	CVSize        metric.Int64Histogram
	WebhookEvents metric.Int64Counter
	TierChanges   metric.Int64Counter

	// Infrastructure metrics
	CacheLookups  metric.Int64Counter
	RateLimitHits metric.Int64Counter
}

// AIOperationResult holds the result of an AI operation including token usage
type AIOperationResult struct {
	Error      error
	TokenUsage *TokenUsage
}

// TokenUsage represents token usage information from AI responses
type TokenUsage = types.TokenUsage

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	for _, create := range []func(metric.Meter) error{
		m.createAIMetrics,
		m.createBusinessMetrics,
		m.createInfrastructureMetrics,
	} {
		if err := create(meter); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) createAIMetrics(meter metric.Meter) error {
	var err error

	m.AIProcessingTime, err = meter.Float64Histogram(
		"atsboost_ai_processing_duration_seconds",
		metric.WithDescription("Time spent analysing CVs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI processing time metric: %w", err)
	}

	m.AIRequestCount, err = meter.Int64Counter(
		"atsboost_ai_requests_total",
		metric.WithDescription("Total number of analysis requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI request count metric: %w", err)
	}

	m.AIErrorCount, err = meter.Int64Counter(
		"atsboost_ai_errors_total",
		metric.WithDescription("Total number of failed analysis requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI error count metric: %w", err)
	}

	m.AITokenUsage, err = meter.Int64Histogram(
		"atsboost_ai_token_usage_total",
		metric.WithDescription("Token usage for remote model requests (input, output, total)"),
		metric.WithUnit("tokens"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI token usage metric: %w", err)
	}
	return nil
}

func (m *Metrics) createBusinessMetrics(meter metric.Meter) error {
	var err error

	m.CVsAnalyzed, err = meter.Int64Counter(
		"atsboost_cvs_analyzed_total",
		metric.WithDescription("Total number of CVs analysed, by source"),
	)
	if err != nil {
		return fmt.Errorf("failed to create CVs analyzed metric: %w", err)
	}

	m.CVSize, err = meter.Int64Histogram(
		"atsboost_cv_size_bytes",
		metric.WithDescription("Size of submitted CV text"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create CV size metric: %w", err)
	}

	m.WebhookEvents, err = meter.Int64Counter(
		"atsboost_webhook_events_total",
		metric.WithDescription("Payment webhook deliveries, by event and outcome"),
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook events metric: %w", err)
	}

	m.TierChanges, err = meter.Int64Counter(
		"atsboost_tier_changes_total",
		metric.WithDescription("Subscription tier transitions applied by webhooks"),
	)
	if err != nil {
		return fmt.Errorf("failed to create tier changes metric: %w", err)
	}
	return nil
}

func (m *Metrics) createInfrastructureMetrics(meter metric.Meter) error {
	var err error

	m.CacheLookups, err = meter.Int64Counter(
		"atsboost_cache_lookups_total",
		metric.WithDescription("Analysis cache lookups, by result"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache lookups metric: %w", err)
	}

	m.RateLimitHits, err = meter.Int64Counter(
		"atsboost_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}
	return nil
}

// custom returns the fine-grained switches; nil means everything is on
func (om *ObservabilityManager) custom() *config.CustomMetricsConfig {
	if om == nil || om.fullConfig == nil {
		return nil
	}
	return &om.fullConfig.Observability.CustomMetrics
}

// TrackAIOperationWithTokens instruments an AI operation with tracing, metrics, and token usage
func (m *Metrics) TrackAIOperationWithTokens(ctx context.Context, operation string, fn func(context.Context) *AIOperationResult, om *ObservabilityManager) error {
	if m.AIProcessingTime == nil {
		if result := fn(ctx); result != nil {
			return result.Error
		}
		return nil
	}

	ctx, span := otel.Tracer("atsboost.ai").Start(ctx, "ai."+operation)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	duration := time.Since(start).Seconds()

	var err error
	if result != nil {
		err = result.Error
	}

	if c := om.custom(); c == nil || c.AIOperations.Enabled {
		m.recordAIMetrics(ctx, operation, err, duration, result, c, span)
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}
	return err
}

func (m *Metrics) recordAIMetrics(ctx context.Context, operation string, err error, duration float64, result *AIOperationResult, c *config.CustomMetricsConfig, span oteltrace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	}

	if c == nil || c.AIOperations.TrackDuration {
		m.AIProcessingTime.Record(ctx, duration, metric.WithAttributes(attrs...))
	}
	m.AIRequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.AIErrorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	if result != nil && result.TokenUsage != nil {
		if c == nil || c.AIOperations.TrackTokenUsage {
			m.recordTokenMetrics(ctx, result.TokenUsage, attrs)
		}
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", result.TokenUsage.InputTokens),
			attribute.Int64("ai.tokens.output", result.TokenUsage.OutputTokens),
			attribute.Int64("ai.tokens.total", result.TokenUsage.TotalTokens),
		)
	}

	span.SetAttributes(attrs...)
}

func (m *Metrics) recordTokenMetrics(ctx context.Context, usage *TokenUsage, attrs []attribute.KeyValue) {
	for _, tt := range []struct {
		tokenType string
		value     int64
	}{
		{"input", usage.InputTokens},
		{"output", usage.OutputTokens},
		{"total", usage.TotalTokens},
	} {
		tokenAttrs := append(attrs[:len(attrs):len(attrs)], attribute.String("token_type", tt.tokenType))
		m.AITokenUsage.Record(ctx, tt.value, metric.WithAttributes(tokenAttrs...))
	}
}

// RecordBusinessMetric records business-specific metrics
func (m *Metrics) RecordBusinessMetric(ctx context.Context, metricType string, success bool, om *ObservabilityManager, attributes ...attribute.KeyValue) {
	c := om.custom()
	attrs := append([]attribute.KeyValue{attribute.Bool("success", success)}, attributes...)

	switch metricType {
	case MetricCVAnalyzed:
		if c != nil && !(c.BusinessMetrics.Enabled && c.BusinessMetrics.TrackAnalyses) {
			return
		}
		add(ctx, m.CVsAnalyzed, attrs)
	case MetricRateLimitHit:
		if c != nil && !(c.Infrastructure.Enabled && c.Infrastructure.TrackRateLimits) {
			return
		}
		add(ctx, m.RateLimitHits, attrs)
	case MetricCacheLookup:
		if c != nil && !(c.Infrastructure.Enabled && c.Infrastructure.TrackCache) {
			return
		}
		add(ctx, m.CacheLookups, attributes)
	}
}

// RecordContentSize records the size of submitted CV text
func (m *Metrics) RecordContentSize(ctx context.Context, size int, om *ObservabilityManager) {
	c := om.custom()
	if c != nil && !(c.BusinessMetrics.Enabled && c.BusinessMetrics.TrackContentSizes) {
		return
	}
	if m.CVSize != nil {
		m.CVSize.Record(ctx, int64(size))
	}
}

// RecordWebhook counts one webhook delivery
func (om *ObservabilityManager) RecordWebhook(ctx context.Context, event, outcome string) {
	if !om.webhooksTracked() {
		return
	}
	if event == "" {
		event = "unknown"
	}
	add(ctx, om.GetMetrics().WebhookEvents, []attribute.KeyValue{
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	})
}

// RecordTierChange counts one applied subscription transition
func (om *ObservabilityManager) RecordTierChange(ctx context.Context, from, to types.SubscriptionType) {
	if !om.webhooksTracked() {
		return
	}
	if from == "" {
		from = "none"
	}
	add(ctx, om.GetMetrics().TierChanges, []attribute.KeyValue{
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	})
}

func (om *ObservabilityManager) webhooksTracked() bool {
	c := om.custom()
	return c == nil || (c.BusinessMetrics.Enabled && c.BusinessMetrics.TrackWebhooks)
}

func add(ctx context.Context, counter metric.Int64Counter, attrs []attribute.KeyValue) {
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
