package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the gateway
type Metrics struct {
	// Validation Metrics
	ValidationsTotal   metric.Int64Counter
	ValidationDuration metric.Float64Histogram

	// Security Metrics
	ReplayDetections  metric.Int64Counter
	RateLimitExceeded metric.Int64Counter

	// Replay Cache Metrics
	ReplayCacheSize metric.Int64ObservableGauge
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	var err error

	validatorMeter := inst.Meter("validator")
	securityMeter := inst.Meter("security")
	replayMeter := inst.Meter("replay")

	m.ValidationsTotal, err = validatorMeter.Int64Counter(
		"dpop.validations.total",
		metric.WithDescription("Total number of proof validations by outcome"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validations.total counter: %w", err)
	}

	m.ValidationDuration, err = validatorMeter.Float64Histogram(
		"dpop.validation.duration",
		metric.WithDescription("Proof validation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation.duration histogram: %w", err)
	}

	m.ReplayDetections, err = securityMeter.Int64Counter(
		"dpop.replay.detected",
		metric.WithDescription("Number of replayed proof identifiers rejected"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create replay.detected counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"dpop.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.ReplayCacheSize, err = replayMeter.Int64ObservableGauge(
		"dpop.replay.cache.size",
		metric.WithDescription("Current number of recorded proof identifiers"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create replay.cache.size gauge: %w", err)
	}

	return m, nil
}

// RecordValidation records a proof validation outcome
func (m *Metrics) RecordValidation(ctx context.Context, reason string, accepted bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("accepted", accepted),
	}
	if !accepted {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	m.ValidationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if reason == "replay_detected" {
		m.ReplayDetections.Add(ctx, 1)
	}
}

// RecordValidationDuration records how long a validation took
func (m *Metrics) RecordValidationDuration(ctx context.Context, durationMs float64, accepted bool) {
	m.ValidationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.Bool("accepted", accepted),
	))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context) {
	m.RateLimitExceeded.Add(ctx, 1)
}
