package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/autox/api/internal/platform/auth"
)

const meterName = "github.com/autox/api/internal/platform/observability"

// AuthMetrics records token verification outcomes as OpenTelemetry instruments.
type AuthMetrics struct {
	verifications metric.Int64Counter
	latency       metric.Float64Histogram
}

var _ auth.MetricsRecorder = (*AuthMetrics)(nil)

// NewAuthMetrics registers the auth instruments on meter, or on the global provider when meter is nil.
// Registration failures are logged and leave the affected instrument disabled.
func NewAuthMetrics(meter metric.Meter, logger *zap.Logger) *AuthMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &AuthMetrics{}
	counter, err := meter.Int64Counter(
		"auth.verifications",
		metric.WithDescription("Count of token verification attempts by kind and outcome"),
	)
	if err != nil {
		logger.Warn("observability: unable to register auth counter", zap.Error(err))
	} else {
		m.verifications = counter
	}
	latency, err := meter.Float64Histogram(
		"auth.verification.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of token verification"),
	)
	if err != nil {
		logger.Warn("observability: unable to register auth latency", zap.Error(err))
	} else {
		m.latency = latency
	}
	return m
}

// RecordVerification implements auth.MetricsRecorder.
func (m *AuthMetrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	if m.verifications != nil {
		m.verifications.Add(ctx, 1, attrs)
	}
	if m.latency != nil {
		m.latency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
	}
}
