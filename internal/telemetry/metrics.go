// Package telemetry records activation outcomes as OpenTelemetry counters.
// Nothing is exported unless the host installs a MeterProvider.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/LerianStudio/lib-activation-go"

// Metrics groups the counters. A nil *Metrics records nothing.
type Metrics struct {
	activations   metric.Int64Counter
	verifications metric.Int64Counter
	deliveries    metric.Int64Counter
}

// New creates the counters on provider, or on the global provider when nil.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter(instrumentationName)

	activations, err := meter.Int64Counter("activation.attempts",
		metric.WithDescription("Activation attempts by outcome"))
	if err != nil {
		return nil, err
	}

	verifications, err := meter.Int64Counter("activation.verifications",
		metric.WithDescription("Online and local verifications by outcome"))
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("activation.listener.deliveries",
		metric.WithDescription("Change notifications delivered to listeners"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		activations:   activations,
		verifications: verifications,
		deliveries:    deliveries,
	}, nil
}

// RecordActivation counts one activation attempt.
func (m *Metrics) RecordActivation(ctx context.Context, success bool, code string) {
	if m == nil {
		return
	}

	m.activations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.String("code", code),
	))
}

// RecordVerification counts one verification. mode is "online" or "local".
func (m *Metrics) RecordVerification(ctx context.Context, mode string, valid, offline bool) {
	if m == nil {
		return
	}

	m.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("valid", valid),
		attribute.Bool("offline", offline),
	))
}

// RecordDelivery counts one listener delivery. kind is "record", "deleted" or "error".
func (m *Metrics) RecordDelivery(ctx context.Context, kind string) {
	if m == nil {
		return
	}

	m.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
