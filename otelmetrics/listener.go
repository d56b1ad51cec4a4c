// Package otelmetrics bridges faulty's closed event vocabulary onto
// OpenTelemetry metrics. It is optional: the root faulty package has no
// OTel import, and applications that don't call Listener never pull in
// the OTel SDK transitively through faulty.
package otelmetrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ParentSquare/faulty"
)

// Listener builds a faulty.Listener that mirrors circuit events onto
// OpenTelemetry instruments: one counter per event, plus a histogram
// standing in for a current-state gauge — grounded in the teacher's
// OTelMetricsCollector (RecordSuccess/RecordFailure/RecordStateChange all
// funnel into a counter-per-kind plus a histogram-backed state gauge),
// adapted here from its bespoke telemetry wrapper onto the stock
// go.opentelemetry.io/otel/metric API. Register the result with an
// EventNotifier via Subscribe.
func Listener(meterName string) (faulty.Listener, error) {
	meter := otel.Meter(meterName)

	events, err := meter.Int64Counter("faulty.circuit.events",
		metric.WithDescription("count of faulty circuit events by circuit and event name"))
	if err != nil {
		return nil, err
	}
	state, err := meter.Float64Histogram("faulty.circuit.state",
		metric.WithDescription("0 on circuit_closed, 1 on circuit_opened/reopened, 0.5 on circuit_skipped"))
	if err != nil {
		return nil, err
	}

	return func(event string, payload map[string]interface{}) {
		ctx := context.Background()
		name, _ := payload["circuit"].(string)

		events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("circuit", name),
			attribute.String("event", event),
		))

		if v, ok := stateValue(event); ok {
			state.Record(ctx, v, metric.WithAttributes(attribute.String("circuit", name)))
		}
	}, nil
}

func stateValue(event string) (float64, bool) {
	switch event {
	case faulty.EventCircuitClosed:
		return 0, true
	case faulty.EventCircuitOpened, faulty.EventCircuitReopened:
		return 1, true
	case faulty.EventCircuitSkipped:
		return 0.5, true
	}
	return 0, false
}
