// Package otel binds credcore metrics to an OpenTelemetry meter.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per latency bucket. Callers own the MeterProvider.
package otel
