// Package otel bridges rolecalc engine metrics into OpenTelemetry.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per latency bucket. One callback reads
// Engine.MetricsSnapshot per collection cycle. The caller owns the
// MeterProvider.
package otel
