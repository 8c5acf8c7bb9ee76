// Package otel publishes goMFA engine metrics through an OpenTelemetry Meter.
//
// Each engine counter becomes an Int64ObservableCounter and each latency
// bucket an Int64ObservableGauge. One callback reads
// [goMFA.Engine.MetricsSnapshot] per collection. The caller owns the
// MeterProvider.
package otel
