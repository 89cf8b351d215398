// Package otel binds guard metrics to OpenTelemetry.
//
// [NewOTelExporter] registers an Int64ObservableCounter per guard counter and
// an Int64ObservableGauge per latency bucket. A single callback reads the guard
// snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate guard state.
package otel
