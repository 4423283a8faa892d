// Package telemetry wires OpenTelemetry tracing and metrics for coachd.
//
// New installs an OTLP tracer provider and meter provider (gRPC or
// HTTP/protobuf) as the global providers. Packages that record metrics
// resolve their instruments from otel.Meter so they work with or without a
// collector. Tests use NewTestTelemetry for in-memory spans and metrics.
package telemetry
