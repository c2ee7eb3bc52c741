// Package instrumentation provides OpenTelemetry metrics and tracing for the
// triage pipeline.
//
// The Provider owns the meter and tracer providers and selects the exporters
// from configuration: Prometheus (default), OTLP or stdout for metrics; OTLP,
// stdout or none for traces. Metrics is the domain recorder used by the
// pipeline and the HTTP server; it is safe to call on a zero value, so
// instrumentation can be disabled without branching at call sites.
//
// Cardinality helpers keep label values bounded: sender addresses are reduced
// to their domain, and the account label is only emitted when detailed labels
// are explicitly enabled.
package instrumentation
