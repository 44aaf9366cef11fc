// Package observability provides structured logging and OpenTelemetry
// tracing and metrics for the authentication gateway.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL and LOG_FORMAT
//   - OTLP/HTTP trace and metric exporters with a shared service resource
//
// The authn package records its span and outcome counter through the global
// providers installed by Setup; when telemetry is disabled those calls are
// no-ops.
package observability
