// Package observability provides an OpenTelemetry metrics extension for
// Waypoint. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for thread starts, gate pauses, approval decisions
// and terminal outcomes.
//
// For per-node tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
