// Package telemetry groups operational observability for the registration
// service.
//
// Registration events are the canonical journal used for replay and
// projections. They live in the event store and are distinct from the
// operational signals collected here, which describe how the service behaves
// rather than what the domain decided.
//
// # Metrics (telemetry/metrics)
//
// Prometheus counters and histograms for command outcomes, appended events,
// replay failures and HTTP traffic, exposed through a private registry.
package telemetry
