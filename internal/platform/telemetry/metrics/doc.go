// Package metrics provides operational metrics collection.
//
// Collectors live in a private Prometheus registry owned by Recorder so that
// tests and multiple servers in one process never share global state.
//
// # Metric Categories
//
//   - Commands: coursereg_commands_total by command and outcome
//   - Events: coursereg_events_appended_total by event type
//   - Replay: coursereg_reconstruction_failures_total
//   - HTTP: request count and latency by method, route and status
//
// A nil *Recorder is valid and records nothing.
package metrics
