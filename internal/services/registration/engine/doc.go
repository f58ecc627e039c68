// Package engine runs registration commands: it reconstructs sessions from
// the event store, decides commands against current state, appends the
// resulting events and publishes them to the bus.
//
// Appends carry the version the event produces, so two commands racing on
// one session cannot both succeed. The loser observes a version conflict,
// reported as SessionAlreadyExists for creation and as a retryable
// ConcurrencyConflict for course additions.
package engine
