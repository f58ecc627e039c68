// Package event defines the event envelope and the event-type registry of the
// registration domain.
//
// Events are immutable facts. Every event addresses one aggregate stream by
// (aggregate type, aggregate id) and carries the per-stream version it
// produces, starting at 1. The registry rejects unknown types and malformed
// envelopes before they reach a store.
package event
