// Package storage defines the event store contract of the registration
// service and the helpers shared by its backends.
//
// A store is an append-only log partitioned by (aggregate type, aggregate id).
// Events of one stream are returned in append order and that order is the
// only source of current state. Every backend reports faults as *Error so
// callers never confuse a broken store with an empty stream.
package storage
