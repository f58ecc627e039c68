package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind, e.g. "registration_session.created".
type Type string

// AggregateType partitions the log by entity kind so identical ids of
// different kinds never share a stream.
type AggregateType string

const (
	// AggregateTypeRegistrationSession addresses registration session streams.
	AggregateTypeRegistrationSession AggregateType = "RegistrationSession"
	// AggregateTypeEnrollment addresses enrollment streams.
	AggregateTypeEnrollment AggregateType = "Enrollment"
)

// Event is the stored envelope for one domain fact.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	Version       int64           `json:"version"`
	Type          Type            `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	PayloadJSON   json.RawMessage `json:"payload"`
}

// StreamKey identifies one aggregate stream.
type StreamKey struct {
	AggregateType AggregateType
	AggregateID   string
}

// Key returns the stream the event belongs to.
func (e Event) Key() StreamKey {
	return StreamKey{AggregateType: e.AggregateType, AggregateID: e.AggregateID}
}

// Clone returns a copy that shares no mutable memory with e.
func (e Event) Clone() Event {
	if e.PayloadJSON != nil {
		e.PayloadJSON = append(json.RawMessage(nil), e.PayloadJSON...)
	}
	return e
}
