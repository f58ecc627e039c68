package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/louisbranch/coursereg/internal/platform/errors"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
)

// EventStore is the append-only event log.
type EventStore interface {
	// AppendEvent appends evt to the stream. A zero evt.Version asks the
	// store to assign the next version; any other version must be exactly
	// one past the stream head or ErrVersionConflict is reported.
	AppendEvent(ctx context.Context, aggregateID string, aggregateType event.AggregateType, evt event.Event) error
	// ListEvents returns the stream in append order, or an empty slice.
	ListEvents(ctx context.Context, aggregateID string, aggregateType event.AggregateType) ([]event.Event, error)
}

// ErrVersionConflict indicates an append raced another writer of the stream.
var ErrVersionConflict = errors.New("event version conflict")

// Operation names used in *Error.
const (
	OpAppend = "append"
	OpList   = "list"
)

// Error wraps any storage fault.
type Error struct {
	Op            string
	AggregateType event.AggregateType
	AggregateID   string
	Cause         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("event store %s %s/%s: %v", e.Op, e.AggregateType, e.AggregateID, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code reports store faults as retryable infrastructure errors.
func (e *Error) Code() apperrors.Code { return apperrors.CodeEventStoreFailure }

// Metadata returns the template values for localized messages.
func (e *Error) Metadata() map[string]string {
	return map[string]string{
		"operation":      e.Op,
		"aggregate_type": string(e.AggregateType),
		"aggregate_id":   e.AggregateID,
	}
}

// Wrap returns err as *Error. Nil stays nil and an existing *Error is kept.
func Wrap(op string, aggregateType event.AggregateType, aggregateID string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return err
	}
	return &Error{Op: op, AggregateType: aggregateType, AggregateID: aggregateID, Cause: err}
}

// StreamID returns the canonical form of an aggregate id used to address a
// stream.
func StreamID(aggregateID string) string {
	return strings.TrimSpace(aggregateID)
}

// IsVersionConflict reports whether err is an optimistic concurrency failure.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// VersionConflict builds the conflict cause for an append at version when the
// stream head is current.
func VersionConflict(version, current int64) error {
	return fmt.Errorf("%w: version %d, stream at %d", ErrVersionConflict, version, current)
}

// PrepareAppend normalises evt for appending after a stream whose head is at
// version current. Backends call it inside their write critical section.
func PrepareAppend(aggregateID string, aggregateType event.AggregateType, evt event.Event, current int64) (event.Event, error) {
	aggregateID = StreamID(aggregateID)
	if aggregateID == "" {
		return event.Event{}, event.ErrAggregateIDRequired
	}
	if strings.TrimSpace(string(aggregateType)) == "" {
		return event.Event{}, errors.New("aggregate type is required")
	}
	if strings.TrimSpace(string(evt.Type)) == "" {
		return event.Event{}, event.ErrTypeRequired
	}
	evt = evt.Clone()
	evt.AggregateID = aggregateID
	evt.AggregateType = aggregateType
	switch {
	case evt.Version == 0:
		evt.Version = current + 1
	case evt.Version != current+1:
		return event.Event{}, VersionConflict(evt.Version, current)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
	if strings.TrimSpace(evt.ID) == "" {
		evt.ID = uuid.NewString()
	}
	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	return evt, nil
}

// CheckContext returns ctx.Err for a non-nil context.
func CheckContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
