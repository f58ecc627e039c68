// Package memory provides an in-process event store.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/storage"
)

// Store keeps event streams in memory.
type Store struct {
	mu      sync.RWMutex
	streams map[event.StreamKey][]event.Event
}

// New creates an empty in-memory event store.
func New() *Store {
	return &Store{streams: make(map[event.StreamKey][]event.Event)}
}

// AppendEvent appends evt to its stream.
func (s *Store) AppendEvent(ctx context.Context, aggregateID string, aggregateType event.AggregateType, evt event.Event) error {
	aggregateID = storage.StreamID(aggregateID)
	if err := storage.CheckContext(ctx); err != nil {
		return storage.Wrap(storage.OpAppend, aggregateType, aggregateID, err)
	}
	if s == nil {
		return storage.Wrap(storage.OpAppend, aggregateType, aggregateID, errors.New("event store is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := event.StreamKey{AggregateType: aggregateType, AggregateID: aggregateID}
	stream := s.streams[key]
	prepared, err := storage.PrepareAppend(aggregateID, aggregateType, evt, int64(len(stream)))
	if err != nil {
		return storage.Wrap(storage.OpAppend, aggregateType, aggregateID, err)
	}
	s.streams[key] = append(stream, prepared)
	return nil
}

// ListEvents returns a copy of the stream in append order.
func (s *Store) ListEvents(ctx context.Context, aggregateID string, aggregateType event.AggregateType) ([]event.Event, error) {
	aggregateID = storage.StreamID(aggregateID)
	if err := storage.CheckContext(ctx); err != nil {
		return nil, storage.Wrap(storage.OpList, aggregateType, aggregateID, err)
	}
	if s == nil {
		return nil, storage.Wrap(storage.OpList, aggregateType, aggregateID, errors.New("event store is required"))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[event.StreamKey{AggregateType: aggregateType, AggregateID: aggregateID}]
	out := make([]event.Event, len(stream))
	for i, evt := range stream {
		out[i] = evt.Clone()
	}
	return out, nil
}

// Len returns the number of events across all streams.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, stream := range s.streams {
		n += len(stream)
	}
	return n
}
