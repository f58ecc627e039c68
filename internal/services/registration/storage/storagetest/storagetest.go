// Package storagetest holds the conformance suite every event store backend
// must pass.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/storage"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) storage.EventStore

// Seed appends n store-versioned events to the registration session stream id.
func Seed(t *testing.T, store storage.EventStore, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		evt := event.Event{
			Type:        event.TypeCoursesAdded,
			Timestamp:   time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
			PayloadJSON: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		}
		if err := store.AppendEvent(context.Background(), id, event.AggregateTypeRegistrationSession, evt); err != nil {
			t.Fatalf("seed %s event %d: %v", id, i, err)
		}
	}
}

// Run exercises the event store contract against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("empty stream", func(t *testing.T) {
		store := newStore(t)
		events, err := store.ListEvents(context.Background(), "missing", event.AggregateTypeRegistrationSession)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(events) != 0 {
			t.Fatalf("events = %d, want 0", len(events))
		}
	})

	t.Run("append order and versions", func(t *testing.T) {
		store := newStore(t)
		Seed(t, store, "S12345678:2024-Spring", 3)
		events, err := store.ListEvents(context.Background(), "S12345678:2024-Spring", event.AggregateTypeRegistrationSession)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("events = %d, want 3", len(events))
		}
		for i, evt := range events {
			if evt.Version != int64(i+1) {
				t.Fatalf("event %d version = %d, want %d", i, evt.Version, i+1)
			}
			var payload struct{ N int }
			if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			if payload.N != i {
				t.Fatalf("event %d payload n = %d", i, payload.N)
			}
			if evt.ID == "" {
				t.Fatalf("event %d has no id", i)
			}
		}
	})

	t.Run("envelope round trip", func(t *testing.T) {
		store := newStore(t)
		at := time.Date(2024, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
		in := event.Event{
			ID:            "11111111-2222-3333-4444-555555555555",
			AggregateID:   "ignored",
			AggregateType: event.AggregateTypeEnrollment,
			Version:       1,
			Type:          event.TypeSessionCreated,
			Timestamp:     at,
			PayloadJSON:   json.RawMessage(`{"session_id":"S12345678:2024-Spring"}`),
		}
		if err := store.AppendEvent(context.Background(), "S12345678:2024-Spring", event.AggregateTypeRegistrationSession, in); err != nil {
			t.Fatalf("append: %v", err)
		}
		events, err := store.ListEvents(context.Background(), "S12345678:2024-Spring", event.AggregateTypeRegistrationSession)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("events = %d, want 1", len(events))
		}
		got := events[0]
		if got.ID != in.ID || got.Type != in.Type || got.Version != 1 {
			t.Fatalf("event = %+v", got)
		}
		if got.AggregateID != "S12345678:2024-Spring" || got.AggregateType != event.AggregateTypeRegistrationSession {
			t.Fatalf("addressing = %s/%s, want store parameters", got.AggregateType, got.AggregateID)
		}
		if !got.Timestamp.Equal(at) {
			t.Fatalf("timestamp = %v, want %v", got.Timestamp, at)
		}
		if string(got.PayloadJSON) != string(in.PayloadJSON) {
			t.Fatalf("payload = %s, want %s", got.PayloadJSON, in.PayloadJSON)
		}
	})

	t.Run("aggregate type partitions streams", func(t *testing.T) {
		store := newStore(t)
		Seed(t, store, "shared-id", 2)
		evt := event.Event{Type: "enrollment.requested", Timestamp: time.Unix(0, 0), PayloadJSON: json.RawMessage(`{}`)}
		if err := store.AppendEvent(context.Background(), "shared-id", event.AggregateTypeEnrollment, evt); err != nil {
			t.Fatalf("append enrollment: %v", err)
		}
		sessions, err := store.ListEvents(context.Background(), "shared-id", event.AggregateTypeRegistrationSession)
		if err != nil {
			t.Fatalf("list sessions: %v", err)
		}
		enrollments, err := store.ListEvents(context.Background(), "shared-id", event.AggregateTypeEnrollment)
		if err != nil {
			t.Fatalf("list enrollments: %v", err)
		}
		if len(sessions) != 2 || len(enrollments) != 1 {
			t.Fatalf("sessions = %d enrollments = %d, want 2/1", len(sessions), len(enrollments))
		}
		if enrollments[0].Version != 1 {
			t.Fatalf("enrollment version = %d, want 1", enrollments[0].Version)
		}
	})

	t.Run("explicit version conflict", func(t *testing.T) {
		store := newStore(t)
		Seed(t, store, "S1", 2)
		stale := event.Event{Type: event.TypeCoursesAdded, Version: 2, Timestamp: time.Unix(0, 0), PayloadJSON: json.RawMessage(`{}`)}
		err := store.AppendEvent(context.Background(), "S1", event.AggregateTypeRegistrationSession, stale)
		if !storage.IsVersionConflict(err) {
			t.Fatalf("err = %v, want version conflict", err)
		}
		var storeErr *storage.Error
		if !errors.As(err, &storeErr) {
			t.Fatalf("err = %T, want *storage.Error", err)
		}
		next := stale
		next.Version = 3
		if err := store.AppendEvent(context.Background(), "S1", event.AggregateTypeRegistrationSession, next); err != nil {
			t.Fatalf("append next version: %v", err)
		}
		events, err := store.ListEvents(context.Background(), "S1", event.AggregateTypeRegistrationSession)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("events = %d, want 3", len(events))
		}
	})

	t.Run("padded ids address the same stream", func(t *testing.T) {
		store := newStore(t)
		Seed(t, store, "S12345678:2024-Spring", 3)

		stale := event.Event{Type: event.TypeSessionCreated, Version: 1, Timestamp: time.Unix(0, 0), PayloadJSON: json.RawMessage(`{}`)}
		err := store.AppendEvent(context.Background(), " S12345678:2024-Spring ", event.AggregateTypeRegistrationSession, stale)
		if !storage.IsVersionConflict(err) {
			t.Fatalf("err = %v, want version conflict", err)
		}

		next := event.Event{Type: event.TypeCoursesAdded, Timestamp: time.Unix(0, 0), PayloadJSON: json.RawMessage(`{}`)}
		if err := store.AppendEvent(context.Background(), "\tS12345678:2024-Spring", event.AggregateTypeRegistrationSession, next); err != nil {
			t.Fatalf("append padded: %v", err)
		}
		for _, id := range []string{"S12345678:2024-Spring", " S12345678:2024-Spring "} {
			events, err := store.ListEvents(context.Background(), id, event.AggregateTypeRegistrationSession)
			if err != nil {
				t.Fatalf("list %q: %v", id, err)
			}
			if len(events) != 4 {
				t.Fatalf("list %q events = %d, want 4", id, len(events))
			}
			if events[3].Version != 4 || events[3].AggregateID != "S12345678:2024-Spring" {
				t.Fatalf("list %q last = v%d %q", id, events[3].Version, events[3].AggregateID)
			}
		}
	})

	t.Run("concurrent appends at one version", func(t *testing.T) {
		store := newStore(t)
		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok        int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				evt := event.Event{
					Type:        event.TypeSessionCreated,
					Version:     1,
					Timestamp:   time.Unix(int64(i), 0),
					PayloadJSON: json.RawMessage(`{}`),
				}
				err := store.AppendEvent(context.Background(), "race", event.AggregateTypeRegistrationSession, evt)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case storage.IsVersionConflict(err):
					conflicts++
				default:
					t.Errorf("append: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if ok != 1 || conflicts != writers-1 {
			t.Fatalf("ok = %d conflicts = %d, want 1/%d", ok, conflicts, writers-1)
		}
	})

	t.Run("returned events are copies", func(t *testing.T) {
		store := newStore(t)
		Seed(t, store, "S1", 1)
		events, err := store.ListEvents(context.Background(), "S1", event.AggregateTypeRegistrationSession)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		events[0].Type = "mutated"
		events[0].PayloadJSON[0] = '['
		again, err := store.ListEvents(context.Background(), "S1", event.AggregateTypeRegistrationSession)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if again[0].Type != event.TypeCoursesAdded || again[0].PayloadJSON[0] != '{' {
			t.Fatalf("stored event mutated: %+v", again[0])
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := store.AppendEvent(ctx, "S1", event.AggregateTypeRegistrationSession, event.Event{Type: event.TypeCoursesAdded})
		var storeErr *storage.Error
		if !errors.As(err, &storeErr) || !errors.Is(err, context.Canceled) {
			t.Fatalf("append err = %v, want *storage.Error wrapping context.Canceled", err)
		}
		if _, err := store.ListEvents(ctx, "S1", event.AggregateTypeRegistrationSession); !errors.Is(err, context.Canceled) {
			t.Fatalf("list err = %v, want context.Canceled", err)
		}
	})
}
