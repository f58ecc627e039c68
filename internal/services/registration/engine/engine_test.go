package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/coursereg/internal/services/registration/bus"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/session"
	"github.com/louisbranch/coursereg/internal/services/registration/storage"
	"github.com/louisbranch/coursereg/internal/services/registration/storage/memory"
)

const (
	student   = ids.StudentID("S12345678")
	term      = ids.Term("2024-Spring")
	sessionID = ids.SessionID("S12345678:2024-Spring")
)

func fixedNow() time.Time { return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC) }

// recordingBus captures published events in order.
type recordingBus struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (b *recordingBus) Publish(_ context.Context, evt event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return b.err
}

func (b *recordingBus) Subscribe(bus.Handler) {}

func (b *recordingBus) published() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event.Event(nil), b.events...)
}

// faultStore fails list or append with a wrapped storage error.
type faultStore struct {
	storage.EventStore
	listErr   error
	appendErr error
	appends   int
}

func (s *faultStore) ListEvents(ctx context.Context, id string, typ event.AggregateType) ([]event.Event, error) {
	if s.listErr != nil {
		return nil, storage.Wrap(storage.OpList, typ, id, s.listErr)
	}
	return s.EventStore.ListEvents(ctx, id, typ)
}

func (s *faultStore) AppendEvent(ctx context.Context, id string, typ event.AggregateType, evt event.Event) error {
	s.appends++
	if s.appendErr != nil {
		return storage.Wrap(storage.OpAppend, typ, id, s.appendErr)
	}
	return s.EventStore.AppendEvent(ctx, id, typ, evt)
}

// staleLoader always returns the same snapshot, standing in for a reader that
// loaded before another writer appended.
type staleLoader struct {
	state session.State
}

func (l staleLoader) FindByID(context.Context, ids.SessionID) (session.State, error) {
	return l.state, nil
}

// barrierLoader holds every caller until n of them have loaded state.
type barrierLoader struct {
	inner SessionLoader
	wg    *sync.WaitGroup
}

func (l barrierLoader) FindByID(ctx context.Context, id ids.SessionID) (session.State, error) {
	state, err := l.inner.FindByID(ctx, id)
	l.wg.Done()
	l.wg.Wait()
	return state, err
}

type fixture struct {
	store   *memory.Store
	bus     *recordingBus
	repo    Repository
	handler Handler
}

func newFixture() *fixture {
	store := memory.New()
	repo := Repository{Store: store}
	b := &recordingBus{}
	return &fixture{
		store: store,
		bus:   b,
		repo:  repo,
		handler: Handler{
			Sessions: repo,
			Store:    store,
			Bus:      b,
			Now:      fixedNow,
		},
	}
}

func (f *fixture) create(t *testing.T) {
	t.Helper()
	id, err := f.handler.CreateSession(context.Background(), CreateSessionCommand{StudentID: student, Term: term})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if id != sessionID {
		t.Fatalf("session id = %s, want %s", id, sessionID)
	}
}

func (f *fixture) stream(t *testing.T) []event.Event {
	t.Helper()
	events, err := f.store.ListEvents(context.Background(), string(sessionID), event.AggregateTypeRegistrationSession)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	return events
}

func courses(pairs ...any) []CourseInput {
	out := make([]CourseInput, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, CourseInput{CourseID: ids.CourseID(pairs[i].(string)), Units: pairs[i+1].(int)})
	}
	return out
}

func appendRaw(t *testing.T, store storage.EventStore, evt event.Event) {
	t.Helper()
	if evt.PayloadJSON == nil {
		evt.PayloadJSON = json.RawMessage(`{}`)
	}
	if err := store.AppendEvent(context.Background(), evt.AggregateID, evt.AggregateType, evt); err != nil {
		t.Fatalf("append raw event: %v", err)
	}
}

func mustAs[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		t.Fatalf("error = %v (%T), want %T", err, err, target)
	}
	return target
}
