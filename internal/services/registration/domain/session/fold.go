package session

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
)

// Reducer applies one event to the accumulated state.
type Reducer func(State, event.Event) (State, error)

var reducers = map[event.Type]Reducer{
	event.TypeSessionCreated: foldCreated,
	event.TypeCoursesAdded:   foldCoursesAdded,
}

// FoldHandledTypes returns the event types handled by the session fold.
func FoldHandledTypes() []event.Type {
	return []event.Type{
		event.TypeSessionCreated,
		event.TypeCoursesAdded,
	}
}

// Fold applies evt to state. Unknown event types leave state unchanged and
// report handled=false.
func Fold(state State, evt event.Event) (next State, handled bool, err error) {
	reduce, ok := reducers[evt.Type]
	if !ok {
		return state, false, nil
	}
	next, err = reduce(state.Clone(), evt)
	if err != nil {
		return state, true, err
	}
	next.Version = state.Version + 1
	if !evt.Timestamp.IsZero() {
		next.UpdatedAt = evt.Timestamp.UTC()
	}
	return next, true, nil
}

// Replay folds a stream into a session.
//
// The first event must create the session. Later events are applied in
// order; types without a reducer are passed to onUnknown and skipped.
// Invariants are checked after every applied event.
func Replay(events []event.Event, onUnknown func(event.Event)) (State, error) {
	if len(events) == 0 {
		return State{}, &ReconstructionError{Reason: "event stream is empty"}
	}
	first := events[0]
	if first.Type != event.TypeSessionCreated {
		return State{}, &ReconstructionError{
			Reason:     fmt.Sprintf("first event is %s, want %s", first.Type, event.TypeSessionCreated),
			EventCount: len(events),
		}
	}

	var state State
	for i, evt := range events {
		if want := int64(i + 1); evt.Version != 0 && evt.Version != want {
			return State{}, &ReconstructionError{
				SessionID:  state.ID,
				Reason:     fmt.Sprintf("event %d has version %d, want %d", i, evt.Version, want),
				EventCount: len(events),
			}
		}
		next, handled, err := Fold(state, evt)
		if err != nil {
			return State{}, &ReconstructionError{
				SessionID:  state.ID,
				Reason:     err.Error(),
				EventCount: len(events),
			}
		}
		if !handled && onUnknown != nil {
			onUnknown(evt)
		}
		if handled {
			if err := next.CheckInvariants(); err != nil {
				return State{}, &ReconstructionError{
					SessionID:  next.ID,
					Reason:     "invariant violated: " + err.Error(),
					EventCount: len(events),
				}
			}
		}
		next.StreamVersion = int64(i + 1)
		state = next
	}
	return state, nil
}

func foldCreated(state State, evt event.Event) (State, error) {
	if state.Exists() {
		return state, fmt.Errorf("session %s created twice", state.ID)
	}
	var payload event.SessionCreatedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return state, fmt.Errorf("session fold %s: %w", evt.Type, err)
	}
	if payload.SessionID == "" {
		return state, fmt.Errorf("session fold %s: session id is empty", evt.Type)
	}
	createdAt := payload.CreatedAt.UTC()
	if payload.CreatedAt.IsZero() {
		createdAt = evt.Timestamp.UTC()
	}
	return State{
		ID:          payload.SessionID,
		StudentID:   payload.StudentID,
		Term:        payload.Term,
		Enrollments: []EnrollmentEntry{},
		Status:      Draft{CreatedAt: createdAt},
		CreatedAt:   createdAt,
	}, nil
}

func foldCoursesAdded(state State, evt event.Event) (State, error) {
	if !state.Exists() {
		return state, fmt.Errorf("session fold %s: session not created", evt.Type)
	}
	if !state.CanModifyCourses() {
		return state, fmt.Errorf("session fold %s: courses added while %s", evt.Type, TagOf(state.Status))
	}
	var payload event.CoursesAddedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return state, fmt.Errorf("session fold %s: %w", evt.Type, err)
	}
	for _, req := range payload.EnrollmentRequests {
		state.Enrollments = append(state.Enrollments, EnrollmentEntry{
			EnrollmentID: req.EnrollmentID,
			CourseID:     req.CourseID,
			Units:        req.Units,
		})
		state.TotalUnits += req.Units
	}
	return state, nil
}
