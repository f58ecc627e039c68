package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/louisbranch/coursereg/internal/platform/errors"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/command"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
)

// CreateSession asks for a new session for a student and term.
type CreateSession struct {
	StudentID ids.StudentID
	Term      ids.Term
}

// AddCourses asks to add courses to a draft session.
type AddCourses struct {
	SessionID ids.SessionID
	Courses   []event.CourseInfo
}

func reject(err error) command.Decision {
	return command.RejectErr(string(apperrors.CodeOf(err)), err)
}

// DecideCreate returns the decision for creating a session.
//
// state is the replay of the derived session id; a zero State means the
// stream is empty.
func DecideCreate(state State, cmd CreateSession, now func() time.Time) command.Decision {
	sessionID, err := ids.NewSessionID(cmd.StudentID, cmd.Term)
	if err != nil {
		return reject(err)
	}
	if state.Exists() {
		exists := &AlreadyExistsError{StudentID: cmd.StudentID, Term: cmd.Term, ExistingSessionID: state.ID}
		return reject(exists)
	}
	if now == nil {
		now = time.Now
	}
	at := now().UTC()

	payloadJSON, err := json.Marshal(event.SessionCreatedPayload{
		SessionID: sessionID,
		StudentID: cmd.StudentID,
		Term:      cmd.Term,
		CreatedAt: at,
	})
	if err != nil {
		return reject(fmt.Errorf("encode %s payload: %w", event.TypeSessionCreated, err))
	}
	return command.Accept(event.Event{
		AggregateID:   string(sessionID),
		AggregateType: event.AggregateTypeRegistrationSession,
		Version:       state.NextVersion(),
		Type:          event.TypeSessionCreated,
		Timestamp:     at,
		PayloadJSON:   payloadJSON,
	})
}

// DecideAddCourses returns the decision for adding courses.
//
// Input is checked before the session is consulted: the list must be
// non-empty and every course must carry 1 to MaxUnitsPerTerm units. Rules
// then run in a fixed order and the first violation is the one reported:
// the session must exist, be a draft, hold none of the requested courses and
// stay within MaxUnitsPerTerm.
func DecideAddCourses(state State, cmd AddCourses, now func() time.Time) command.Decision {
	if len(cmd.Courses) == 0 {
		invalid := &InvalidCommandError{Reason: "courses must not be empty"}
		return reject(invalid)
	}
	requested := 0
	for _, c := range cmd.Courses {
		if c.Units <= 0 {
			invalid := &InvalidCommandError{Reason: "units must be positive for course " + string(c.CourseID)}
			return reject(invalid)
		}
		if c.Units > MaxUnitsPerTerm {
			invalid := &InvalidCommandError{Reason: "units must not exceed " + strconv.Itoa(MaxUnitsPerTerm) + " for course " + string(c.CourseID)}
			return reject(invalid)
		}
		requested += c.Units
	}

	if !state.Exists() {
		missing := &NotFoundError{SessionID: cmd.SessionID}
		return reject(missing)
	}
	if !state.CanModifyCourses() {
		invalid := &InvalidStateError{
			SessionID:       state.ID,
			CurrentState:    TagOf(state.Status),
			AttemptedAction: ActionAddCourses,
		}
		return reject(invalid)
	}
	if dups := state.FindDuplicateCourses(cmd.Courses); len(dups) > 0 {
		dup := &DuplicateCourseError{SessionID: state.ID, DuplicateCourseIDs: dups}
		return reject(dup)
	}
	if state.TotalUnits+requested > MaxUnitsPerTerm {
		over := &MaxUnitsExceededError{
			CurrentUnits:   state.TotalUnits,
			RequestedUnits: requested,
			MaxUnits:       MaxUnitsPerTerm,
		}
		return reject(over)
	}

	requests := make([]event.EnrollmentRequest, 0, len(cmd.Courses))
	for _, c := range cmd.Courses {
		enrollmentID, err := ids.NewEnrollmentID(state.StudentID, c.CourseID, state.Term)
		if err != nil {
			return reject(err)
		}
		requests = append(requests, event.EnrollmentRequest{
			EnrollmentID: enrollmentID,
			CourseID:     c.CourseID,
			Units:        c.Units,
		})
	}

	if now == nil {
		now = time.Now
	}
	at := now().UTC()
	payloadJSON, err := json.Marshal(event.CoursesAddedPayload{
		SessionID:          state.ID,
		AddedCourses:       append([]event.CourseInfo(nil), cmd.Courses...),
		EnrollmentRequests: requests,
		AddedAt:            at,
	})
	if err != nil {
		return reject(fmt.Errorf("encode %s payload: %w", event.TypeCoursesAdded, err))
	}
	return command.Accept(event.Event{
		AggregateID:   string(state.ID),
		AggregateType: event.AggregateTypeRegistrationSession,
		Version:       state.NextVersion(),
		Type:          event.TypeCoursesAdded,
		Timestamp:     at,
		PayloadJSON:   payloadJSON,
	})
}
