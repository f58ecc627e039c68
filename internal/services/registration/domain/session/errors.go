package session

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/coursereg/internal/platform/errors"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
)

// ActionAddCourses names the add-courses command in state errors.
const ActionAddCourses = "addCourses"

// AlreadyExistsError reports a create for a student and term that already
// have a session.
type AlreadyExistsError struct {
	StudentID         ids.StudentID
	Term              ids.Term
	ExistingSessionID ids.SessionID
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("registration session %s already exists for student %s in %s", e.ExistingSessionID, e.StudentID, e.Term)
}

func (e *AlreadyExistsError) Code() apperrors.Code { return apperrors.CodeSessionAlreadyExists }

func (e *AlreadyExistsError) Metadata() map[string]string {
	return map[string]string{
		"student_id": string(e.StudentID),
		"term":       string(e.Term),
		"session_id": string(e.ExistingSessionID),
	}
}

// NotFoundError reports a session id with no events.
type NotFoundError struct {
	SessionID ids.SessionID
	// StudentID and Term are set for lookups by business key.
	StudentID ids.StudentID
	Term      ids.Term
}

func (e *NotFoundError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("registration session not found for student %s in %s", e.StudentID, e.Term)
	}
	return fmt.Sprintf("registration session %s not found", e.SessionID)
}

func (e *NotFoundError) Code() apperrors.Code { return apperrors.CodeSessionNotFound }

func (e *NotFoundError) Metadata() map[string]string {
	return map[string]string{
		"session_id": string(e.SessionID),
		"student_id": string(e.StudentID),
		"term":       string(e.Term),
	}
}

// InvalidStateError reports a command the current status does not allow.
type InvalidStateError struct {
	SessionID       ids.SessionID
	CurrentState    StatusTag
	AttemptedAction string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("registration session %s is %s: cannot %s", e.SessionID, e.CurrentState, e.AttemptedAction)
}

func (e *InvalidStateError) Code() apperrors.Code { return apperrors.CodeSessionInvalidState }

func (e *InvalidStateError) Metadata() map[string]string {
	return map[string]string{
		"session_id":       string(e.SessionID),
		"current_state":    string(e.CurrentState),
		"attempted_action": e.AttemptedAction,
	}
}

// DuplicateCourseError lists every requested course the session already holds.
type DuplicateCourseError struct {
	SessionID          ids.SessionID
	DuplicateCourseIDs []ids.CourseID
}

func (e *DuplicateCourseError) Error() string {
	return fmt.Sprintf("registration session %s already contains %s", e.SessionID, e.joined())
}

func (e *DuplicateCourseError) Code() apperrors.Code { return apperrors.CodeSessionDuplicateCourse }

func (e *DuplicateCourseError) Metadata() map[string]string {
	return map[string]string{
		"session_id":           string(e.SessionID),
		"duplicate_course_ids": e.joined(),
	}
}

func (e *DuplicateCourseError) joined() string {
	parts := make([]string, len(e.DuplicateCourseIDs))
	for i, id := range e.DuplicateCourseIDs {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

// MaxUnitsExceededError reports a request that would pass the unit ceiling.
type MaxUnitsExceededError struct {
	CurrentUnits   int
	RequestedUnits int
	MaxUnits       int
}

func (e *MaxUnitsExceededError) Error() string {
	return fmt.Sprintf("adding %d units to %d exceeds the maximum of %d", e.RequestedUnits, e.CurrentUnits, e.MaxUnits)
}

func (e *MaxUnitsExceededError) Code() apperrors.Code { return apperrors.CodeSessionMaxUnitsExceeded }

func (e *MaxUnitsExceededError) Metadata() map[string]string {
	return map[string]string{
		"current_units":   strconv.Itoa(e.CurrentUnits),
		"requested_units": strconv.Itoa(e.RequestedUnits),
		"max_units":       strconv.Itoa(e.MaxUnits),
	}
}

// ReconstructionError reports an event stream that cannot be folded into a
// valid session. It signals corrupted data, never a business outcome.
type ReconstructionError struct {
	SessionID  ids.SessionID
	Reason     string
	EventCount int
}

func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("reconstruct registration session %s from %d events: %s", e.SessionID, e.EventCount, e.Reason)
}

func (e *ReconstructionError) Code() apperrors.Code { return apperrors.CodeReconstructionFailed }

func (e *ReconstructionError) Metadata() map[string]string {
	return map[string]string{
		"session_id":  string(e.SessionID),
		"reason":      e.Reason,
		"event_count": strconv.Itoa(e.EventCount),
	}
}

// NonRetryable marks corrupted streams as permanent failures.
func (e *ReconstructionError) NonRetryable() bool { return true }

// ConcurrencyConflictError reports that the stream moved between load and
// append. Reloading and deciding again may succeed.
type ConcurrencyConflictError struct {
	SessionID       ids.SessionID
	ExpectedVersion int64
	Cause           error
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("registration session %s changed after version %d", e.SessionID, e.ExpectedVersion-1)
}

func (e *ConcurrencyConflictError) Unwrap() error { return e.Cause }

func (e *ConcurrencyConflictError) Code() apperrors.Code {
	return apperrors.CodeSessionConcurrencyConflict
}

func (e *ConcurrencyConflictError) Metadata() map[string]string {
	return map[string]string{
		"session_id":       string(e.SessionID),
		"expected_version": strconv.FormatInt(e.ExpectedVersion, 10),
	}
}

// InvalidCommandError reports command input that fails structural checks.
type InvalidCommandError struct {
	Reason string
}

func (e *InvalidCommandError) Error() string {
	return "invalid command: " + e.Reason
}

func (e *InvalidCommandError) Code() apperrors.Code { return apperrors.CodeCommandInvalid }

func (e *InvalidCommandError) Metadata() map[string]string {
	return map[string]string{"reason": e.Reason}
}
