// Package enrollment models a single course enrollment derived from a
// registration session.
package enrollment

import (
	"time"

	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
)

// StatusTag names an enrollment status variant.
type StatusTag string

const (
	StatusTagRequested  StatusTag = "Requested"
	StatusTagApproved   StatusTag = "Approved"
	StatusTagInProgress StatusTag = "InProgress"
	StatusTagCompleted  StatusTag = "Completed"
	StatusTagCancelled  StatusTag = "Cancelled"
	StatusTagWithdrawn  StatusTag = "Withdrawn"
)

// Status is the closed set of enrollment states.
type Status interface {
	Tag() StatusTag
	isStatus()
}

// Requested waits for approval.
type Requested struct {
	RequestedAt time.Time
}

// Approved has a confirmed seat.
type Approved struct {
	ApprovedAt time.Time
}

// InProgress is attending the course.
type InProgress struct {
	StartedAt time.Time
}

// Completed has a final grade.
type Completed struct {
	CompletedAt time.Time
	Grade       ids.Grade
}

// Cancelled was dropped before the course started.
type Cancelled struct {
	CancelledAt time.Time
	Reason      string
}

// Withdrawn left after the course started.
type Withdrawn struct {
	WithdrawnAt time.Time
	Reason      string
}

func (Requested) Tag() StatusTag  { return StatusTagRequested }
func (Approved) Tag() StatusTag   { return StatusTagApproved }
func (InProgress) Tag() StatusTag { return StatusTagInProgress }
func (Completed) Tag() StatusTag  { return StatusTagCompleted }
func (Cancelled) Tag() StatusTag  { return StatusTagCancelled }
func (Withdrawn) Tag() StatusTag  { return StatusTagWithdrawn }

func (Requested) isStatus()  {}
func (Approved) isStatus()   {}
func (InProgress) isStatus() {}
func (Completed) isStatus()  {}
func (Cancelled) isStatus()  {}
func (Withdrawn) isStatus()  {}

// Enrollment is one student's place in one course for one term.
type Enrollment struct {
	ID        ids.EnrollmentID
	SessionID ids.SessionID
	StudentID ids.StudentID
	CourseID  ids.CourseID
	Term      ids.Term
	Units     int
	Status    Status
	Version   int64
}

// NewRequested builds an enrollment in the Requested state.
func NewRequested(sessionID ids.SessionID, id ids.EnrollmentID, units int, at time.Time) Enrollment {
	student, course, term := id.Parts()
	return Enrollment{
		ID:        id,
		SessionID: sessionID,
		StudentID: student,
		CourseID:  course,
		Term:      term,
		Units:     units,
		Status:    Requested{RequestedAt: at.UTC()},
		Version:   1,
	}
}

// CanApprove reports whether the enrollment awaits approval.
func (e Enrollment) CanApprove() bool {
	switch e.Status.(type) {
	case Requested:
		return true
	case Approved, InProgress, Completed, Cancelled, Withdrawn:
		return false
	default:
		return false
	}
}

// CanStart reports whether the course may begin.
func (e Enrollment) CanStart() bool {
	_, ok := e.Status.(Approved)
	return ok
}

// CanComplete reports whether a grade may be recorded.
func (e Enrollment) CanComplete() bool {
	_, ok := e.Status.(InProgress)
	return ok
}

// CanWithdraw reports whether the student may leave a course in progress.
func (e Enrollment) CanWithdraw() bool {
	switch e.Status.(type) {
	case Approved, InProgress:
		return true
	case Requested, Completed, Cancelled, Withdrawn:
		return false
	default:
		return false
	}
}

// CanCancel reports whether the enrollment can be dropped before it starts.
func (e Enrollment) CanCancel() bool {
	switch e.Status.(type) {
	case Requested, Approved:
		return true
	case InProgress, Completed, Cancelled, Withdrawn:
		return false
	default:
		return false
	}
}

// Grade returns the recorded grade of a completed enrollment.
func (e Enrollment) Grade() (ids.Grade, bool) {
	c, ok := e.Status.(Completed)
	if !ok {
		return "", false
	}
	return c.Grade, true
}

// HasGrade reports whether a grade is recorded.
func (e Enrollment) HasGrade() bool {
	_, ok := e.Grade()
	return ok
}

// IsActive reports whether the enrollment still counts toward the load.
func (e Enrollment) IsActive() bool {
	switch e.Status.(type) {
	case Requested, Approved, InProgress:
		return true
	case Completed, Cancelled, Withdrawn:
		return false
	default:
		return false
	}
}
