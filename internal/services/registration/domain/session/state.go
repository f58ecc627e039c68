package session

import (
	"fmt"
	"time"

	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
)

const (
	// MaxUnitsPerTerm caps the units a session may hold.
	MaxUnitsPerTerm = 20
	// MinUnitsPerTerm is the load required before a session can be submitted.
	MinUnitsPerTerm = 12
)

// EnrollmentEntry is one course held by a session.
type EnrollmentEntry struct {
	EnrollmentID ids.EnrollmentID
	CourseID     ids.CourseID
	Units        int
}

// State is the replayed registration session.
type State struct {
	ID          ids.SessionID
	StudentID   ids.StudentID
	Term        ids.Term
	Enrollments []EnrollmentEntry
	Status      Status
	TotalUnits  int
	// Version counts applied events, starting at 1 for the creation event.
	Version int64
	// StreamVersion is the version of the last event read from the stream,
	// including skipped unknown events. New events are appended after it.
	StreamVersion int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Exists reports whether a creation event has been applied.
func (s State) Exists() bool {
	return s.ID != ""
}

// NextVersion is the stream version the next appended event must carry.
func (s State) NextVersion() int64 {
	return s.StreamVersion + 1
}

// HasCourse reports whether the session already holds courseID.
func (s State) HasCourse(courseID ids.CourseID) bool {
	for _, e := range s.Enrollments {
		if e.CourseID == courseID {
			return true
		}
	}
	return false
}

// FindDuplicateCourses returns every requested course id already held by the
// session or repeated within the request, once each, in request order.
func (s State) FindDuplicateCourses(courses []event.CourseInfo) []ids.CourseID {
	seen := make(map[ids.CourseID]bool, len(courses))
	reported := make(map[ids.CourseID]bool)
	var dups []ids.CourseID
	for _, c := range courses {
		if (s.HasCourse(c.CourseID) || seen[c.CourseID]) && !reported[c.CourseID] {
			dups = append(dups, c.CourseID)
			reported[c.CourseID] = true
		}
		seen[c.CourseID] = true
	}
	return dups
}

// CanModifyCourses reports whether enrollments may change.
func (s State) CanModifyCourses() bool {
	switch s.Status.(type) {
	case Draft:
		return true
	case Submitted, Approved, Rejected:
		return false
	default:
		return false
	}
}

// CanSubmit reports whether the session holds a full load and is still a draft.
func (s State) CanSubmit() bool {
	return s.CanModifyCourses() && len(s.Enrollments) > 0 && s.TotalUnits >= MinUnitsPerTerm
}

// CanApproveOrReject reports whether an advisor decision is pending.
func (s State) CanApproveOrReject() bool {
	switch s.Status.(type) {
	case Submitted:
		return true
	case Draft, Approved, Rejected:
		return false
	default:
		return false
	}
}

// CheckInvariants verifies the aggregate rules that must hold after every
// fold and every decision.
func (s State) CheckInvariants() error {
	sum := 0
	courses := make(map[ids.CourseID]bool, len(s.Enrollments))
	for _, e := range s.Enrollments {
		if e.Units <= 0 {
			return fmt.Errorf("course %s has non-positive units %d", e.CourseID, e.Units)
		}
		if courses[e.CourseID] {
			return fmt.Errorf("course %s enrolled twice", e.CourseID)
		}
		courses[e.CourseID] = true
		sum += e.Units
	}
	if sum != s.TotalUnits {
		return fmt.Errorf("total units %d does not match enrollments %d", s.TotalUnits, sum)
	}
	if s.TotalUnits > MaxUnitsPerTerm {
		return fmt.Errorf("total units %d exceed %d", s.TotalUnits, MaxUnitsPerTerm)
	}
	return nil
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	if s.Enrollments != nil {
		s.Enrollments = append([]EnrollmentEntry(nil), s.Enrollments...)
	}
	return s
}
