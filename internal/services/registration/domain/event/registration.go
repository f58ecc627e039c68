package event

import (
	"time"

	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
)

const (
	// TypeSessionCreated records the creation of a registration session.
	TypeSessionCreated Type = "registration_session.created"
	// TypeCoursesAdded records courses added to a draft session.
	TypeCoursesAdded Type = "registration_session.courses_added"
)

// SessionCreatedPayload is the payload of TypeSessionCreated.
type SessionCreatedPayload struct {
	SessionID ids.SessionID `json:"session_id"`
	StudentID ids.StudentID `json:"student_id"`
	Term      ids.Term      `json:"term"`
	CreatedAt time.Time     `json:"created_at"`
}

// CourseInfo is a course and its unit count as requested by a student.
type CourseInfo struct {
	CourseID ids.CourseID `json:"course_id"`
	Units    int          `json:"units"`
}

// EnrollmentRequest is the enrollment derived for one added course.
type EnrollmentRequest struct {
	EnrollmentID ids.EnrollmentID `json:"enrollment_id"`
	CourseID     ids.CourseID     `json:"course_id"`
	Units        int              `json:"units"`
}

// CoursesAddedPayload is the payload of TypeCoursesAdded.
type CoursesAddedPayload struct {
	SessionID          ids.SessionID       `json:"session_id"`
	AddedCourses       []CourseInfo        `json:"added_courses"`
	EnrollmentRequests []EnrollmentRequest `json:"enrollment_requests"`
	AddedAt            time.Time           `json:"added_at"`
}
