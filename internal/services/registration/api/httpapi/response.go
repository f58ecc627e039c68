package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/louisbranch/coursereg/internal/platform/errors"
	"github.com/louisbranch/coursereg/internal/platform/errors/i18n"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/enrollment"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/session"
	"github.com/louisbranch/coursereg/internal/services/registration/engine"
)

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// respondError maps err to its status and a localized body.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	status := appErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError || appErr.Code.IsInfrastructure() {
		_ = c.Error(err)
	}
	locale := i18n.Match(c.GetHeader("Accept-Language"))
	c.Header("Content-Language", locale)
	c.AbortWithStatusJSON(status, ErrorBody{
		Code:      string(appErr.Code),
		Message:   appErr.LocalizedMessage(locale),
		Retryable: appErr.Retryable() && !engine.IsNonRetryable(err),
	})
}

type sessionIDResponse struct {
	SessionID string `json:"session_id"`
}

type sessionEnrollment struct {
	EnrollmentID string `json:"enrollment_id"`
	CourseID     string `json:"course_id"`
	Units        int    `json:"units"`
}

type sessionResponse struct {
	SessionID   string              `json:"session_id"`
	StudentID   string              `json:"student_id"`
	Term        string              `json:"term"`
	Status      string              `json:"status"`
	TotalUnits  int                 `json:"total_units"`
	Enrollments []sessionEnrollment `json:"enrollments"`
	Version     int64               `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func newSessionResponse(state session.State) sessionResponse {
	entries := make([]sessionEnrollment, 0, len(state.Enrollments))
	for _, e := range state.Enrollments {
		entries = append(entries, sessionEnrollment{
			EnrollmentID: string(e.EnrollmentID),
			CourseID:     string(e.CourseID),
			Units:        e.Units,
		})
	}
	return sessionResponse{
		SessionID:   string(state.ID),
		StudentID:   string(state.StudentID),
		Term:        string(state.Term),
		Status:      string(session.TagOf(state.Status)),
		TotalUnits:  state.TotalUnits,
		Enrollments: entries,
		Version:     state.Version,
		CreatedAt:   state.CreatedAt,
		UpdatedAt:   state.UpdatedAt,
	}
}

type enrollmentResponse struct {
	EnrollmentID string `json:"enrollment_id"`
	SessionID    string `json:"session_id"`
	StudentID    string `json:"student_id"`
	CourseID     string `json:"course_id"`
	Term         string `json:"term"`
	Units        int    `json:"units"`
	Status       string `json:"status"`
	Grade        string `json:"grade,omitempty"`
}

func newEnrollmentResponse(e enrollment.Enrollment) enrollmentResponse {
	out := enrollmentResponse{
		EnrollmentID: string(e.ID),
		SessionID:    string(e.SessionID),
		StudentID:    string(e.StudentID),
		CourseID:     string(e.CourseID),
		Term:         string(e.Term),
		Units:        e.Units,
	}
	if e.Status != nil {
		out.Status = string(e.Status.Tag())
	}
	if grade, ok := e.Grade(); ok {
		out.Grade = string(grade)
	}
	return out
}
