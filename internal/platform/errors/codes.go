// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Command input errors
	CodeCommandInvalid Code = "COMMAND_INVALID"

	// Identifier errors
	CodeStudentIDInvalid    Code = "STUDENT_ID_INVALID"
	CodeCourseIDInvalid     Code = "COURSE_ID_INVALID"
	CodeTermInvalid         Code = "TERM_INVALID"
	CodeSessionIDInvalid    Code = "SESSION_ID_INVALID"
	CodeEnrollmentIDInvalid Code = "ENROLLMENT_ID_INVALID"
	CodeGradeInvalid        Code = "GRADE_INVALID"

	// Registration session errors
	CodeSessionAlreadyExists       Code = "SESSION_ALREADY_EXISTS"
	CodeSessionNotFound            Code = "SESSION_NOT_FOUND"
	CodeSessionInvalidState        Code = "SESSION_INVALID_STATE"
	CodeSessionDuplicateCourse     Code = "SESSION_DUPLICATE_COURSE"
	CodeSessionMaxUnitsExceeded    Code = "SESSION_MAX_UNITS_EXCEEDED"
	CodeSessionConcurrencyConflict Code = "SESSION_CONCURRENCY_CONFLICT"

	// Infrastructure errors
	CodeReconstructionFailed Code = "RECONSTRUCTION_FAILED"
	CodeEventStoreFailure    Code = "EVENT_STORE_FAILURE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// BadRequest - malformed identifiers and command input
	case CodeCommandInvalid,
		CodeStudentIDInvalid,
		CodeCourseIDInvalid,
		CodeTermInvalid,
		CodeSessionIDInvalid,
		CodeEnrollmentIDInvalid,
		CodeGradeInvalid:
		return http.StatusBadRequest

	// NotFound - aggregate has no events
	case CodeSessionNotFound:
		return http.StatusNotFound

	// Conflict - state or uniqueness rules
	case CodeSessionAlreadyExists,
		CodeSessionInvalidState,
		CodeSessionDuplicateCourse,
		CodeSessionConcurrencyConflict:
		return http.StatusConflict

	// UnprocessableEntity - business limit breached
	case CodeSessionMaxUnitsExceeded:
		return http.StatusUnprocessableEntity

	case CodeEventStoreFailure:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether repeating the same request may succeed without
// any change from the caller.
//
// Business rule violations are never retryable. Store faults and lost
// optimistic-concurrency races are. A corrupted event stream is not: replaying
// it again yields the same failure.
func (c Code) Retryable() bool {
	switch c {
	case CodeEventStoreFailure, CodeSessionConcurrencyConflict:
		return true
	default:
		return false
	}
}

// IsInfrastructure reports whether the code describes a data or storage
// problem rather than a business-rule outcome.
func (c Code) IsInfrastructure() bool {
	switch c {
	case CodeEventStoreFailure, CodeReconstructionFailed, CodeUnknown:
		return true
	default:
		return false
	}
}
