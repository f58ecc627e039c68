package ids

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/louisbranch/coursereg/internal/platform/errors"
)

// Delimiter joins the components of composite identifiers.
const Delimiter = ":"

var (
	studentIDPattern    = regexp.MustCompile(`^S\d{8}$`)
	courseIDPattern     = regexp.MustCompile(`^C\d{6}$`)
	termPattern         = regexp.MustCompile(`^\d{4}-(Spring|Fall|Summer)$`)
	sessionIDPattern    = regexp.MustCompile(`^S\d{8}:\d{4}-(Spring|Fall|Summer)$`)
	enrollmentIDPattern = regexp.MustCompile(`^S\d{8}:C\d{6}:\d{4}-(Spring|Fall|Summer)$`)
)

// Kind names the identifier a validation error refers to.
type Kind string

const (
	KindStudentID    Kind = "student_id"
	KindCourseID     Kind = "course_id"
	KindTerm         Kind = "term"
	KindSessionID    Kind = "session_id"
	KindEnrollmentID Kind = "enrollment_id"
	KindGrade        Kind = "grade"
)

// ValidationError reports a raw value that does not decode into an identifier.
type ValidationError struct {
	Kind   Kind
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Value, e.Reason)
}

// Code maps the identifier kind to its error code.
func (e *ValidationError) Code() apperrors.Code {
	switch e.Kind {
	case KindStudentID:
		return apperrors.CodeStudentIDInvalid
	case KindCourseID:
		return apperrors.CodeCourseIDInvalid
	case KindTerm:
		return apperrors.CodeTermInvalid
	case KindSessionID:
		return apperrors.CodeSessionIDInvalid
	case KindEnrollmentID:
		return apperrors.CodeEnrollmentIDInvalid
	case KindGrade:
		return apperrors.CodeGradeInvalid
	default:
		return apperrors.CodeCommandInvalid
	}
}

// Metadata returns the template values for localized messages.
func (e *ValidationError) Metadata() map[string]string {
	return map[string]string{"value": e.Value, "reason": e.Reason}
}

// StudentID identifies a student, e.g. S12345678.
type StudentID string

// CourseID identifies a course offering, e.g. C100000.
type CourseID string

// Term identifies an academic term, e.g. 2024-Spring.
type Term string

func (s StudentID) String() string { return string(s) }
func (c CourseID) String() string  { return string(c) }
func (t Term) String() string      { return string(t) }

// ParseStudentID validates raw as a student id.
func ParseStudentID(raw string) (StudentID, error) {
	if err := match(KindStudentID, raw, studentIDPattern, "must be S followed by 8 digits"); err != nil {
		return "", err
	}
	return StudentID(raw), nil
}

// ParseCourseID validates raw as a course id.
func ParseCourseID(raw string) (CourseID, error) {
	if err := match(KindCourseID, raw, courseIDPattern, "must be C followed by 6 digits"); err != nil {
		return "", err
	}
	return CourseID(raw), nil
}

// ParseTerm validates raw as a term.
func ParseTerm(raw string) (Term, error) {
	if err := match(KindTerm, raw, termPattern, "must be YYYY-Spring, YYYY-Fall or YYYY-Summer"); err != nil {
		return "", err
	}
	return Term(raw), nil
}

func match(kind Kind, raw string, pattern *regexp.Regexp, reason string) error {
	if raw == "" {
		return &ValidationError{Kind: kind, Value: raw, Reason: "is required"}
	}
	if !pattern.MatchString(raw) {
		return &ValidationError{Kind: kind, Value: raw, Reason: reason}
	}
	return nil
}

// SessionID identifies a registration session as "student:term".
type SessionID string

func (s SessionID) String() string { return string(s) }

// InvalidSessionIDError reports a student and term pair that cannot form a
// well-formed session id.
type InvalidSessionIDError struct {
	StudentID StudentID
	Term      Term
	Reason    string
}

func (e *InvalidSessionIDError) Error() string {
	return fmt.Sprintf("invalid registration session id for student %q term %q: %s", e.StudentID, e.Term, e.Reason)
}

// Code returns the session id error code.
func (e *InvalidSessionIDError) Code() apperrors.Code { return apperrors.CodeSessionIDInvalid }

// Metadata returns the template values for localized messages.
func (e *InvalidSessionIDError) Metadata() map[string]string {
	return map[string]string{
		"student_id": string(e.StudentID),
		"term":       string(e.Term),
		"reason":     e.Reason,
	}
}

// NewSessionID derives the session id for a student and term.
//
// The composite is validated as a whole, so a delimiter smuggled into either
// component is rejected instead of producing an ambiguous key.
func NewSessionID(student StudentID, term Term) (SessionID, error) {
	if strings.Contains(string(student), Delimiter) || strings.Contains(string(term), Delimiter) {
		return "", &InvalidSessionIDError{StudentID: student, Term: term, Reason: "components must not contain " + Delimiter}
	}
	composite := string(student) + Delimiter + string(term)
	if !sessionIDPattern.MatchString(composite) {
		return "", &InvalidSessionIDError{StudentID: student, Term: term, Reason: "does not match student:term"}
	}
	return SessionID(composite), nil
}

// ParseSessionID validates raw as a session id.
func ParseSessionID(raw string) (SessionID, error) {
	if err := match(KindSessionID, raw, sessionIDPattern, "must be student:term"); err != nil {
		return "", err
	}
	return SessionID(raw), nil
}

// Parts splits the session id into its student and term.
func (s SessionID) Parts() (StudentID, Term) {
	student, term, _ := strings.Cut(string(s), Delimiter)
	return StudentID(student), Term(term)
}

// EnrollmentID identifies one course enrollment as "student:course:term".
type EnrollmentID string

func (e EnrollmentID) String() string { return string(e) }

// NewEnrollmentID derives the enrollment id for a student, course and term.
func NewEnrollmentID(student StudentID, course CourseID, term Term) (EnrollmentID, error) {
	composite := strings.Join([]string{string(student), string(course), string(term)}, Delimiter)
	if !enrollmentIDPattern.MatchString(composite) {
		return "", &ValidationError{Kind: KindEnrollmentID, Value: composite, Reason: "must be student:course:term"}
	}
	return EnrollmentID(composite), nil
}

// ParseEnrollmentID validates raw as an enrollment id.
func ParseEnrollmentID(raw string) (EnrollmentID, error) {
	if err := match(KindEnrollmentID, raw, enrollmentIDPattern, "must be student:course:term"); err != nil {
		return "", err
	}
	return EnrollmentID(raw), nil
}

// Parts splits the enrollment id into its components.
func (e EnrollmentID) Parts() (StudentID, CourseID, Term) {
	parts := strings.SplitN(string(e), Delimiter, 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return StudentID(parts[0]), CourseID(parts[1]), Term(parts[2])
}
