// Package command defines the outcome of deciding a command against state.
package command

import "github.com/louisbranch/coursereg/internal/services/registration/domain/event"

// Type identifies a command kind.
type Type string

const (
	// TypeCreateSession opens a registration session for a student and term.
	TypeCreateSession Type = "registration_session.create"
	// TypeAddCourses adds courses to a draft session.
	TypeAddCourses Type = "registration_session.add_courses"
)

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Message string
	// Err is the typed domain error behind the rejection.
	Err error
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// RejectErr returns a decision rejected by a single typed error.
func RejectErr(code string, err error) Decision {
	return Reject(Rejection{Code: code, Message: err.Error(), Err: err})
}

// Rejected reports whether the decision carries any rejection.
func (d Decision) Rejected() bool {
	return len(d.Rejections) > 0
}

// Err returns the first rejection as an error, or nil when accepted.
func (d Decision) Err() error {
	if len(d.Rejections) == 0 {
		return nil
	}
	first := d.Rejections[0]
	if first.Err != nil {
		return first.Err
	}
	return rejectionError(first)
}

type rejectionError Rejection

func (e rejectionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}
