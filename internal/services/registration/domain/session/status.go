package session

import "time"

// StatusTag names a status variant.
type StatusTag string

const (
	StatusTagDraft     StatusTag = "Draft"
	StatusTagSubmitted StatusTag = "Submitted"
	StatusTagApproved  StatusTag = "Approved"
	StatusTagRejected  StatusTag = "Rejected"
)

// Status is the closed set of session states. Only the variants in this
// package implement it.
type Status interface {
	Tag() StatusTag
	isStatus()
}

// Draft is the only state in which courses may change.
type Draft struct {
	CreatedAt time.Time
}

// Submitted waits for an advisor decision.
type Submitted struct {
	SubmittedAt time.Time
}

// Approved is terminal.
type Approved struct {
	ApprovedAt time.Time
	ApprovedBy string
}

// Rejected is terminal.
type Rejected struct {
	RejectedAt time.Time
	RejectedBy string
	Reason     string
}

func (Draft) Tag() StatusTag     { return StatusTagDraft }
func (Submitted) Tag() StatusTag { return StatusTagSubmitted }
func (Approved) Tag() StatusTag  { return StatusTagApproved }
func (Rejected) Tag() StatusTag  { return StatusTagRejected }

func (Draft) isStatus()     {}
func (Submitted) isStatus() {}
func (Approved) isStatus()  {}
func (Rejected) isStatus()  {}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(s Status) bool {
	switch s.(type) {
	case Approved, Rejected:
		return true
	case Draft, Submitted:
		return false
	default:
		return false
	}
}

// TagOf returns the tag of s, or "" for a nil status.
func TagOf(s Status) StatusTag {
	if s == nil {
		return ""
	}
	return s.Tag()
}
