// Package projection maintains read models built from published registration
// events.
package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/louisbranch/coursereg/internal/services/registration/domain/enrollment"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
)

// Enrollments materialises one Requested enrollment per course added to a
// session. Applying the same event twice is a no-op, so at-least-once
// delivery is safe.
type Enrollments struct {
	mu        sync.RWMutex
	byID      map[ids.EnrollmentID]enrollment.Enrollment
	bySession map[ids.SessionID][]ids.EnrollmentID
}

// NewEnrollments creates an empty read model.
func NewEnrollments() *Enrollments {
	return &Enrollments{
		byID:      make(map[ids.EnrollmentID]enrollment.Enrollment),
		bySession: make(map[ids.SessionID][]ids.EnrollmentID),
	}
}

// Handle applies evt. Events other than CoursesAdded are ignored.
func (p *Enrollments) Handle(_ context.Context, evt event.Event) error {
	if evt.Type != event.TypeCoursesAdded {
		return nil
	}
	var payload event.CoursesAddedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = ids.SessionID(evt.AggregateID)
	}
	at := payload.AddedAt
	if at.IsZero() {
		at = evt.Timestamp
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, req := range payload.EnrollmentRequests {
		if _, ok := p.byID[req.EnrollmentID]; ok {
			continue
		}
		p.byID[req.EnrollmentID] = enrollment.NewRequested(sessionID, req.EnrollmentID, req.Units, at)
		p.bySession[sessionID] = append(p.bySession[sessionID], req.EnrollmentID)
	}
	return nil
}

// ListBySession returns the session's enrollments in the order they were
// requested.
func (p *Enrollments) ListBySession(sessionID ids.SessionID) []enrollment.Enrollment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := p.bySession[sessionID]
	out := make([]enrollment.Enrollment, 0, len(keys))
	for _, id := range keys {
		out = append(out, p.byID[id])
	}
	return out
}

// ListByStudentAndTerm returns every enrollment of a student in a term,
// sorted by course id.
func (p *Enrollments) ListByStudentAndTerm(student ids.StudentID, term ids.Term) []enrollment.Enrollment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []enrollment.Enrollment
	for _, e := range p.byID {
		if e.StudentID == student && e.Term == term {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out
}
