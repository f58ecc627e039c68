package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = errors.New("event type is required")
	// ErrTypeUnknown indicates an unregistered event type.
	ErrTypeUnknown = errors.New("event type is not registered")
	// ErrAggregateIDRequired indicates a missing aggregate id.
	ErrAggregateIDRequired = errors.New("aggregate id is required")
	// ErrAggregateTypeMismatch indicates an event addressed to the wrong stream kind.
	ErrAggregateTypeMismatch = errors.New("aggregate type does not match event definition")
	// ErrVersionInvalid indicates a version below 1.
	ErrVersionInvalid = errors.New("event version must be at least 1")
	// ErrTimestampRequired indicates a zero timestamp.
	ErrTimestampRequired = errors.New("event timestamp is required")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
)

// Definition describes one registered event type.
type Definition struct {
	Type          Type
	AggregateType AggregateType
	// ValidatePayload checks type-specific payload shape. Optional.
	ValidatePayload func(json.RawMessage) error
}

// Registry holds the known event types.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a definition. Types may be registered once.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if strings.TrimSpace(string(def.AggregateType)) == "" {
		return fmt.Errorf("event %s: aggregate type is required", def.Type)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("event %s already registered", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// Definition returns the definition for t.
func (r *Registry) Definition(t Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.definitions[t]
	return def, ok
}

// Types returns the registered types in lexical order.
func (r *Registry) Types() []Type {
	if r == nil {
		return nil
	}
	out := make([]Type, 0, len(r.definitions))
	for t := range r.definitions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateForAppend checks the envelope and fills the event id when empty.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	if r == nil {
		return Event{}, errors.New("registry is required")
	}
	evt.Type = Type(strings.TrimSpace(string(evt.Type)))
	if evt.Type == "" {
		return Event{}, ErrTypeRequired
	}
	def, ok := r.definitions[evt.Type]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrTypeUnknown, evt.Type)
	}
	evt.AggregateID = strings.TrimSpace(evt.AggregateID)
	if evt.AggregateID == "" {
		return Event{}, ErrAggregateIDRequired
	}
	if evt.AggregateType == "" {
		evt.AggregateType = def.AggregateType
	}
	if evt.AggregateType != def.AggregateType {
		return Event{}, fmt.Errorf("%w: %s is %s, got %s", ErrAggregateTypeMismatch, evt.Type, def.AggregateType, evt.AggregateType)
	}
	if evt.Version < 1 {
		return Event{}, ErrVersionInvalid
	}
	if evt.Timestamp.IsZero() {
		return Event{}, ErrTimestampRequired
	}
	if len(evt.PayloadJSON) == 0 || !json.Valid(evt.PayloadJSON) {
		return Event{}, ErrPayloadInvalid
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(evt.PayloadJSON); err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, evt.Type, err)
		}
	}
	if strings.TrimSpace(evt.ID) == "" {
		evt.ID = uuid.NewString()
	}
	evt.Timestamp = evt.Timestamp.UTC()
	return evt, nil
}

// NewRegistrationRegistry returns a registry with the registration session
// event types.
func NewRegistrationRegistry() *Registry {
	r := NewRegistry()
	defs := []Definition{
		{
			Type:          TypeSessionCreated,
			AggregateType: AggregateTypeRegistrationSession,
			ValidatePayload: func(raw json.RawMessage) error {
				var p SessionCreatedPayload
				if err := json.Unmarshal(raw, &p); err != nil {
					return err
				}
				if p.SessionID == "" || p.StudentID == "" || p.Term == "" {
					return errors.New("session_id, student_id and term are required")
				}
				return nil
			},
		},
		{
			Type:          TypeCoursesAdded,
			AggregateType: AggregateTypeRegistrationSession,
			ValidatePayload: func(raw json.RawMessage) error {
				var p CoursesAddedPayload
				if err := json.Unmarshal(raw, &p); err != nil {
					return err
				}
				if len(p.AddedCourses) == 0 {
					return errors.New("added_courses must not be empty")
				}
				if len(p.EnrollmentRequests) != len(p.AddedCourses) {
					return errors.New("enrollment_requests must match added_courses")
				}
				return nil
			},
		},
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}
