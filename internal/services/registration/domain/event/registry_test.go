package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func validCreated(t *testing.T) Event {
	t.Helper()
	payload, err := json.Marshal(SessionCreatedPayload{
		SessionID: "S12345678:2024-Spring",
		StudentID: "S12345678",
		Term:      "2024-Spring",
		CreatedAt: time.Unix(0, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Event{
		AggregateID: "S12345678:2024-Spring",
		Version:     1,
		Type:        TypeSessionCreated,
		Timestamp:   time.Unix(0, 0),
		PayloadJSON: payload,
	}
}

func TestRegistryValidateForAppend_FillsDefaults(t *testing.T) {
	registry := NewRegistrationRegistry()
	got, err := registry.ValidateForAppend(validCreated(t))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ID == "" {
		t.Fatal("expected generated event id")
	}
	if got.AggregateType != AggregateTypeRegistrationSession {
		t.Fatalf("aggregate type = %s, want %s", got.AggregateType, AggregateTypeRegistrationSession)
	}
	if got.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp location = %v, want UTC", got.Timestamp.Location())
	}
}

func TestRegistryValidateForAppend_Rejections(t *testing.T) {
	registry := NewRegistrationRegistry()
	tests := []struct {
		name   string
		mutate func(*Event)
		want   error
	}{
		{name: "missing type", mutate: func(e *Event) { e.Type = " " }, want: ErrTypeRequired},
		{name: "unknown type", mutate: func(e *Event) { e.Type = "registration_session.submitted" }, want: ErrTypeUnknown},
		{name: "missing aggregate id", mutate: func(e *Event) { e.AggregateID = "" }, want: ErrAggregateIDRequired},
		{name: "wrong aggregate type", mutate: func(e *Event) { e.AggregateType = AggregateTypeEnrollment }, want: ErrAggregateTypeMismatch},
		{name: "zero version", mutate: func(e *Event) { e.Version = 0 }, want: ErrVersionInvalid},
		{name: "zero timestamp", mutate: func(e *Event) { e.Timestamp = time.Time{} }, want: ErrTimestampRequired},
		{name: "invalid json", mutate: func(e *Event) { e.PayloadJSON = []byte("{") }, want: ErrPayloadInvalid},
		{name: "missing payload fields", mutate: func(e *Event) { e.PayloadJSON = []byte(`{"session_id":"x"}`) }, want: ErrPayloadInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evt := validCreated(t)
			tc.mutate(&evt)
			_, err := registry.ValidateForAppend(evt)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRegistryValidateForAppend_CoursesAddedShape(t *testing.T) {
	registry := NewRegistrationRegistry()
	evt := Event{
		AggregateID: "S12345678:2024-Spring",
		Version:     2,
		Type:        TypeCoursesAdded,
		Timestamp:   time.Unix(1, 0),
		PayloadJSON: []byte(`{"session_id":"S12345678:2024-Spring","added_courses":[{"course_id":"C100000","units":3}],"enrollment_requests":[]}`),
	}
	if _, err := registry.ValidateForAppend(evt); !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("err = %v, want %v", err, ErrPayloadInvalid)
	}
}

func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	def := Definition{Type: "x.happened", AggregateType: AggregateTypeEnrollment}
	if err := registry.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(def); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := registry.Register(Definition{Type: "y.happened"}); err == nil {
		t.Fatal("expected missing aggregate type error")
	}
	if got := registry.Types(); len(got) != 1 || got[0] != "x.happened" {
		t.Fatalf("types = %v", got)
	}
}

func TestEventCloneCopiesPayload(t *testing.T) {
	evt := Event{PayloadJSON: []byte(`{"a":1}`)}
	clone := evt.Clone()
	clone.PayloadJSON[2] = 'b'
	if string(evt.PayloadJSON) != `{"a":1}` {
		t.Fatalf("original payload mutated: %s", evt.PayloadJSON)
	}
}
