package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/coursereg/internal/platform/errors"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
)

func TestWrap(t *testing.T) {
	if Wrap(OpList, event.AggregateTypeEnrollment, "x", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	cause := errors.New("disk full")
	err := Wrap(OpAppend, event.AggregateTypeRegistrationSession, "S1", cause)
	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %T, want *Error", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if Wrap(OpList, "", "", err) != err {
		t.Fatal("expected existing *Error to pass through")
	}
	if apperrors.CodeOf(err) != apperrors.CodeEventStoreFailure {
		t.Fatalf("code = %s", apperrors.CodeOf(err))
	}
	if !apperrors.CodeOf(err).Retryable() {
		t.Fatal("expected store faults to be retryable")
	}
}

func TestPrepareAppendAssignsVersion(t *testing.T) {
	evt, err := PrepareAppend(" S1 ", event.AggregateTypeRegistrationSession, event.Event{
		Type:      event.TypeSessionCreated,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 1500000, time.FixedZone("x", 3600)),
	}, 4)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if evt.Version != 5 {
		t.Fatalf("version = %d, want 5", evt.Version)
	}
	if evt.AggregateID != "S1" || evt.AggregateType != event.AggregateTypeRegistrationSession {
		t.Fatalf("addressing = %s/%s", evt.AggregateType, evt.AggregateID)
	}
	if evt.ID == "" || string(evt.PayloadJSON) != "{}" {
		t.Fatalf("defaults not filled: %+v", evt)
	}
	if evt.Timestamp.Location() != time.UTC || evt.Timestamp.Nanosecond() != 1000000 {
		t.Fatalf("timestamp = %v", evt.Timestamp)
	}
}

func TestPrepareAppendRejectsStaleVersion(t *testing.T) {
	_, err := PrepareAppend("S1", event.AggregateTypeRegistrationSession, event.Event{Type: "x", Version: 2}, 2)
	if !IsVersionConflict(err) {
		t.Fatalf("err = %v, want version conflict", err)
	}
	if _, err := PrepareAppend("S1", event.AggregateTypeRegistrationSession, event.Event{Type: "x", Version: 3}, 2); err != nil {
		t.Fatalf("prepare next version: %v", err)
	}
}

func TestPrepareAppendRequiresAddressing(t *testing.T) {
	if _, err := PrepareAppend("", event.AggregateTypeEnrollment, event.Event{Type: "x"}, 0); !errors.Is(err, event.ErrAggregateIDRequired) {
		t.Fatalf("err = %v, want %v", err, event.ErrAggregateIDRequired)
	}
	if _, err := PrepareAppend("S1", "", event.Event{Type: "x"}, 0); err == nil {
		t.Fatal("expected missing aggregate type error")
	}
	if _, err := PrepareAppend("S1", event.AggregateTypeEnrollment, event.Event{}, 0); !errors.Is(err, event.ErrTypeRequired) {
		t.Fatalf("err = %v, want %v", err, event.ErrTypeRequired)
	}
}

func TestCheckContext(t *testing.T) {
	if CheckContext(nil) != nil {
		t.Fatal("expected nil context to pass")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !errors.Is(CheckContext(ctx), context.Canceled) {
		t.Fatal("expected cancelled context error")
	}
}
