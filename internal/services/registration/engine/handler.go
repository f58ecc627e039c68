package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/coursereg/internal/platform/logging"
	platformotel "github.com/louisbranch/coursereg/internal/platform/otel"
	"github.com/louisbranch/coursereg/internal/platform/telemetry/metrics"
	"github.com/louisbranch/coursereg/internal/services/registration/bus"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/command"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/session"
	"github.com/louisbranch/coursereg/internal/services/registration/storage"
)

// TracerName names the tracer used for command spans.
const TracerName = "coursereg/registration/engine"

// Metric label values for commands.
const (
	commandCreateSession = "create_session"
	commandAddCourses    = "add_courses"
)

// SessionLoader loads current session state.
type SessionLoader interface {
	FindByID(ctx context.Context, id ids.SessionID) (session.State, error)
}

// CreateSessionCommand opens a registration session.
type CreateSessionCommand struct {
	StudentID ids.StudentID `validate:"required"`
	Term      ids.Term      `validate:"required"`
}

// CourseInput is one course requested in AddCoursesCommand.
type CourseInput struct {
	CourseID ids.CourseID `validate:"required"`
	Units    int          `validate:"gt=0,lte=20"`
}

// AddCoursesCommand adds courses to a draft session.
type AddCoursesCommand struct {
	SessionID ids.SessionID `validate:"required"`
	Courses   []CourseInput `validate:"required,min=1,dive"`
}

// Handler executes registration commands.
//
// Sessions and Store are required. The remaining fields fall back to no-op
// or process defaults when nil.
type Handler struct {
	Sessions  SessionLoader
	Store     storage.EventStore
	Bus       bus.Bus
	Events    *event.Registry
	Validator *validator.Validate
	Now       func() time.Time
	Logger    *zap.Logger
	Metrics   *metrics.Recorder
	Tracer    trace.Tracer
}

// CreateSession opens the session for a student and term and returns its
// deterministic id.
func (h Handler) CreateSession(ctx context.Context, cmd CreateSessionCommand) (_ ids.SessionID, err error) {
	ctx, finish := h.begin(ctx, command.TypeCreateSession, commandCreateSession,
		attribute.String("student_id", string(cmd.StudentID)),
		attribute.String("term", string(cmd.Term)),
	)
	defer func() { finish(err) }()

	if err := h.ready(); err != nil {
		return "", err
	}
	if err := h.validate(cmd); err != nil {
		return "", err
	}
	sessionID, err := ids.NewSessionID(cmd.StudentID, cmd.Term)
	if err != nil {
		return "", err
	}

	// Only a missing session lets creation proceed.
	state, err := h.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		var missing *session.NotFoundError
		if !errors.As(err, &missing) {
			return "", err
		}
		state = session.State{}
	}

	decision := session.DecideCreate(state, session.CreateSession{StudentID: cmd.StudentID, Term: cmd.Term}, h.Now)
	if err := decision.Err(); err != nil {
		return "", err
	}
	if err := h.commit(ctx, decision.Events); err != nil {
		if storage.IsVersionConflict(err) {
			return "", &session.AlreadyExistsError{
				StudentID:         cmd.StudentID,
				Term:              cmd.Term,
				ExistingSessionID: sessionID,
			}
		}
		return "", err
	}
	return sessionID, nil
}

// AddCourses adds courses to a draft session. The session id is returned
// unchanged.
func (h Handler) AddCourses(ctx context.Context, cmd AddCoursesCommand) (_ ids.SessionID, err error) {
	ctx, finish := h.begin(ctx, command.TypeAddCourses, commandAddCourses,
		attribute.String("session_id", string(cmd.SessionID)),
		attribute.Int("course_count", len(cmd.Courses)),
	)
	defer func() { finish(err) }()

	if err := h.ready(); err != nil {
		return "", err
	}
	if err := h.validate(cmd); err != nil {
		return "", err
	}

	state, err := h.Sessions.FindByID(ctx, cmd.SessionID)
	if err != nil {
		return "", err
	}

	courses := make([]event.CourseInfo, 0, len(cmd.Courses))
	for _, c := range cmd.Courses {
		courses = append(courses, event.CourseInfo{CourseID: c.CourseID, Units: c.Units})
	}
	decision := session.DecideAddCourses(state, session.AddCourses{SessionID: cmd.SessionID, Courses: courses}, h.Now)
	if err := decision.Err(); err != nil {
		return "", err
	}
	if err := h.commit(ctx, decision.Events); err != nil {
		if storage.IsVersionConflict(err) {
			return "", &session.ConcurrencyConflictError{
				SessionID:       cmd.SessionID,
				ExpectedVersion: state.NextVersion(),
				Cause:           err,
			}
		}
		return "", err
	}
	return cmd.SessionID, nil
}

func (h Handler) ready() error {
	if h.Sessions == nil {
		return ErrSessionLoaderRequired
	}
	if h.Store == nil {
		return ErrEventStoreRequired
	}
	return nil
}

func (h Handler) validate(cmd any) error {
	v := h.Validator
	if v == nil {
		v = defaultValidator
	}
	err := v.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &session.InvalidCommandError{Reason: err.Error()}
	}
	reasons := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		reasons = append(reasons, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return &session.InvalidCommandError{Reason: strings.Join(reasons, "; ")}
}

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

// commit validates, appends and publishes events in order. Publishing is
// best effort: the events are already durable when it runs.
func (h Handler) commit(ctx context.Context, events []event.Event) error {
	registry := h.Events
	if registry == nil {
		registry = defaultRegistry
	}
	logger := logging.OrNop(h.Logger)
	for _, evt := range events {
		vetted, err := registry.ValidateForAppend(evt)
		if err != nil {
			return err
		}
		vetted.Timestamp = vetted.Timestamp.UTC().Truncate(time.Millisecond)
		if err := h.Store.AppendEvent(ctx, vetted.AggregateID, vetted.AggregateType, vetted); err != nil {
			return err
		}
		h.Metrics.EventAppended(string(vetted.Type))
		logger.Debug("event appended",
			zap.String("event_id", vetted.ID),
			zap.String("event_type", string(vetted.Type)),
			zap.String("aggregate_id", vetted.AggregateID),
			zap.Int64("version", vetted.Version),
		)
		if h.Bus == nil {
			continue
		}
		if err := h.Bus.Publish(ctx, vetted); err != nil {
			logger.Warn("event publish failed",
				zap.String("event_id", vetted.ID),
				zap.String("event_type", string(vetted.Type)),
				zap.Error(err),
			)
		}
	}
	return nil
}

var defaultRegistry = event.NewRegistrationRegistry()

// begin opens the command span and returns the function that closes it and
// records the outcome.
func (h Handler) begin(ctx context.Context, cmdType command.Type, label string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	tracer := h.Tracer
	if tracer == nil {
		tracer = platformotel.Tracer(TracerName)
	}
	ctx, span := tracer.Start(ctx, string(cmdType), trace.WithAttributes(attrs...))
	logger := logging.OrNop(h.Logger)
	return ctx, func(err error) {
		defer span.End()
		outcome := outcomeOf(err)
		h.Metrics.CommandHandled(label, outcome)
		span.SetAttributes(attribute.String("outcome", outcome))
		switch outcome {
		case metrics.OutcomeAccepted:
			span.SetStatus(codes.Ok, "")
			logger.Info("command accepted", zap.String("command", string(cmdType)))
		case metrics.OutcomeError:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("command failed", zap.String("command", string(cmdType)), zap.Error(err))
		default:
			span.SetStatus(codes.Error, outcome)
			logger.Info("command rejected", zap.String("command", string(cmdType)), zap.Error(err))
		}
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeAccepted
	}
	var conflict *session.ConcurrencyConflictError
	if errors.As(err, &conflict) {
		return metrics.OutcomeConflict
	}
	var storeErr *storage.Error
	var recon *session.ReconstructionError
	if errors.As(err, &storeErr) || errors.As(err, &recon) || errors.Is(err, ErrEventStoreRequired) || errors.Is(err, ErrSessionLoaderRequired) {
		return metrics.OutcomeError
	}
	return metrics.OutcomeRejected
}
