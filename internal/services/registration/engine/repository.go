package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/louisbranch/coursereg/internal/platform/logging"
	"github.com/louisbranch/coursereg/internal/platform/telemetry/metrics"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/ids"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/session"
	"github.com/louisbranch/coursereg/internal/services/registration/storage"
)

// Repository reconstructs registration sessions by replaying their streams.
// It is the only read path to session state.
type Repository struct {
	Store   storage.EventStore
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// FindByID replays the session stream.
//
// An empty stream is a NotFoundError. A stream that cannot be folded is a
// ReconstructionError. Store faults are returned as *storage.Error.
func (r Repository) FindByID(ctx context.Context, id ids.SessionID) (session.State, error) {
	if r.Store == nil {
		return session.State{}, ErrEventStoreRequired
	}
	events, err := r.Store.ListEvents(ctx, string(id), event.AggregateTypeRegistrationSession)
	if err != nil {
		return session.State{}, err
	}
	if len(events) == 0 {
		return session.State{}, &session.NotFoundError{SessionID: id}
	}

	logger := logging.OrNop(r.Logger)
	state, err := session.Replay(events, func(evt event.Event) {
		logger.Warn("skipping unknown event during replay",
			zap.String("session_id", string(id)),
			zap.String("event_type", string(evt.Type)),
			zap.Int64("version", evt.Version),
		)
	})
	if err != nil {
		var recon *session.ReconstructionError
		if errors.As(err, &recon) && recon.SessionID == "" {
			recon.SessionID = id
		}
		logger.Error("session reconstruction failed",
			zap.String("session_id", string(id)),
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
		r.Metrics.ReconstructionFailed()
		return session.State{}, err
	}
	return state, nil
}

// FindByStudentAndTerm derives the session id and replays it. A pair that
// cannot form a session id can never have a session, so it reports
// NotFoundError.
func (r Repository) FindByStudentAndTerm(ctx context.Context, student ids.StudentID, term ids.Term) (session.State, error) {
	id, err := ids.NewSessionID(student, term)
	if err != nil {
		return session.State{}, &session.NotFoundError{StudentID: student, Term: term}
	}
	state, err := r.FindByID(ctx, id)
	if err != nil {
		var missing *session.NotFoundError
		if errors.As(err, &missing) {
			missing.StudentID = student
			missing.Term = term
		}
		return session.State{}, err
	}
	return state, nil
}
