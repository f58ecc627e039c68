// Package postgres provides a PostgreSQL-backed event store using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/louisbranch/coursereg/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/storage"
	"github.com/louisbranch/coursereg/internal/services/registration/storage/sqlite/migrations"
)

const uniqueViolation = "23505"

// Store is a PostgreSQL event journal.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and applies the embedded schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the pool. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	files, err := sqlitemigrate.Load(migrations.EventsFS, migrations.EventsRoot)
	if err != nil {
		return err
	}
	for _, m := range files {
		// BLOB is the SQLite spelling; the column holds raw bytes either way.
		up := strings.ReplaceAll(m.Up, "BLOB", "BYTEA")
		if strings.TrimSpace(up) == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, up); err != nil && !sqlitemigrate.IsAlreadyExistsError(err) {
			return fmt.Errorf("exec migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// AppendEvent appends evt inside a transaction.
func (s *Store) AppendEvent(ctx context.Context, aggregateID string, aggregateType event.AggregateType, evt event.Event) error {
	aggregateID = storage.StreamID(aggregateID)
	wrap := func(err error) error {
		return storage.Wrap(storage.OpAppend, aggregateType, aggregateID, err)
	}
	if err := storage.CheckContext(ctx); err != nil {
		return wrap(err)
	}
	if s == nil || s.pool == nil {
		return wrap(errors.New("storage is not configured"))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrap(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	var current int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_type = $1 AND aggregate_id = $2`,
		string(aggregateType), aggregateID,
	).Scan(&current); err != nil {
		return wrap(fmt.Errorf("load stream version: %w", err))
	}

	prepared, err := storage.PrepareAppend(aggregateID, aggregateType, evt, current)
	if err != nil {
		return wrap(err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO events (event_id, aggregate_type, aggregate_id, version, event_type, occurred_at, payload_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		prepared.ID,
		string(prepared.AggregateType),
		prepared.AggregateID,
		prepared.Version,
		string(prepared.Type),
		prepared.Timestamp.UnixMilli(),
		[]byte(prepared.PayloadJSON),
	); err != nil {
		if isUniqueViolation(err) {
			return wrap(storage.VersionConflict(prepared.Version, current))
		}
		return wrap(fmt.Errorf("append event: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return wrap(storage.VersionConflict(prepared.Version, current))
		}
		return wrap(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// ListEvents returns the stream ordered by version.
func (s *Store) ListEvents(ctx context.Context, aggregateID string, aggregateType event.AggregateType) ([]event.Event, error) {
	aggregateID = storage.StreamID(aggregateID)
	wrap := func(err error) error {
		return storage.Wrap(storage.OpList, aggregateType, aggregateID, err)
	}
	if err := storage.CheckContext(ctx); err != nil {
		return nil, wrap(err)
	}
	if s == nil || s.pool == nil {
		return nil, wrap(errors.New("storage is not configured"))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT event_id, aggregate_type, aggregate_id, version, event_type, occurred_at, payload_json
		 FROM events WHERE aggregate_type = $1 AND aggregate_id = $2 ORDER BY version`,
		string(aggregateType), aggregateID,
	)
	if err != nil {
		return nil, wrap(fmt.Errorf("query events: %w", err))
	}
	events, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, wrap(fmt.Errorf("read events: %w", err))
	}
	if events == nil {
		events = []event.Event{}
	}
	return events, nil
}

func scanEvent(row pgx.CollectableRow) (event.Event, error) {
	var (
		evt        event.Event
		aggType    string
		eventType  string
		occurredAt int64
		payload    []byte
	)
	if err := row.Scan(&evt.ID, &aggType, &evt.AggregateID, &evt.Version, &eventType, &occurredAt, &payload); err != nil {
		return event.Event{}, err
	}
	evt.AggregateType = event.AggregateType(aggType)
	evt.Type = event.Type(eventType)
	evt.Timestamp = time.UnixMilli(occurredAt).UTC()
	evt.PayloadJSON = append([]byte(nil), payload...)
	return evt, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
