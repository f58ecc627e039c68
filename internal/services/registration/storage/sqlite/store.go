// Package sqlite provides a SQLite-backed event store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/louisbranch/coursereg/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/storage"
	"github.com/louisbranch/coursereg/internal/services/registration/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store is a SQLite event journal.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the SQLite database at path and applies the embedded schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer connection keeps the read-check-insert of an append atomic.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.EventsFS, migrations.EventsRoot); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// NewWithDB wraps an already migrated database handle.
func NewWithDB(sqlDB *sql.DB) *Store {
	return &Store{sqlDB: sqlDB}
}

// Close closes the underlying database. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
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
	if s == nil || s.sqlDB == nil {
		return wrap(errors.New("storage is not configured"))
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return wrap(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_type = ? AND aggregate_id = ?`,
		string(aggregateType), aggregateID,
	).Scan(&current); err != nil {
		return wrap(fmt.Errorf("load stream version: %w", err))
	}

	prepared, err := storage.PrepareAppend(aggregateID, aggregateType, evt, current)
	if err != nil {
		return wrap(err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (event_id, aggregate_type, aggregate_id, version, event_type, occurred_at, payload_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		prepared.ID,
		string(prepared.AggregateType),
		prepared.AggregateID,
		prepared.Version,
		string(prepared.Type),
		toMillis(prepared.Timestamp),
		[]byte(prepared.PayloadJSON),
	); err != nil {
		if isConstraintError(err) {
			return wrap(storage.VersionConflict(prepared.Version, current))
		}
		return wrap(fmt.Errorf("append event: %w", err))
	}

	if err := tx.Commit(); err != nil {
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
	if s == nil || s.sqlDB == nil {
		return nil, wrap(errors.New("storage is not configured"))
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT event_id, aggregate_type, aggregate_id, version, event_type, occurred_at, payload_json
		 FROM events WHERE aggregate_type = ? AND aggregate_id = ? ORDER BY version`,
		string(aggregateType), aggregateID,
	)
	if err != nil {
		return nil, wrap(fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()

	events := make([]event.Event, 0)
	for rows.Next() {
		var (
			evt        event.Event
			aggType    string
			eventType  string
			occurredAt int64
			payload    []byte
		)
		if err := rows.Scan(&evt.ID, &aggType, &evt.AggregateID, &evt.Version, &eventType, &occurredAt, &payload); err != nil {
			return nil, wrap(fmt.Errorf("scan event: %w", err))
		}
		evt.AggregateType = event.AggregateType(aggType)
		evt.Type = event.Type(eventType)
		evt.Timestamp = fromMillis(occurredAt)
		evt.PayloadJSON = append([]byte(nil), payload...)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(fmt.Errorf("read events: %w", err))
	}
	return events, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
