// Package redis provides a Redis-backed event store. Each stream is a list of
// JSON envelopes appended under WATCH so concurrent writers cannot interleave.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
	"github.com/louisbranch/coursereg/internal/services/registration/storage"
)

const (
	// DefaultPrefix namespaces stream keys.
	DefaultPrefix    = "coursereg:events"
	maxAppendRetries = 8
)

// Store is a Redis event journal.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	owned  bool
}

// Open connects to addr and verifies the connection.
func Open(ctx context.Context, addr, prefix string) (*Store, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	store := New(rdb, prefix)
	store.owned = true
	return store, nil
}

// New wraps an existing client. The caller keeps ownership of rdb.
func New(rdb goredis.UniversalClient, prefix string) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Close closes a client opened by Open. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.rdb == nil || !s.owned {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) key(aggregateID string, aggregateType event.AggregateType) string {
	return s.prefix + ":" + string(aggregateType) + ":" + aggregateID
}

// AppendEvent appends evt to the stream list.
func (s *Store) AppendEvent(ctx context.Context, aggregateID string, aggregateType event.AggregateType, evt event.Event) error {
	aggregateID = storage.StreamID(aggregateID)
	wrap := func(err error) error {
		return storage.Wrap(storage.OpAppend, aggregateType, aggregateID, err)
	}
	if err := storage.CheckContext(ctx); err != nil {
		return wrap(err)
	}
	if s == nil || s.rdb == nil {
		return wrap(errors.New("storage is not configured"))
	}

	key := s.key(aggregateID, aggregateType)
	var current int64
	txf := func(tx *goredis.Tx) error {
		n, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("load stream version: %w", err)
		}
		current = n
		prepared, err := storage.PrepareAppend(aggregateID, aggregateType, evt, n)
		if err != nil {
			return err
		}
		data, err := json.Marshal(prepared)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.RPush(ctx, key, data)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, goredis.TxFailedErr) {
			return wrap(err)
		}
		// A store-assigned version can simply be recomputed.
		if evt.Version != 0 {
			return wrap(storage.VersionConflict(evt.Version, current))
		}
	}
	return wrap(fmt.Errorf("append retries exhausted: %w", goredis.TxFailedErr))
}

// ListEvents returns the stream in append order.
func (s *Store) ListEvents(ctx context.Context, aggregateID string, aggregateType event.AggregateType) ([]event.Event, error) {
	aggregateID = storage.StreamID(aggregateID)
	wrap := func(err error) error {
		return storage.Wrap(storage.OpList, aggregateType, aggregateID, err)
	}
	if err := storage.CheckContext(ctx); err != nil {
		return nil, wrap(err)
	}
	if s == nil || s.rdb == nil {
		return nil, wrap(errors.New("storage is not configured"))
	}

	raw, err := s.rdb.LRange(ctx, s.key(aggregateID, aggregateType), 0, -1).Result()
	if err != nil {
		return nil, wrap(fmt.Errorf("read events: %w", err))
	}
	events := make([]event.Event, 0, len(raw))
	for i, item := range raw {
		var evt event.Event
		if err := json.Unmarshal([]byte(item), &evt); err != nil {
			return nil, wrap(fmt.Errorf("decode event %d: %w", i, err))
		}
		events = append(events, evt)
	}
	return events, nil
}
