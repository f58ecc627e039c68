// Package bus delivers appended registration events to in-process
// subscribers such as read-model projections.
//
// Delivery is at-least-once to every handler registered when Publish is
// called. Handlers run concurrently and their failures are logged, not
// returned: a subscriber problem never undoes an event that is already in the
// store.
package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/coursereg/internal/platform/logging"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
)

// Handler consumes one published event.
type Handler func(ctx context.Context, evt event.Event) error

// Bus publishes events to subscribers.
type Bus interface {
	// Publish delivers evt. Only transport failures are returned.
	Publish(ctx context.Context, evt event.Event) error
	// Subscribe registers handler for every later Publish.
	Subscribe(handler Handler)
}

// Memory is an in-process bus.
type Memory struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *zap.Logger
}

// NewMemory creates an in-process bus. A nil logger discards handler errors.
func NewMemory(logger *zap.Logger) *Memory {
	return &Memory{logger: logging.OrNop(logger).Named("bus")}
}

// Subscribe registers handler. Nil handlers are ignored.
func (m *Memory) Subscribe(handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Publish fans evt out to a snapshot of the current handlers and waits for
// all of them. It always returns nil.
func (m *Memory) Publish(ctx context.Context, evt event.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.RUnlock()

	var g errgroup.Group
	for _, handler := range handlers {
		g.Go(func() error {
			if err := deliver(ctx, handler, evt.Clone()); err != nil {
				m.logger.Warn("event handler failed",
					zap.String("event_id", evt.ID),
					zap.String("event_type", string(evt.Type)),
					zap.String("aggregate_id", evt.AggregateID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// Len returns the number of registered handlers.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}

func deliver(ctx context.Context, handler Handler, evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, evt)
}
