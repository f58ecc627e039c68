package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/louisbranch/coursereg/internal/platform/logging"
	"github.com/louisbranch/coursereg/internal/services/registration/domain/event"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "coursereg:events"

// Redis publishes events on a Redis channel and forwards every received
// message to local subscribers. Local handlers only run for messages that come
// back through the channel, so one process sees its own events exactly like
// its peers do.
type Redis struct {
	rdb     goredis.UniversalClient
	channel string
	local   *Memory
	logger  *zap.Logger
	owned   bool
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, channel string, logger *zap.Logger) (*Redis, error) {
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
	b := NewRedis(rdb, channel, logger)
	b.owned = true
	return b, nil
}

// NewRedis wraps an existing client. The caller keeps ownership of rdb.
func NewRedis(rdb goredis.UniversalClient, channel string, logger *zap.Logger) *Redis {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	logger = logging.OrNop(logger).Named("bus.redis")
	return &Redis{
		rdb:     rdb,
		channel: channel,
		local:   NewMemory(logger),
		logger:  logger,
	}
}

// Subscribe registers a local handler.
func (b *Redis) Subscribe(handler Handler) {
	b.local.Subscribe(handler)
}

// Publish sends the event envelope as JSON.
func (b *Redis) Publish(ctx context.Context, evt event.Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Start subscribes to the channel and forwards messages until ctx ends. It
// returns once the subscription is confirmed.
func (b *Redis) Start(ctx context.Context) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var evt event.Event
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					b.logger.Warn("bad event payload on channel", zap.String("channel", b.channel), zap.Error(err))
					continue
				}
				_ = b.local.Publish(ctx, evt)
			}
		}
	}()
	return nil
}

// Close closes a client opened by OpenRedis. It is nil-safe.
func (b *Redis) Close() error {
	if b == nil || b.rdb == nil || !b.owned {
		return nil
	}
	return b.rdb.Close()
}
