package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/orbitcrm/blueprint-engine/internal/pkg/logger"
)

// RedisBus publishes engine events over redis pub/sub. It satisfies Bus;
// Subscribe is for embedders that consume the stream in-process.
type RedisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisBus connects to REDIS_ADDR and publishes engine events on
// REDIS_CHANNEL (default "blueprint.events").
func NewRedisBus(log *logger.Logger) (*RedisBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "blueprint.events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		log:     log.With("service", "RedisEventBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis event bus not initialized")
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

// Subscribe streams engine events to onEvent until ctx is cancelled. Used by
// out-of-process consumers (UI push, audit sinks).
func (b *RedisBus) Subscribe(ctx context.Context, onEvent func(Event)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis event bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
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
				var evt Event
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					b.log.Warn("bad redis event payload", "error", err)
					continue
				}
				onEvent(evt)
			}
		}
	}()
	return nil
}
