package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	goredis "github.com/redis/go-redis/v9"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

// RedisBus publishes activity events to a Redis pub/sub channel and can
// consume inbound CRM events from another channel.
type RedisBus struct {
	rdb     *goredis.Client
	log     *log.Logger
	channel string
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, channel string, logger *log.Logger) (*RedisBus, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr required")
	}
	if channel == "" {
		channel = "activityline.events"
	}
	if logger == nil {
		logger = log.Default()
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisBus(rdb, channel, logger), nil
}

// NewRedisBus wraps an existing client.
func NewRedisBus(rdb *goredis.Client, channel string, logger *log.Logger) *RedisBus {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisBus{rdb: rdb, log: logger.With("component", "redis"), channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, rec domain.EventRecord) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Subscribe forwards inbound events from channel to handle until ctx ends.
// Undecodable payloads are logged and skipped; handler errors are logged.
func (b *RedisBus) Subscribe(ctx context.Context, channel string, handle func(context.Context, domain.Event) error) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if handle == nil {
		return fmt.Errorf("handler required")
	}
	sub := b.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad inbound event payload", "channel", channel, "error", err)
					continue
				}
				if err := handle(ctx, ev); err != nil {
					b.log.Error("process inbound event", "type", ev.Type, "entity_id", ev.EntityID, "error", err)
				}
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
