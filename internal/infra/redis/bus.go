package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/logger"
)

// Bus carries progress-changed signals between instances over Redis pub/sub.
type Bus struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

func NewBus(client *redis.Client, channel string, log *logger.Logger) *Bus {
	if channel == "" {
		channel = "lesson-progress"
	}
	return &Bus{
		client:  client,
		channel: channel,
		log:     logger.OrNop(log).With("component", "redis_bus"),
	}
}

func (b *Bus) Publish(ctx context.Context, ev domain.ProgressChanged) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the channel and hands every decoded signal to
// onEvent until ctx ends.
func (b *Bus) StartForwarder(ctx context.Context, onEvent func(domain.ProgressChanged)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.client.Subscribe(ctx, b.channel)

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
				var ev domain.ProgressChanged
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad progress payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}
