package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const bridgeChannel = "brewnet:realtime"

type pubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

// Bridge fans events out through redis so every instance's hub sees them.
type Bridge struct {
	redis pubSub
	hub   *Hub
	log   logrus.FieldLogger
}

func NewBridge(redis pubSub, hub *Hub, log logrus.FieldLogger) *Bridge {
	return &Bridge{redis: redis, hub: hub, log: log}
}

func (b *Bridge) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode realtime event: %w", err)
	}
	if err := b.redis.Publish(ctx, bridgeChannel, payload); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}

// Run relays redis messages into the local hub until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.redis.Subscribe(ctx, bridgeChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", bridgeChannel, err)
	}
	b.log.WithField("channel", bridgeChannel).Info("Realtime bridge subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliver(ctx, msg.Payload)
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		b.log.WithError(err).Warn("Dropping malformed realtime event")
		return
	}
	if err := b.hub.Publish(ctx, ev); err != nil {
		b.log.WithError(err).Warn("Failed to deliver realtime event")
	}
}
