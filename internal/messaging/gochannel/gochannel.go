// Package gochannel adapts Watermill's in-process pub/sub to the messaging
// contracts. It is the broker for dev mode and tests, where running Kafka
// would be overkill.
package gochannel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/nearbuy/backend/internal/messaging"
)

type channelBroker struct {
	pubSub *gochannel.GoChannel
}

// NewChannelBroker creates an in-process publisher and subscriber.
func NewChannelBroker(logger *slog.Logger) (messaging.Publisher, messaging.Subscriber, func() error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewSlogLogger(logger),
	)
	cb := &channelBroker{pubSub: pubSub}
	return cb, cb, pubSub.Close
}

func (c *channelBroker) Publish(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("key", key)
	return c.pubSub.Publish(topic, msg)
}

func (c *channelBroker) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	messages, err := c.pubSub.Subscribe(ctx, topic)
	if err != nil {
		slog.Error("Failed to subscribe", "topic", topic, "err", err)
		return
	}

	for msg := range messages {
		if err := handler(ctx, msg.Payload); err != nil {
			slog.Error("Error handling message", "topic", topic, "err", err)
		}
		msg.Ack()
	}
}
