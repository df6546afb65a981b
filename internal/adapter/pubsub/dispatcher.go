package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/internal/domain/model"
	"github.com/webitel/realtime-hub/internal/service"
)

// Interface guard
var _ service.MissedSink = (*MissedDispatcher)(nil)

// MissedDispatcher publishes notifications nobody was subscribed to, so a
// downstream consumer can decide whether to fall back to another channel.
type MissedDispatcher struct {
	publisher message.Publisher
	topic     string
}

func NewMissedDispatcher(cfg *config.Config, pub message.Publisher) *MissedDispatcher {
	return &MissedDispatcher{
		publisher: pub,
		topic:     cfg.AMQP.MissedExchange,
	}
}

func (d *MissedDispatcher) PublishMissed(ctx context.Context, m *model.MissedNotification) error {
	if m == nil {
		return fmt.Errorf("missed dispatcher: cannot publish nil record")
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("missed dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("room", m.Room)
	msg.Metadata.Set("event", m.Event)

	if err := d.publisher.Publish(d.topic, msg); err != nil {
		return fmt.Errorf("missed dispatcher: failed to publish to topic %s: %w", d.topic, err)
	}
	return nil
}
