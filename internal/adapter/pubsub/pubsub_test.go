package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/internal/domain/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type failingPublisher struct {
	calls atomic.Int32
}

func (p *failingPublisher) Publish(string, ...*message.Message) error {
	p.calls.Add(1)
	return errors.New("connection refused")
}

func (p *failingPublisher) Close() error { return nil }

func TestBreakerPublisher_OpensAfterFailures(t *testing.T) {
	next := &failingPublisher{}
	pub := NewBreakerPublisher(next, discard)

	for i := 0; i < 5; i++ {
		err := pub.Publish("t", message.NewMessage(watermill.NewUUID(), nil))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBrokerUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, pub.State())

	err := pub.Publish("t", message.NewMessage(watermill.NewUUID(), nil))
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.Equal(t, int32(5), next.calls.Load(), "open breaker fails fast")
}

func TestMissedDispatcher_Publishes(t *testing.T) {
	cfg, err := config.LoadConfig(config.WithEnvFile(""))
	require.NoError(t, err)

	ch := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ch.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	msgs, err := ch.Subscribe(ctx, cfg.AMQP.MissedExchange)
	require.NoError(t, err)

	d := NewMissedDispatcher(cfg, NewBreakerPublisher(ch, discard))
	record := &model.MissedNotification{
		Room:     "rider-9",
		Role:     model.RoleRider,
		TargetID: "9",
		Event:    model.EventDeliveryUpdate,
		Data:     &model.Notification{Message: "pickup"},
	}
	require.NoError(t, d.PublishMissed(context.Background(), record))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, "rider-9", msg.Metadata.Get("room"))
		assert.Equal(t, model.EventDeliveryUpdate, msg.Metadata.Get("event"))

		var got model.MissedNotification
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, "9", got.TargetID)
		assert.Equal(t, "pickup", got.Data.Message)
	case <-ctx.Done():
		t.Fatal("missed record was not published")
	}

	assert.Error(t, d.PublishMissed(context.Background(), nil))
}
