package pubsub

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sony/gobreaker"
)

// Interface guard
var _ message.Publisher = (*BreakerPublisher)(nil)

// BreakerPublisher stops hammering an unavailable broker: after repeated
// failures publishes fail fast until the breaker half-opens again.
type BreakerPublisher struct {
	next message.Publisher
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerPublisher(next message.Publisher, logger *slog.Logger) *BreakerPublisher {
	return &BreakerPublisher{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "amqp-publisher",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("CIRCUIT_STATE_CHANGED", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (p *BreakerPublisher) Publish(topic string, messages ...*message.Message) error {
	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.next.Publish(topic, messages...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrBrokerUnavailable, err)
	}
	return err
}

func (p *BreakerPublisher) Close() error {
	return p.next.Close()
}

var ErrBrokerUnavailable = errors.New("pubsub: broker unavailable")

// State exposes the breaker state for diagnostics.
func (p *BreakerPublisher) State() gobreaker.State {
	return p.cb.State()
}
