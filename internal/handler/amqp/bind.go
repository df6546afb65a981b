package amqp

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
)

// DomainHandler receives one decoded command plus the transport metadata.
type DomainHandler[T any] func(ctx context.Context, meta message.Metadata, payload *T) error

// [INFRASTRUCTURE_BRIDGE]
// Bind adapts a typed handler to watermill. Undecodable payloads and panics
// are acked so a single bad command never blocks the queue.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID,
				)
				err = nil
			}
		}()

		payload := new(T)
		if uerr := json.Unmarshal(msg.Payload, payload); uerr != nil {
			h.logger.Error("DECODE_FAILED", "err", uerr, "msg_id", msg.UUID)
			return nil // ACK: poison pill
		}

		return fn(msg.Context(), msg.Metadata, payload)
	}
}
