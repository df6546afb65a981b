package amqp

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/webitel/realtime-hub/internal/domain/model"
	"github.com/webitel/realtime-hub/internal/service/dto"
)

// Routing keys look like realtime_hub.notify.<role>.<target_id>.
const (
	MetadataRoutingKey = "routing_key"
	routingKeyPrefix   = "realtime_hub.notify."
)

// [ON_NOTIFY]
// Routes a notify command through the dispatcher. The dispatcher never
// retries, so every outcome is acked here as well.
func (h *MessageHandler) OnNotify(ctx context.Context, meta message.Metadata, cmd *dto.NotifyCommand) error {
	if cmd.Role == "" {
		cmd.Role, cmd.TargetID = targetFromRoutingKey(meta.Get(MetadataRoutingKey), cmd.TargetID)
	}

	if err := cmd.Validate(); err != nil {
		h.logger.Warn("NOTIFY_REJECTED", "err", err, "trace_id", TraceIDFrom(ctx))
		return nil // ACK: invalid routing is terminal
	}

	var attempted bool
	if cmd.IsBroadcast() {
		attempted = h.notifier.BroadcastToAll(ctx, cmd.Event, cmd.Data)
	} else {
		attempted = h.notifier.Notify(ctx, cmd.Role, cmd.TargetID, cmd.Event, cmd.Data)
	}

	if !attempted {
		h.logger.Warn("NOTIFY_SKIPPED: realtime server not started",
			"role", cmd.Role,
			"target_id", cmd.TargetID,
			"trace_id", TraceIDFrom(ctx),
		)
	}
	return nil
}

// targetFromRoutingKey fills role and id from the routing key when the body
// carries neither. A key without a known role means broadcast.
func targetFromRoutingKey(key, id string) (model.Role, string) {
	rest, ok := strings.CutPrefix(key, routingKeyPrefix)
	if !ok {
		return "", id
	}
	prefix, suffix, _ := strings.Cut(rest, ".")
	role := model.Role(prefix)
	if !role.Valid() {
		return "", id
	}
	if id == "" {
		id = suffix
	}
	return role, id
}
