package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

// NotifierMiddleware implements [DECORATOR_PATTERN] to add observability
// to dispatch calls without touching business logic.
type NotifierMiddleware struct {
	Next   Notifier
	Logger *slog.Logger
}

var _ Notifier = (*NotifierMiddleware)(nil)

func NewNotifierMiddleware(next Notifier, logger *slog.Logger) Notifier {
	return &NotifierMiddleware{
		Next:   next,
		Logger: logger,
	}
}

func (m *NotifierMiddleware) NotifyRestaurant(ctx context.Context, restaurantID string, data *model.Notification) bool {
	return m.observe("restaurant", restaurantID, func() bool {
		return m.Next.NotifyRestaurant(ctx, restaurantID, data)
	})
}

func (m *NotifierMiddleware) NotifyCustomer(ctx context.Context, customerID string, data *model.Notification) bool {
	return m.observe("customer", customerID, func() bool {
		return m.Next.NotifyCustomer(ctx, customerID, data)
	})
}

func (m *NotifierMiddleware) NotifyRider(ctx context.Context, riderID string, data *model.Notification) bool {
	return m.observe("rider", riderID, func() bool {
		return m.Next.NotifyRider(ctx, riderID, data)
	})
}

func (m *NotifierMiddleware) Notify(ctx context.Context, role model.Role, id, event string, data *model.Notification) bool {
	return m.observe(string(role), id, func() bool {
		return m.Next.Notify(ctx, role, id, event, data)
	})
}

func (m *NotifierMiddleware) BroadcastToAll(ctx context.Context, event string, data *model.Notification) bool {
	return m.observe("all", event, func() bool {
		return m.Next.BroadcastToAll(ctx, event, data)
	})
}

func (m *NotifierMiddleware) observe(target, id string, call func() bool) bool {
	start := time.Now()
	ok := call()

	if !ok {
		m.Logger.Warn("realtime dispatch not attempted",
			"target", target,
			"id", id,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return ok
	}

	m.Logger.Debug("realtime dispatch attempted",
		"target", target,
		"id", id,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ok
}
