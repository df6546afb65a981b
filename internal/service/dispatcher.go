package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/webitel/realtime-hub/infra/metrics"
	"github.com/webitel/realtime-hub/internal/domain/model"
)

// [NOTIFIER] PRIMARY INTERFACE FOR REQUEST HANDLING CODE
//
// Every method returns false only when no realtime server is running yet (or
// it has been stopped). True means the dispatch was attempted; a recipient
// that is not connected silently misses the event.
type Notifier interface {
	NotifyRestaurant(ctx context.Context, restaurantID string, data *model.Notification) bool
	NotifyCustomer(ctx context.Context, customerID string, data *model.Notification) bool
	NotifyRider(ctx context.Context, riderID string, data *model.Notification) bool

	// Notify targets role/id with an explicit event name. An empty event
	// falls back to data.Type, then to the role default.
	Notify(ctx context.Context, role model.Role, id, event string, data *model.Notification) bool
	BroadcastToAll(ctx context.Context, event string, data *model.Notification) bool
}

type Dispatcher struct {
	servers ServerProvider
	missed  MissedRecorder
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ Notifier = (*Dispatcher)(nil)

func NewDispatcher(servers ServerProvider, missed MissedRecorder, tracer trace.Tracer, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		servers: servers,
		missed:  missed,
		tracer:  tracer,
		logger:  logger,
		metrics: m,
	}
}

func (d *Dispatcher) NotifyRestaurant(ctx context.Context, restaurantID string, data *model.Notification) bool {
	return d.Notify(ctx, model.RoleRestaurant, restaurantID, "", data)
}

func (d *Dispatcher) NotifyCustomer(ctx context.Context, customerID string, data *model.Notification) bool {
	return d.Notify(ctx, model.RoleCustomer, customerID, "", data)
}

func (d *Dispatcher) NotifyRider(ctx context.Context, riderID string, data *model.Notification) bool {
	return d.Notify(ctx, model.RoleRider, riderID, "", data)
}

func (d *Dispatcher) Notify(ctx context.Context, role model.Role, id, event string, data *model.Notification) bool {
	srv := d.servers.Current()
	if srv == nil {
		d.metrics.Dispatches.WithLabelValues(string(role), "unavailable").Inc()
		return false
	}
	if !role.Valid() {
		d.logger.Error("notify rejected: unknown role", "role", role, "target_id", id)
		d.metrics.Dispatches.WithLabelValues("invalid", "failed").Inc()
		return false
	}

	payload := prepare(data)
	name := ResolveEvent(role, event, payload)
	room := model.RoomKey(role, id)

	ctx, span := d.tracer.Start(ctx, "realtime.notify", trace.WithAttributes(
		attribute.String("realtime.room", room),
		attribute.String("realtime.event", name),
	))
	defer span.End()

	n, err := srv.Emit(room, model.NewEventWithPriority(name, model.PriorityHigh, payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error("notify failed", "room", room, "event", name, "err", err)
		d.metrics.Dispatches.WithLabelValues(string(role), "failed").Inc()
		return false
	}
	span.SetAttributes(attribute.Int("realtime.recipients", n))

	if n == 0 {
		d.metrics.Dispatches.WithLabelValues(string(role), "empty").Inc()
		d.missed.Record(ctx, &model.MissedNotification{
			Room:     room,
			Role:     role,
			TargetID: id,
			Event:    name,
			Data:     payload,
			MissedAt: model.Now(),
		})
		return true
	}

	d.metrics.Dispatches.WithLabelValues(string(role), "delivered").Inc()
	return true
}

func (d *Dispatcher) BroadcastToAll(ctx context.Context, event string, data *model.Notification) bool {
	srv := d.servers.Current()
	if srv == nil {
		d.metrics.Dispatches.WithLabelValues("all", "unavailable").Inc()
		return false
	}

	payload := prepare(data)
	if event == "" {
		event = model.EventBroadcast
	}

	_, span := d.tracer.Start(ctx, "realtime.broadcast", trace.WithAttributes(
		attribute.String("realtime.event", event),
	))
	defer span.End()

	n, err := srv.EmitAll(model.NewEventWithPriority(event, model.PriorityNormal, payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error("broadcast failed", "event", event, "err", err)
		d.metrics.Dispatches.WithLabelValues("all", "failed").Inc()
		return false
	}
	span.SetAttributes(attribute.Int("realtime.recipients", n))

	result := "delivered"
	if n == 0 {
		result = "empty"
	}
	d.metrics.Dispatches.WithLabelValues("all", result).Inc()
	d.logger.Debug("broadcast dispatched", "event", event, "recipients", n)
	return true
}

// ResolveEvent picks the event name: explicit event, then the payload type,
// then the role default.
func ResolveEvent(role model.Role, event string, data *model.Notification) string {
	if event != "" {
		return event
	}
	if data != nil && data.Type != "" {
		return data.Type
	}
	return role.DefaultEvent()
}

// prepare copies data so the caller's value is never mutated, and stamps it.
func prepare(data *model.Notification) *model.Notification {
	var out model.Notification
	if data != nil {
		out = *data
	}
	if out.Timestamp == "" {
		out.Timestamp = model.Now()
	}
	return &out
}
