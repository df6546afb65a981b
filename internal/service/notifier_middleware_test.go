package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

func TestNotifierMiddleware_PassesThrough(t *testing.T) {
	f := newFixture(t, testConfig(t), nil)
	n := NewNotifierMiddleware(f.notifier, discard)

	assert.False(t, n.NotifyRestaurant(context.Background(), "42", nil))

	srv := f.start(t)
	conn := f.open(t, srv)
	f.join(t, srv, conn, model.RoleRestaurant, "42")

	assert.True(t, n.NotifyRestaurant(context.Background(), "42", nil))
	assert.Equal(t, model.EventNewOrder, next(t, conn).GetName())
	assert.True(t, n.BroadcastToAll(context.Background(), "", nil))
	assert.Equal(t, model.EventBroadcast, next(t, conn).GetName())
}
