package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/webitel/realtime-hub/config"
	"github.com/webitel/realtime-hub/infra/metrics"
	"github.com/webitel/realtime-hub/internal/domain/model"
)

// MissedSink receives notifications nobody was subscribed to.
type MissedSink interface {
	PublishMissed(ctx context.Context, m *model.MissedNotification) error
}

// MissedRecorder applies the configured policy to dispatches that reached
// no subscriber.
type MissedRecorder interface {
	Record(ctx context.Context, m *model.MissedNotification)
	Snapshot() map[string]int
}

type MissedTracker struct {
	policy  string
	sink    MissedSink
	logger  *slog.Logger
	metrics *metrics.Metrics

	// [MEMORY_MANAGEMENT] bounded per-room counters; cold rooms are evicted first.
	mu     sync.Mutex
	counts *lru.Cache[string, int]
}

var _ MissedRecorder = (*MissedTracker)(nil)

// NewMissedTracker builds the recorder. sink may be nil unless the policy is publish.
func NewMissedTracker(cfg *config.Config, sink MissedSink, logger *slog.Logger, m *metrics.Metrics) (*MissedTracker, error) {
	size := cfg.Socket.MissedTrackerSize
	if size <= 0 {
		size = 10000
	}
	counts, err := lru.New[string, int](size)
	if err != nil {
		return nil, fmt.Errorf("missed tracker: %w", err)
	}
	if cfg.Socket.MissedPolicy == config.MissedPolicyPublish && sink == nil {
		return nil, fmt.Errorf("missed tracker: policy %q requires a sink", config.MissedPolicyPublish)
	}

	return &MissedTracker{
		policy:  cfg.Socket.MissedPolicy,
		sink:    sink,
		logger:  logger,
		metrics: m,
		counts:  counts,
	}, nil
}

func (t *MissedTracker) Record(ctx context.Context, m *model.MissedNotification) {
	t.mu.Lock()
	n, _ := t.counts.Get(m.Room)
	t.counts.Add(m.Room, n+1)
	t.mu.Unlock()

	t.metrics.Missed.WithLabelValues(string(m.Role)).Inc()

	switch t.policy {
	case config.MissedPolicyLog:
		t.logger.Warn("notification missed: no subscribers",
			"room", m.Room,
			"event", m.Event,
		)
	case config.MissedPolicyPublish:
		if err := t.sink.PublishMissed(ctx, m); err != nil {
			t.logger.Error("missed notification publish failed",
				"room", m.Room,
				"event", m.Event,
				"err", err,
			)
		}
	}
}

// Snapshot copies the per-room miss counters.
func (t *MissedTracker) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, t.counts.Len())
	for _, room := range t.counts.Keys() {
		if n, ok := t.counts.Peek(room); ok {
			out[room] = n
		}
	}
	return out
}
