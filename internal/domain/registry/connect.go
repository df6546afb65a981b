package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/webitel/realtime-hub/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (REGISTRY/HUB)
type Connector interface {
	GetID() uuid.UUID
	GetTransport() model.Transport
	CreatedAt() time.Time

	// Send enqueues ev without blocking. False means the event was dropped
	// because the session is closed or its outbox is full.
	Send(ev model.Eventer) bool
	Recv() <-chan model.Eventer

	// Attach records that a transport stream is now serving the session.
	Attach(t model.Transport)
	Attached() bool
	// ClaimStream reserves the session for one websocket stream. Only the
	// first call succeeds; Streamed is closed by it.
	ClaimStream() bool
	Streamed() <-chan struct{}
	Touch()
	LastActivity() time.Time

	// Allow reports whether one more inbound control message fits the rate budget.
	Allow() bool

	Done() <-chan struct{}
	Reason() string
	Close(reason string) // Terminate connection and release resources
	Dropped() uint64
}

// ConnectOptions tune a single connection.
type ConnectOptions struct {
	BufferSize int
	Rate       rate.Limit
	Burst      int
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id        uuid.UUID
	createdAt time.Time
	ctx       context.Context
	cancelFn  context.CancelFunc
	sendCh    chan model.Eventer
	limiter   *rate.Limiter

	// attachMu orders transport switches against the stream claim.
	attachMu  sync.Mutex
	transport atomic.Value // model.Transport
	attached  atomic.Bool
	streaming bool
	streamed  chan struct{}

	closeOnce      sync.Once // [PROTECTION]
	reason         atomic.Value
	lastActivityAt atomic.Int64
	droppedCount   atomic.Uint64
}

// NewConnector creates a session negotiated on transport t. The session is
// not attached until a transport stream starts serving it.
func NewConnector(ctx context.Context, t model.Transport, opts ConnectOptions) Connector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.Rate == 0 {
		opts.Rate = rate.Inf
	}

	childCtx, cancel := context.WithCancel(ctx)
	c := &connect{
		id:        uuid.New(),
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancel,
		sendCh:    make(chan model.Eventer, opts.BufferSize),
		limiter:   rate.NewLimiter(opts.Rate, opts.Burst),
		streamed:  make(chan struct{}),
	}
	c.transport.Store(t)
	c.lastActivityAt.Store(c.createdAt.UnixNano())
	return c
}

func (c *connect) GetID() uuid.UUID     { return c.id }
func (c *connect) CreatedAt() time.Time { return c.createdAt }

func (c *connect) GetTransport() model.Transport {
	return c.transport.Load().(model.Transport)
}

func (c *connect) Send(ev model.Eventer) bool {
	select {
	// [LIFECYCLE_GATE] Immediately abort if the underlying transport is already dead.
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.sendCh <- ev:
		return true
	default:
		// [BACKPRESSURE] The registry loop never waits on a slow consumer.
		c.droppedCount.Add(1)
		return false
	}
}

func (c *connect) Recv() <-chan model.Eventer { return c.sendCh }

// Attach ignores a polling attach once a websocket stream has claimed the session.
func (c *connect) Attach(t model.Transport) {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	if c.streaming && t != model.TransportWebsocket {
		return
	}
	c.transport.Store(t)
	c.attached.Store(true)
	c.Touch()
}

func (c *connect) Attached() bool { return c.attached.Load() }

func (c *connect) ClaimStream() bool {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	if c.streaming {
		return false
	}
	c.streaming = true
	close(c.streamed)
	return true
}

func (c *connect) Streamed() <-chan struct{} { return c.streamed }

func (c *connect) Touch() { c.lastActivityAt.Store(time.Now().UnixNano()) }

func (c *connect) LastActivity() time.Time {
	return time.Unix(0, c.lastActivityAt.Load())
}

func (c *connect) Allow() bool { return c.limiter.Allow() }

func (c *connect) Done() <-chan struct{} { return c.ctx.Done() }

func (c *connect) Reason() string {
	if r, ok := c.reason.Load().(string); ok {
		return r
	}
	return ""
}

func (c *connect) Dropped() uint64 { return c.droppedCount.Load() }

// Close cancels the session context. The outbox is never closed so a
// concurrent Send cannot panic; readers select on Done instead.
func (c *connect) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason.Store(reason)
		c.cancelFn()
	})
}
