package model

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Eventer defines the contract for all data packets flowing through the Hub.
type Eventer interface {
	GetID() string
	GetName() string
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
	GetCached() any
	SetCached(any)
}

// Interface guard
var _ Eventer = (*Event)(nil)

// Event is the envelope pushed to connected peers. The same instance is shared
// by every recipient of one fan-out, so the encoded frame is cached once.
type Event struct {
	id         string
	name       string
	priority   EventPriority
	occurredAt int64
	payload    any
	cached     atomic.Value
}

// NewEvent creates a normal priority event named name.
func NewEvent(name string, payload any) *Event {
	return NewEventWithPriority(name, PriorityNormal, payload)
}

func NewEventWithPriority(name string, priority EventPriority, payload any) *Event {
	return &Event{
		id:         uuid.NewString(),
		name:       name,
		priority:   priority,
		occurredAt: time.Now().UnixMilli(),
		payload:    payload,
	}
}

func (e *Event) GetID() string              { return e.id }
func (e *Event) GetName() string            { return e.name }
func (e *Event) GetPriority() EventPriority { return e.priority }
func (e *Event) GetOccurredAt() int64       { return e.occurredAt }
func (e *Event) GetPayload() any            { return e.payload }
func (e *Event) GetCached() any             { return e.cached.Load() }
func (e *Event) SetCached(v any)            { e.cached.Store(v) }
