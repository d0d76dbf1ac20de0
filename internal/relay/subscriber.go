package relay

import (
	"sync"
	"sync/atomic"

	"github.com/cerebro-dash/apiserver/types"
	"github.com/oklog/ulid/v2"
)

// State is a subscriber's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateDraining
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type subscriber struct {
	id    string
	queue chan types.Event
	state atomic.Int32

	evictOnce sync.Once
	evicted   chan struct{}
}

func newSubscriber(queueSize int) *subscriber {
	return &subscriber{
		id:      ulid.Make().String(),
		queue:   make(chan types.Event, queueSize),
		evicted: make(chan struct{}),
	}
}

// offer enqueues without blocking and reports whether there was room.
func (s *subscriber) offer(event types.Event) bool {
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

func (s *subscriber) evict() {
	s.evictOnce.Do(func() { close(s.evicted) })
}

func (s *subscriber) isEvicted() bool {
	select {
	case <-s.evicted:
		return true
	default:
		return false
	}
}

func (s *subscriber) setState(state State) { s.state.Store(int32(state)) }

func (s *subscriber) State() State { return State(s.state.Load()) }
