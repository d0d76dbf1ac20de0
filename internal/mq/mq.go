package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cerebro-dash/apiserver/config"
	"github.com/cerebro-dash/apiserver/types"
)

// ErrSubscriptionClosed is returned by Subscribe when the broker ends the
// subscription while the caller's context is still live.
var ErrSubscriptionClosed = errors.New("mq: subscription closed by broker")

// ErrLiveStatsUnsupported is returned by LiveStats when the backend keeps no
// bot activity.
var ErrLiveStatsUnsupported = errors.New("mq: live stats need the redis backend")

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack where
// the broker supports redelivery.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
//
// Subscribe blocks until ctx is cancelled, returning ctx.Err(), or until the
// subscription is lost, returning the cause.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Pinger is implemented by backends that can check broker reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LiveStatsReader is implemented by backends that also hold bot activity.
type LiveStatsReader interface {
	LiveStats(ctx context.Context) (types.LiveStats, error)
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Open connects the backend named by cfg.Backend. Redis is the default.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "redis":
		backend, err = NewRedisClient(ctx, cfg.Redis)
	case "rabbitmq":
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(backend), nil
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes messages from the named channel.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Ping checks the broker. Backends without a cheap check report nil.
func (m *MQ) Ping(ctx context.Context) error {
	if p, ok := m.backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// LiveStats reads bot activity from backends that carry it.
func (m *MQ) LiveStats(ctx context.Context) (types.LiveStats, error) {
	if r, ok := m.backend.(LiveStatsReader); ok {
		return r.LiveStats(ctx)
	}
	return types.LiveStats{}, ErrLiveStatsUnsupported
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}

// EventPublisher encodes events as JSON envelopes on a fixed channel.
type EventPublisher struct {
	mq      *MQ
	channel string
}

func NewEventPublisher(m *MQ, channel string) *EventPublisher {
	return &EventPublisher{mq: m, channel: channel}
}

func (p *EventPublisher) PublishEvent(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.mq.Publish(ctx, p.channel, data, map[string]string{"kind": event.Kind})
	return err
}
