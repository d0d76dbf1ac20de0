// Package relay fans a single bus subscription out to many live viewers.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cerebro-dash/apiserver/internal/mq"
	"github.com/cerebro-dash/apiserver/types"
	"github.com/samber/oops"
)

// DefaultQueueSize is the per-subscriber buffer used when none is configured.
const DefaultQueueSize = 64

var (
	// ErrSlowConsumer is returned by Attach when the subscriber's queue
	// overflowed and it was disconnected.
	ErrSlowConsumer = errors.New("relay: subscriber too slow")

	// ErrUpstreamLost is returned by Run when the bus subscription ends while
	// the relay is still wanted.
	ErrUpstreamLost = errors.New("relay: upstream subscription lost")
)

// Bus is the upstream the relay listens to.
type Bus interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// SnapshotFunc produces the health event every subscriber receives first.
type SnapshotFunc func(ctx context.Context) (types.Event, error)

// Sink receives events for one attached viewer, in order.
type Sink interface {
	Send(ctx context.Context, event types.Event) error
}

type Options struct {
	QueueSize int
	Logger    *slog.Logger
	Metrics   *Metrics
}

// Relay owns the subscriber set. Run feeds it; Attach drains one subscriber.
type Relay struct {
	bus       Bus
	channel   string
	snapshot  SnapshotFunc
	queueSize int
	logger    *slog.Logger
	metrics   *Metrics

	mu   sync.Mutex
	subs map[string]*subscriber
}

func New(bus Bus, channel string, snapshot SnapshotFunc, opts Options) *Relay {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Relay{
		bus:       bus,
		channel:   channel,
		snapshot:  snapshot,
		queueSize: opts.QueueSize,
		logger:    opts.Logger.With("component", "relay", "channel", channel),
		metrics:   opts.Metrics,
		subs:      make(map[string]*subscriber),
	}
}

// Run holds the upstream subscription until ctx is cancelled (returning nil)
// or the subscription is lost (returning ErrUpstreamLost).
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "relay subscribing")
	err := r.bus.Subscribe(ctx, r.channel, func(_ context.Context, msg mq.Message) error {
		event, parsed := Decode(msg.Data)
		if parsed {
			r.metrics.relayed.WithLabelValues("parsed").Inc()
		} else {
			r.metrics.relayed.WithLabelValues("raw").Inc()
		}
		r.broadcast(event)
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = mq.ErrSubscriptionClosed
	}
	return oops.Code("UPSTREAM_LOST").
		With("channel", r.channel).
		Wrap(fmt.Errorf("%w: %w", ErrUpstreamLost, err))
}

// Attach registers a subscriber and streams to sink until ctx ends (nil), the
// subscriber falls behind (ErrSlowConsumer) or sink fails (its error). The
// health snapshot is always the first event delivered.
func (r *Relay) Attach(ctx context.Context, sink Sink) error {
	sub := newSubscriber(r.queueSize)
	r.register(sub)
	defer r.unregister(sub)

	logger := r.logger.With("subscriber", sub.id)
	logger.DebugContext(ctx, "subscriber attached")

	snapshot, err := r.snapshot(ctx)
	if err != nil {
		return oops.Code("SNAPSHOT_FAILED").With("subscriber", sub.id).Wrap(err)
	}
	if err := sink.Send(ctx, snapshot); err != nil {
		return err
	}
	sub.setState(StateActive)

	for {
		if sub.isEvicted() {
			return ErrSlowConsumer
		}
		select {
		case <-ctx.Done():
			sub.setState(StateDraining)
			return nil
		case <-sub.evicted:
			return ErrSlowConsumer
		case event := <-sub.queue:
			if sub.isEvicted() {
				return ErrSlowConsumer
			}
			if err := sink.Send(ctx, event); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Subscribers returns the number of attached subscribers.
func (r *Relay) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// broadcast enqueues event for every subscriber. A subscriber whose queue is
// full is removed and told to stop; the others are unaffected.
func (r *Relay) broadcast(event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, sub := range r.subs {
		if sub.offer(event) {
			continue
		}
		delete(r.subs, id)
		sub.setState(StateDraining)
		sub.evict()
		r.metrics.evictions.Inc()
		r.metrics.subscribers.Dec()
		r.logger.Warn("evicting slow subscriber", "subscriber", id, "queue_size", r.queueSize)
	}
}

func (r *Relay) register(sub *subscriber) {
	sub.setState(StateConnecting)
	r.mu.Lock()
	r.subs[sub.id] = sub
	r.mu.Unlock()
	r.metrics.subscribers.Inc()
}

func (r *Relay) unregister(sub *subscriber) {
	r.mu.Lock()
	if _, ok := r.subs[sub.id]; ok {
		delete(r.subs, sub.id)
		r.metrics.subscribers.Dec()
	}
	r.mu.Unlock()
	from := sub.State()
	sub.setState(StateDisconnected)
	r.logger.Debug("subscriber detached", "subscriber", sub.id, "from_state", from.String())
}
