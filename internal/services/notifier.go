package services

import (
	"context"
	"log/slog"

	"github.com/cerebro-dash/apiserver/internal/logging"
	"github.com/cerebro-dash/apiserver/types"
)

// EventPublisher delivers events to the bus the relay listens on.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event types.Event) error
}

// Notifier publishes change events on behalf of the services. Publishing is
// best effort: the write has already happened when an event is sent, so
// failures are logged and never returned. A nil Notifier is a no-op.
type Notifier struct {
	pub    EventPublisher
	logger *slog.Logger
}

func NewNotifier(pub EventPublisher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{pub: pub, logger: logger}
}

func (n *Notifier) notify(ctx context.Context, kind string, payload any) {
	if n == nil || n.pub == nil {
		return
	}
	event, err := types.NewEvent(kind, payload)
	if err != nil {
		logging.LogError(ctx, n.logger, "encode event", err)
		return
	}
	if err := n.pub.PublishEvent(ctx, event); err != nil {
		logging.LogError(ctx, n.logger, "publish event", err)
	}
}
