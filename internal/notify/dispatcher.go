package notify

import (
	"context"

	"github.com/HerbHall/campusnet/internal/event"
	"go.uber.org/zap"
)

// DefaultQueueSize bounds the events waiting for delivery.
const DefaultQueueSize = 32

// Topics are the events forwarded to the webhook.
var Topics = []string{
	event.TopicConnectivityLost,
	event.TopicConnectivityRestored,
	event.TopicLoginExhausted,
}

// Sender delivers a single event.
type Sender interface {
	Send(ctx context.Context, e event.Event) error
}

// TopicSubscriber is the subscribing side of the event bus.
type TopicSubscriber interface {
	Subscribe(topic string, handler event.Handler) (unsubscribe func())
}

// Dispatcher queues bus events and delivers them from its own goroutine
// so a slow endpoint never holds up the daemon loop.
type Dispatcher struct {
	sender Sender
	queue  chan event.Event
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher with a queue of queueSize events.
func NewDispatcher(sender Sender, queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		sender: sender,
		queue:  make(chan event.Event, queueSize),
		logger: logger,
	}
}

// Subscribe attaches the dispatcher to every notification topic.
func (d *Dispatcher) Subscribe(bus TopicSubscriber) (unsubscribe func()) {
	unsubs := make([]func(), 0, len(Topics))
	for _, topic := range Topics {
		unsubs = append(unsubs, bus.Subscribe(topic, d.enqueue))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (d *Dispatcher) enqueue(_ context.Context, e event.Event) {
	select {
	case d.queue <- e:
	default:
		d.logger.Warn("notification queue full, dropping event",
			zap.String("topic", e.Topic),
			zap.String("event_id", e.ID),
		)
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.queue:
			if err := d.sender.Send(ctx, e); err != nil {
				d.logger.Warn("notification delivery failed",
					zap.String("topic", e.Topic),
					zap.String("event_id", e.ID),
					zap.Error(err),
				)
				continue
			}
			d.logger.Debug("notification delivered",
				zap.String("topic", e.Topic),
				zap.String("event_id", e.ID),
			)
		}
	}
}
