package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ballotcast/contexts/voting-client/vote-submission/domain/services"
	"ballotcast/contexts/voting-client/vote-submission/ports"
)

const subscriberBuffer = 128

// Bus is the in-process publish/subscribe channel for voting signals.
// Subscribers live until the context passed to Subscribe is cancelled.
// Topics registered with WithDedup drop repeats of the same partition key
// inside the window before any subscriber sees them.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan ports.EventEnvelope
	dedup       map[string]*services.DedupWindow
	clock       ports.Clock
	logger      *slog.Logger
}

func NewBus(clock ports.Clock, logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]chan ports.EventEnvelope),
		dedup:       make(map[string]*services.DedupWindow),
		clock:       clock,
		logger:      logger,
	}
}

// WithDedup installs a windowed dedup policy for topic.
func (b *Bus) WithDedup(topic string, window time.Duration) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dedup[strings.TrimSpace(topic)] = services.NewDedupWindow(window)
	return b
}

func (b *Bus) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	b.mu.RLock()
	subs := append([]chan ports.EventEnvelope(nil), b.subscribers[topic]...)
	window := b.dedup[topic]
	b.mu.RUnlock()

	if window != nil && !window.Admit(dedupKey(event), b.now()) {
		if b.logger != nil {
			b.logger.Debug("duplicate event dropped by dedup window",
				"event", "bus_publish_duplicate",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"event_id", event.EventID,
				"partition_key", event.PartitionKey,
			)
		}
		return nil
	}

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub <- event:
		default:
			if b.logger != nil {
				b.logger.Warn("dropping event for slow subscriber",
					"event", "bus_publish_drop",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"event_id", event.EventID,
				)
			}
		}
	}

	if b.logger != nil {
		b.logger.Debug("event published",
			"event", "bus_publish",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"event_type", event.EventType,
			"subscribers", len(subs),
		)
	}
	return nil
}

func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	ch := make(chan ports.EventEnvelope, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.removeSubscriber(topic, ch)
				return
			case event := <-ch:
				if err := handler(ctx, event); err != nil && b.logger != nil {
					b.logger.Error("consumer handler failed",
						"event", "bus_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

func (b *Bus) removeSubscriber(topic string, target chan ports.EventEnvelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.subscribers[topic]
	if len(items) == 0 {
		return
	}
	filtered := make([]chan ports.EventEnvelope, 0, len(items))
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	b.subscribers[topic] = filtered
}

func (b *Bus) now() time.Time {
	if b.clock != nil {
		return b.clock.Now().UTC()
	}
	return time.Now().UTC()
}

func dedupKey(event ports.EventEnvelope) string {
	if key := strings.TrimSpace(event.PartitionKey); key != "" {
		return key
	}
	return event.EventID
}

var _ ports.EventPublisher = (*Bus)(nil)
var _ ports.EventSubscriber = (*Bus)(nil)
