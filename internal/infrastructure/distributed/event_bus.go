package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rillnet/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event is the wire form of a domain.ForwardEvent published to Redis,
// tagged with the originating instance so a subscriber can ignore its
// own echoes when every instance also subscribes to the same channel.
type Event struct {
	InstanceID string                `json:"instance_id"`
	Timestamp  time.Time             `json:"timestamp"`
	Type       domain.ForwardEventType `json:"type"`
	StreamID   domain.StreamID       `json:"stream_id"`
	SessionID  domain.SessionID      `json:"session_id,omitempty"`
	Info       domain.ForwardInfo    `json:"info"`
}

// EventBus is a forward.EventSink that republishes every ForwardEvent
// onto a Redis pub/sub channel, giving an out-of-band metrics/admin
// subscriber a fleet-wide feed instead of one limited to a single
// process's in-memory MetricsService.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	channel    string
	pubsub     *redis.PubSub
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		channel:    "rillnet:forward-events",
	}
}

// Publish implements forward.EventSink. Failures are logged, not
// returned: a forwarder must never block on a metrics side-channel.
func (eb *EventBus) Publish(ev domain.ForwardEvent) {
	wire := Event{
		InstanceID: eb.instanceID,
		Timestamp:  time.Now(),
		Type:       ev.Type,
		StreamID:   ev.StreamID,
		SessionID:  ev.SessionID,
		Info:       ev.Info,
	}

	data, err := json.Marshal(wire)
	if err != nil {
		eb.logger.Warnw("failed to marshal forward event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		eb.logger.Warnw("failed to publish forward event", "error", err, "type", ev.Type)
	}
}

// Subscribe consumes forward events published by every instance
// (including this one) and invokes handler for each, until ctx is
// canceled.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channel)
	defer func() {
		eb.pubsub.Close()
		eb.pubsub = nil
	}()

	ch := eb.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal forward event", "error", err)
				continue
			}
			if err := handler(event); err != nil {
				eb.logger.Warnw("error handling forward event", "type", event.Type, "error", err)
			}
		}
	}
}

// Close closes the event bus subscription, if any.
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
