package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
)

const eventsChannel = "cvlive:events"

// Event wraps one room event with the coordinator instance that produced
// it, so subscribers can discard their own echoes.
type Event struct {
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Room       domain.RoomEvent `json:"room"`
}

// EventBus publishes room-membership events over Redis pub/sub for
// interested platform services (recording workers, chat, analytics).
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Publish sends one room event to the shared channel.
func (eb *EventBus) Publish(ctx context.Context, ev domain.RoomEvent) error {
	wrapped := Event{
		InstanceID: eb.instanceID,
		Timestamp:  time.Now(),
		Room:       ev,
	}

	data, err := json.Marshal(wrapped)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published room event",
		"type", ev.Type,
		"stream_id", ev.StreamID,
	)
	return nil
}

// Subscribe consumes room events from other coordinator instances until
// ctx is cancelled. Events from this instance are skipped.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eventsChannel)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Room.Type,
					"error", err,
				)
			}
		}
	}
}
