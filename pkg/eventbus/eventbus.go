// Package eventbus carries record lifecycle events between the API, the
// schedule source and the worker over a watermill pub/sub channel.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/rulegate/rulegate/pkg/models"
)

// RecordEventsTopic is the single topic all record lifecycle events flow
// through. Consumers fan out by event type after decoding.
const RecordEventsTopic = "rulegate.record.events"

// Message metadata keys.
const (
	EventTypeMetadataKey = "event_type"
	ModuleIDMetadataKey  = "module_id"
)

// Handler consumes one decoded record event. A returned error nacks the
// message for redelivery.
type Handler func(ctx context.Context, event *models.RecordEvent) error

// EventBus publishes and consumes record lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, event *models.RecordEvent) error
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// WatermillEventBus adapts any watermill publisher/subscriber pair to the
// bus interface.
type WatermillEventBus struct {
	logger     *slog.Logger
	publisher  message.Publisher
	subscriber message.Subscriber
}

// NewWatermillEventBus wraps a publisher/subscriber pair.
func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		logger:     logger.With("module", "eventbus"),
		publisher:  pub,
		subscriber: sub,
	}
}

func (eb *WatermillEventBus) Publish(_ context.Context, event *models.RecordEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(EventTypeMetadataKey, string(event.Type))
	msg.Metadata.Set(ModuleIDMetadataKey, event.ModuleID)

	if err := eb.publisher.Publish(RecordEventsTopic, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context, handler Handler) error {
	messages, err := eb.subscriber.Subscribe(ctx, RecordEventsTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", RecordEventsTopic, err)
	}

	go func() {
		for msg := range messages {
			var event models.RecordEvent

			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				eb.logger.Error("Dropping undecodable event message",
					"message_id", msg.UUID, "error", err)
				// malformed payloads never become decodable; ack to avoid a
				// redelivery loop
				msg.Ack()

				continue
			}

			if err := handler(ctx, &event); err != nil {
				eb.logger.Error("Event handler failed, nacking",
					"event_id", event.ID, "event_type", event.Type, "error", err)
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}
