package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/rulegate/rulegate/pkg/channels/gochannel"
	"github.com/rulegate/rulegate/pkg/channels/kafka"
	"github.com/rulegate/rulegate/pkg/eventbus"
)

// NewEventBus creates the record event bus. With brokers configured it runs
// on Kafka so multiple workers share the stream; without, it falls back to an
// in-process channel suitable for single-binary deployments.
func NewEventBus(logger *slog.Logger, kafkaBrokers, serviceName string) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if kafkaBrokers != "" {
		pub, sub, err := kafka.CreateChannel(wmLogger, kafkaBrokers, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	}

	pub, sub, err := gochannel.CreateChannel(wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
	}

	return eventbus.NewWatermillEventBus(logger, pub, sub), nil
}
