// Package mocks provides testify mocks for rulegate interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rulegate/rulegate/pkg/eventbus"
	"github.com/rulegate/rulegate/pkg/models"
)

// MockEventBus is a mock implementation of the eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, event *models.RecordEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context, handler eventbus.Handler) error {
	args := m.Called(ctx, handler)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}
