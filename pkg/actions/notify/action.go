// Package notify provides the notify action handler, an in-app notification
// to a user or channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/protocol"
	"github.com/rulegate/rulegate/pkg/template"
)

var (
	ErrTargetMissing  = errors.New("missing or invalid 'target' in configuration")
	ErrMessageMissing = errors.New("missing or invalid 'message' in configuration")
)

// Notifier delivers an in-app notification.
type Notifier interface {
	Notify(ctx context.Context, target, message string) error
}

// LogNotifier writes notifications to the log, for development and tests.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, target, message string) error {
	n.Logger.InfoContext(ctx, "Notification sent", "target", target, "message", message)

	return nil
}

// Action sends one templated notification. Delivery failures are
// recoverable.
type Action struct {
	ID       string
	Target   string
	Message  string
	notifier Notifier
}

// NewAction creates a new notify action from configuration.
func NewAction(config map[string]any, notifier Notifier) (*Action, error) {
	actionID, _ := config["id"].(string)

	target, ok := config["target"].(string)
	if !ok || target == "" {
		return nil, ErrTargetMissing
	}

	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, ErrMessageMissing
	}

	return &Action{
		ID:       actionID,
		Target:   target,
		Message:  message,
		notifier: notifier,
	}, nil
}

// Apply renders and delivers the notification.
func (a *Action) Apply(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	target, message, err := a.render(execCtx)
	if err != nil {
		return nil, err
	}

	err = a.notifier.Notify(ctx, target, message)
	if err != nil {
		return nil, protocol.Recoverable(fmt.Errorf("failed to notify %s: %w", target, err))
	}

	logger.InfoContext(ctx, "Dispatched notification", "target", target)

	return map[string]any{
		"target":  target,
		"message": message,
	}, nil
}

// Preview renders the notification without delivering it.
func (a *Action) Preview(_ context.Context, execCtx *models.ExecutionContext) (map[string]any, string, error) {
	target, message, err := a.render(execCtx)
	if err != nil {
		return nil, "", err
	}

	output := map[string]any{
		"target":  target,
		"message": message,
	}

	return output, fmt.Sprintf("would notify %s: %s", target, message), nil
}

func (a *Action) render(execCtx *models.ExecutionContext) (target, message string, err error) {
	target, err = template.RenderString(a.Target, execCtx)
	if err != nil {
		return "", "", fmt.Errorf("failed to render target: %w", err)
	}

	message, err = template.RenderString(a.Message, execCtx)
	if err != nil {
		return "", "", fmt.Errorf("failed to render message: %w", err)
	}

	return target, message, nil
}
