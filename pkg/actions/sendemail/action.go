// Package sendemail provides the send_email action handler.
package sendemail

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
	ErrToMissing      = errors.New("missing or invalid 'to' in configuration")
	ErrSubjectMissing = errors.New("missing or invalid 'subject' in configuration")
)

// Sender delivers a rendered email. Implementations wrap whatever transport
// the deployment uses.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender writes emails to the log instead of delivering them, for
// development and tests.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.Logger.InfoContext(ctx, "Email sent",
		"to", to, "subject", subject, "body_length", len(body))

	return nil
}

// Action sends one templated email. Delivery failures are recoverable; the
// rest of the chain still runs.
type Action struct {
	ID      string
	To      string
	Subject string
	Body    string
	sender  Sender
}

// NewAction creates a new send_email action from configuration.
func NewAction(config map[string]any, sender Sender) (*Action, error) {
	actionID, _ := config["id"].(string)

	to, ok := config["to"].(string)
	if !ok || to == "" {
		return nil, ErrToMissing
	}

	subject, ok := config["subject"].(string)
	if !ok || subject == "" {
		return nil, ErrSubjectMissing
	}

	body, _ := config["body"].(string)

	return &Action{
		ID:      actionID,
		To:      to,
		Subject: subject,
		Body:    body,
		sender:  sender,
	}, nil
}

// Apply renders and sends the email.
func (a *Action) Apply(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	to, subject, body, err := a.render(execCtx)
	if err != nil {
		return nil, err
	}

	err = a.sender.Send(ctx, to, subject, body)
	if err != nil {
		return nil, protocol.Recoverable(fmt.Errorf("failed to send email to %s: %w", to, err))
	}

	logger.InfoContext(ctx, "Dispatched email", "to", to)

	return map[string]any{
		"to":      to,
		"subject": subject,
	}, nil
}

// Preview renders the email without sending it.
func (a *Action) Preview(_ context.Context, execCtx *models.ExecutionContext) (map[string]any, string, error) {
	to, subject, _, err := a.render(execCtx)
	if err != nil {
		return nil, "", err
	}

	output := map[string]any{
		"to":      to,
		"subject": subject,
	}

	return output, fmt.Sprintf("would send email %q to %s", subject, to), nil
}

func (a *Action) render(execCtx *models.ExecutionContext) (to, subject, body string, err error) {
	to, err = template.RenderString(a.To, execCtx)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to render recipient: %w", err)
	}

	subject, err = template.RenderString(a.Subject, execCtx)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to render subject: %w", err)
	}

	body, err = template.RenderString(a.Body, execCtx)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to render body: %w", err)
	}

	return to, subject, body, nil
}
