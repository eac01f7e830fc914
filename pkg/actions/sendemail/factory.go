package sendemail

import (
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/protocol"
)

// ActionFactory creates send_email handlers.
type ActionFactory struct {
	sender Sender
}

// NewActionFactory creates a new send_email factory around the given sender.
func NewActionFactory(sender Sender) *ActionFactory {
	return &ActionFactory{sender: sender}
}

// Create creates a new handler from the given configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	return NewAction(config, f.sender)
}

// Type returns the action type served by this factory.
func (f *ActionFactory) Type() models.ActionType {
	return models.ActionSendEmail
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Send Email"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Sends a templated email. Delivery failures do not abort the rest of the chain."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient address. Supports templating.",
				"examples": []string{
					"sales@example.com",
					"{{.record.data.contact_email}}",
				},
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject line. Supports templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Body content. Supports templating.",
			},
		},
		"required":             []string{"to", "subject"},
		"additionalProperties": false,
	}
}
