package webhook

import (
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/protocol"
)

// ActionFactory creates webhook handlers.
type ActionFactory struct{}

// NewActionFactory creates a new webhook factory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// Create creates a new handler from the given configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.ActionHandler, error) {
	return NewAction(config)
}

// Type returns the action type served by this factory.
func (f *ActionFactory) Type() models.ActionType {
	return models.ActionWebhook
}

// Name returns the name of the action.
func (f *ActionFactory) Name() string {
	return "Webhook"
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Performs an outbound HTTP call with optional headers, body and retries. Failures do not abort the rest of the chain."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Target URL. Supports templating.",
				"examples": []string{
					"https://hooks.example.com/deals",
					"{{.env.WEBHOOK_BASE}}/records/{{.record.id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method.",
				"default":     "POST",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body. Supports templating.",
			},
			"retry": map[string]any{
				"type":        "object",
				"description": "Retry configuration for failed calls.",
				"properties": map[string]any{
					"attempts": map[string]any{
						"type":    "integer",
						"minimum": 1,
						"maximum": 5,
					},
					"delay": map[string]any{
						"type":        "integer",
						"description": "Delay between attempts in milliseconds.",
						"minimum":     0,
					},
				},
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
