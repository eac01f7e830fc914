// Package webhook provides the webhook action handler, an outbound HTTP call
// with retry support.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/protocol"
	"github.com/rulegate/rulegate/pkg/template"
)

const (
	defaultTimeoutSeconds = 30
	maxBodyBytes          = 1 << 20
)

var ErrURLMissing = errors.New("missing or invalid 'url' in configuration")

// Action performs an HTTP request to a configured URL with optional headers,
// body and retry logic. Failures are recoverable; the rest of the chain
// still runs.
type Action struct {
	ID      string
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retry   RetryConfig

	client *http.Client
}

// RetryConfig defines retry behavior for webhook calls.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// NewAction creates a new webhook action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	actionID, _ := config["id"].(string)

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, ErrURLMissing
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	retry := RetryConfig{Attempts: 1}

	if retryConfig, exists := config["retry"]; exists {
		retry = parseRetryConfig(retryConfig)
	}

	timeout := defaultTimeoutSeconds * time.Second

	return &Action{
		ID:      actionID,
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		Retry:   retry,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok && attempts >= 1 {
		retry.Attempts = int(attempts)
	}

	if delay, ok := retryMap["delay"].(float64); ok && delay > 0 {
		retry.Delay = time.Duration(delay) * time.Millisecond
	}

	return retry
}

// Apply performs the HTTP request with retry logic.
func (a *Action) Apply(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	url, body, err := a.render(execCtx)
	if err != nil {
		return nil, err
	}

	var lastErr error

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying webhook call",
				"attempt", attempt, "max_attempts", a.Retry.Attempts)

			select {
			case <-ctx.Done():
				return nil, protocol.Recoverable(ctx.Err())
			case <-time.After(a.Retry.Delay):
			}
		}

		output, err := a.doRequest(ctx, url, body, execCtx)
		if err == nil {
			logger.InfoContext(ctx, "Webhook delivered", "url", url, "status", output["status_code"])

			return output, nil
		}

		lastErr = err
	}

	return nil, protocol.Recoverable(fmt.Errorf("webhook to %s failed after %d attempts: %w", url, a.Retry.Attempts, lastErr))
}

// Preview renders the request without sending it.
func (a *Action) Preview(_ context.Context, execCtx *models.ExecutionContext) (map[string]any, string, error) {
	url, _, err := a.render(execCtx)
	if err != nil {
		return nil, "", err
	}

	output := map[string]any{
		"url":    url,
		"method": a.Method,
	}

	return output, fmt.Sprintf("would call %s %s", a.Method, url), nil
}

func (a *Action) render(execCtx *models.ExecutionContext) (url, body string, err error) {
	url, err = template.RenderString(a.URL, execCtx)
	if err != nil {
		return "", "", fmt.Errorf("failed to render URL: %w", err)
	}

	body, err = template.RenderString(a.Body, execCtx)
	if err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}

	return url, body, nil
}

func (a *Action) doRequest(ctx context.Context, url, body string, execCtx *models.ExecutionContext) (map[string]any, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range a.Headers {
		rendered, err := template.RenderString(v, execCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %q: %w", k, err)
		}

		req.Header.Set(k, rendered)
	}

	if req.Header.Get("Content-Type") == "" && body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return map[string]any{
		"url":         url,
		"method":      a.Method,
		"status_code": resp.StatusCode,
		"body":        string(respBody),
	}, nil
}
