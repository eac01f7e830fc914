// Package template provides templating for dynamic action configuration.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/rulegate/rulegate/pkg/models"
)

// RenderWithContext renders a template string against the execution context.
// Templates can reach the record ({{.record.data.amount}}), prior action
// outputs ({{.scratch.create1.record_id}}), trigger data and environment
// variables.
func RenderWithContext(input string, execCtx *models.ExecutionContext) (any, error) {
	data := map[string]any{
		"record":       recordData(execCtx.Record),
		"scratch":      execCtx.Scratch,
		"trigger_data": execCtx.TriggerData,
		"env":          getEnvVars(),
		"execution": map[string]any{
			"id":            execCtx.ID,
			"definition_id": execCtx.DefinitionID,
			"module_id":     execCtx.ModuleID,
		},
	}

	return Render(input, data)
}

// RenderString renders a template and coerces the result to a string.
func RenderString(input string, execCtx *models.ExecutionContext) (string, error) {
	result, err := RenderWithContext(input, execCtx)
	if err != nil {
		return "", err
	}

	if s, ok := result.(string); ok {
		return s, nil
	}

	return fmt.Sprintf("%v", result), nil
}

// Render renders a template string against arbitrary data. Results that look
// like JSON, numbers or booleans are parsed into their typed form.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("render").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func recordData(record *models.Record) map[string]any {
	if record == nil {
		return map[string]any{}
	}

	return map[string]any{
		"id":       record.ID,
		"owner_id": record.OwnerID,
		"stage":    record.Stage,
		"data":     record.Data,
	}
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
