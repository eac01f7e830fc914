// Package tag provides the add_tag and remove_tag action handlers. Tags live
// in the record's "tags" data field as a list of strings.
package tag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/template"
)

// TagsField is the data field holding the record's tags.
const TagsField = "tags"

var ErrTagMissing = errors.New("missing or invalid 'tag' in configuration")

// Action adds or removes one tag on the triggering record. Adding an already
// present tag and removing an absent one are no-ops.
type Action struct {
	ID      string
	Tag     string
	Remove  bool
	records persistence.RecordRepository
}

// NewAction creates a new tag action from configuration.
func NewAction(config map[string]any, remove bool, records persistence.RecordRepository) (*Action, error) {
	actionID, _ := config["id"].(string)

	tag, ok := config["tag"].(string)
	if !ok || tag == "" {
		return nil, ErrTagMissing
	}

	return &Action{
		ID:      actionID,
		Tag:     tag,
		Remove:  remove,
		records: records,
	}, nil
}

// Apply mutates the tag list and saves the record when it changed.
func (a *Action) Apply(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	if execCtx.Record == nil {
		return nil, errors.New("no record in execution context")
	}

	tag, err := template.RenderString(a.Tag, execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render tag: %w", err)
	}

	record := execCtx.Record
	oldRecord := record.Clone()

	tags := recordTags(record)
	changed := false

	if a.Remove {
		tags, changed = removeTag(tags, tag)
	} else if !containsTag(tags, tag) {
		tags = append(tags, tag)
		changed = true
	}

	if !changed {
		return map[string]any{
			"record_id": record.ID,
			"tag":       tag,
			"changed":   false,
		}, nil
	}

	if record.Data == nil {
		record.Data = make(map[string]any)
	}

	record.Data[TagsField] = tags

	err = a.records.SaveRecord(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	execCtx.AddMutation(models.RecordMutation{
		Type:          models.EventRecordUpdated,
		Record:        record.Clone(),
		OldRecord:     oldRecord,
		ChangedFields: []string{TagsField},
	})

	logger.InfoContext(ctx, "Changed record tags",
		"record_id", record.ID, "tag", tag, "removed", a.Remove)

	return map[string]any{
		"record_id": record.ID,
		"tag":       tag,
		"changed":   true,
	}, nil
}

// Preview describes the tag change without performing it.
func (a *Action) Preview(_ context.Context, execCtx *models.ExecutionContext) (map[string]any, string, error) {
	tag, err := template.RenderString(a.Tag, execCtx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render tag: %w", err)
	}

	verb := "add"
	if a.Remove {
		verb = "remove"
	}

	recordID := ""
	if execCtx.Record != nil {
		recordID = execCtx.Record.ID
	}

	output := map[string]any{
		"record_id": recordID,
		"tag":       tag,
	}

	return output, fmt.Sprintf("would %s tag %q on record %s", verb, tag, recordID), nil
}

func recordTags(record *models.Record) []string {
	raw, ok := record.FieldValue(TagsField)
	if !ok {
		return nil
	}

	switch values := raw.(type) {
	case []string:
		return append([]string(nil), values...)
	case []any:
		tags := make([]string, 0, len(values))

		for _, v := range values {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}

		return tags
	}

	return nil
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}

	return false
}

func removeTag(tags []string, tag string) ([]string, bool) {
	filtered := make([]string, 0, len(tags))
	removed := false

	for _, t := range tags {
		if t == tag {
			removed = true

			continue
		}

		filtered = append(filtered, t)
	}

	return filtered, removed
}
