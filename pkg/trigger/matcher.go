// Package trigger matches record events against definition triggers.
package trigger

import (
	"log/slog"
	"sort"

	"github.com/rulegate/rulegate/pkg/condition"
	"github.com/rulegate/rulegate/pkg/models"
)

// Matcher selects the definitions a record event fires. A definition matches
// when it is enabled, its trigger predicate accepts the event and its
// conditions evaluate to true against the event's record snapshot.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a new trigger matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// MatchWorkflows returns the workflow definitions fired by the event in
// deterministic execution order: ascending priority, then creation time,
// then ID.
func (m *Matcher) MatchWorkflows(event *models.RecordEvent, definitions []*models.AutomationDefinition) []*models.AutomationDefinition {
	matches := make([]*models.AutomationDefinition, 0)

	for _, def := range definitions {
		if !def.IsEnabled || def.Kind != models.DefinitionWorkflow || def.Trigger == nil {
			continue
		}

		// scheduled ticks address the one definition whose cron entry fired
		if event.DefinitionID != "" && event.DefinitionID != def.ID {
			continue
		}

		if !m.triggerAccepts(event, def.Trigger) {
			continue
		}

		if !condition.EvaluateAll(event.Record, def.Conditions) {
			continue
		}

		m.logger.Debug("Definition matched event",
			"definition_id", def.ID, "event_type", event.Type)

		matches = append(matches, def)
	}

	sortDefinitions(matches)

	m.logger.Info("Completed trigger matching",
		"event_type", event.Type, "module_id", event.ModuleID,
		"matches_found", len(matches))

	return matches
}

// MatchProcesses returns the enabled approval processes fired by the event,
// in creation order.
func (m *Matcher) MatchProcesses(event *models.RecordEvent, processes []*models.ApprovalProcessDefinition) []*models.ApprovalProcessDefinition {
	matches := make([]*models.ApprovalProcessDefinition, 0)

	for _, process := range processes {
		if !process.IsEnabled {
			continue
		}

		if !m.triggerAccepts(event, &process.Trigger) {
			continue
		}

		if !condition.EvaluateAll(event.Record, process.Conditions) {
			continue
		}

		matches = append(matches, process)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}

		return matches[i].ID < matches[j].ID
	})

	return matches
}

func (m *Matcher) triggerAccepts(event *models.RecordEvent, trigger *models.TriggerConfig) bool {
	switch trigger.Type {
	case models.TriggerOnCreate, models.TriggerRecordCreate:
		return event.Type == models.EventRecordCreated

	case models.TriggerOnUpdate:
		return event.Type == models.EventRecordUpdated

	case models.TriggerOnDelete:
		return event.Type == models.EventRecordDeleted

	case models.TriggerFieldChange:
		if event.Type != models.EventRecordUpdated || trigger.Field == "" {
			return false
		}

		return event.ChangedFieldSet()[trigger.Field]

	case models.TriggerStageTransition:
		from, to, ok := event.StageTransitioned()
		if !ok {
			return false
		}

		return stageMatches(trigger.StageFrom, from) && stageMatches(trigger.StageTo, to)

	case models.TriggerScheduled:
		return event.Type == models.EventScheduledTick

	case models.TriggerWebform:
		if event.Type != models.EventWebformReceived {
			return false
		}

		return trigger.WebformID == "" || trigger.WebformID == event.WebformID

	case models.TriggerManual:
		return event.Type == models.EventManualInvoke
	}

	m.logger.Warn("Unknown trigger type", "type", trigger.Type)

	return false
}

func stageMatches(configured, actual string) bool {
	return configured == "" || configured == models.StageWildcard || configured == actual
}

// sortDefinitions orders matched definitions by ascending priority, breaking
// ties by creation time and then ID so matching is deterministic.
func sortDefinitions(definitions []*models.AutomationDefinition) {
	sort.SliceStable(definitions, func(i, j int) bool {
		if definitions[i].Priority != definitions[j].Priority {
			return definitions[i].Priority < definitions[j].Priority
		}

		if !definitions[i].CreatedAt.Equal(definitions[j].CreatedAt) {
			return definitions[i].CreatedAt.Before(definitions[j].CreatedAt)
		}

		return definitions[i].ID < definitions[j].ID
	})
}
