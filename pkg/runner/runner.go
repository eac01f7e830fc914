// Package runner drives workflow execution for record events, including the
// recursion guard for engine-originated follow-up events.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rulegate/rulegate/pkg/executor"
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
	"github.com/rulegate/rulegate/pkg/trigger"
)

// DefaultMaxDepth caps how many times engine-originated mutations may
// re-trigger evaluation of the same event chain.
const DefaultMaxDepth = 5

// CycleDetectedError indicates a workflow chain exceeded the recursion
// depth cap or a sub-workflow called back into an ancestor.
type CycleDetectedError struct {
	DefinitionID string
	RecordID     string
	Depth        int
}

func (e *CycleDetectedError) Error() string {
	if e.DefinitionID != "" {
		return fmt.Sprintf("workflow cycle detected at definition %s (record %s, depth %d)", e.DefinitionID, e.RecordID, e.Depth)
	}

	return fmt.Sprintf("workflow recursion depth exceeded for record %s (depth %d)", e.RecordID, e.Depth)
}

// IsCycleDetected reports whether err is a cycle guard trip.
func IsCycleDetected(err error) bool {
	var cycle *CycleDetectedError

	return errors.As(err, &cycle)
}

// Result is the outcome of handling one record event: the reports of every
// fired workflow and the follow-up events their mutations produced.
type Result struct {
	Reports   []*models.ExecutionReport
	FollowUps []*models.RecordEvent
}

// Runner matches record events against workflow definitions and executes
// the matches sequentially in priority order. Mutations made by action
// handlers become follow-up events one depth level down, so chained
// automations re-evaluate without unbounded recursion.
type Runner struct {
	logger   *slog.Logger
	store    persistence.Persistence
	matcher  *trigger.Matcher
	executor *executor.Executor
	maxDepth int
}

// NewRunner creates a workflow runner with the default depth cap.
func NewRunner(logger *slog.Logger, store persistence.Persistence, matcher *trigger.Matcher, exec *executor.Executor) *Runner {
	return &Runner{
		logger:   logger.With("module", "workflow_runner"),
		store:    store,
		matcher:  matcher,
		executor: exec,
		maxDepth: DefaultMaxDepth,
	}
}

// WithMaxDepth overrides the recursion depth cap.
func (r *Runner) WithMaxDepth(depth int) *Runner {
	r.maxDepth = depth

	return r
}

// HandleEvent runs every workflow the event fires. Later definitions in the
// order observe record writes made by earlier ones. One definition's failure
// is recorded in its report and does not block the others.
func (r *Runner) HandleEvent(ctx context.Context, event *models.RecordEvent) (*Result, error) {
	recordID := ""
	if event.Record != nil {
		recordID = event.Record.ID
	}

	if event.Depth >= r.maxDepth {
		return nil, &CycleDetectedError{RecordID: recordID, Depth: event.Depth}
	}

	definitions, err := r.store.Definitions().ListAutomations(ctx, event.ModuleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}

	matched := r.matcher.MatchWorkflows(event, definitions)

	result := &Result{}

	for _, def := range matched {
		execCtx, err := r.newContext(def, event, models.ModeLive)
		if err != nil {
			return nil, err
		}

		report, err := r.executor.Execute(ctx, def, execCtx)
		if err != nil {
			return nil, fmt.Errorf("definition %s: %w", def.ID, err)
		}

		result.Reports = append(result.Reports, report)

		followUps, err := r.followUpEvents(event, execCtx)
		if err != nil {
			return nil, err
		}

		result.FollowUps = append(result.FollowUps, followUps...)
	}

	return result, nil
}

// RunDefinition executes a single definition against a record outside the
// event pipeline, for macros and dry-run previews.
func (r *Runner) RunDefinition(ctx context.Context, def *models.AutomationDefinition, record *models.Record, mode models.ExecutionMode) (*models.ExecutionReport, *models.ExecutionContext, error) {
	event := &models.RecordEvent{
		ID:         "",
		Type:       models.EventManualInvoke,
		ModuleID:   def.ModuleID,
		Record:     record,
		OccurredAt: time.Now().UTC(),
	}

	execCtx, err := r.newContext(def, event, mode)
	if err != nil {
		return nil, nil, err
	}

	report, err := r.executor.Execute(ctx, def, execCtx)
	if err != nil {
		return nil, nil, err
	}

	return report, execCtx, nil
}

// RunSub runs a named definition inline for the run_sub_workflow action. The
// sub-workflow shares the parent's record, mode and depth; its ancestor
// chain is tracked so direct cycles fail fast instead of burning depth.
func (r *Runner) RunSub(ctx context.Context, definitionID string, parent *models.ExecutionContext) (*models.ExecutionReport, error) {
	recordID := ""
	if parent.Record != nil {
		recordID = parent.Record.ID
	}

	chain := ancestorChain(ctx)
	for _, ancestor := range chain {
		if ancestor == definitionID {
			return nil, &CycleDetectedError{DefinitionID: definitionID, RecordID: recordID, Depth: len(chain)}
		}
	}

	depth := 0
	if parent.Event != nil {
		depth = parent.Event.Depth
	}

	if depth+len(chain)+1 >= r.maxDepth {
		return nil, &CycleDetectedError{DefinitionID: definitionID, RecordID: recordID, Depth: depth + len(chain) + 1}
	}

	def, err := r.store.Definitions().AutomationByID(ctx, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sub-workflow: %w", err)
	}

	if def.Kind != models.DefinitionWorkflow {
		return nil, fmt.Errorf("definition %s is not a workflow", definitionID)
	}

	execCtx, err := r.newContext(def, parent.Event, parent.Mode)
	if err != nil {
		return nil, err
	}

	execCtx.Record = parent.Record

	subCtx := withAncestor(ctx, parent.DefinitionID)

	report, err := r.executor.Execute(subCtx, def, execCtx)
	if err != nil {
		return nil, err
	}

	parent.Mutations = append(parent.Mutations, execCtx.Mutations...)

	return report, nil
}

func (r *Runner) newContext(def *models.AutomationDefinition, event *models.RecordEvent, mode models.ExecutionMode) (*models.ExecutionContext, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution ID: %w", err)
	}

	execCtx := &models.ExecutionContext{
		ID:           id.String(),
		DefinitionID: def.ID,
		ModuleID:     def.ModuleID,
		Mode:         mode,
		Event:        event,
		Scratch:      make(map[string]any),
	}

	if event != nil {
		execCtx.Record = event.Record
	}

	return execCtx, nil
}

// followUpEvents turns the run's record mutations into events one depth
// level down. Dry runs never mutate, so they never produce follow-ups.
func (r *Runner) followUpEvents(parent *models.RecordEvent, execCtx *models.ExecutionContext) ([]*models.RecordEvent, error) {
	events := make([]*models.RecordEvent, 0, len(execCtx.Mutations))

	for _, mutation := range execCtx.Mutations {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate event ID: %w", err)
		}

		events = append(events, &models.RecordEvent{
			ID:            id.String(),
			Type:          mutation.Type,
			ModuleID:      mutation.Record.ModuleID,
			Record:        mutation.Record,
			OldRecord:     mutation.OldRecord,
			ChangedFields: mutation.ChangedFields,
			Depth:         parent.Depth + 1,
			OccurredAt:    time.Now().UTC(),
		})
	}

	return events, nil
}

type ancestorKey struct{}

func ancestorChain(ctx context.Context) []string {
	chain, _ := ctx.Value(ancestorKey{}).([]string)

	return chain
}

func withAncestor(ctx context.Context, definitionID string) context.Context {
	chain := ancestorChain(ctx)
	next := make([]string, 0, len(chain)+1)
	next = append(next, chain...)
	next = append(next, definitionID)

	return context.WithValue(ctx, ancestorKey{}, next)
}
