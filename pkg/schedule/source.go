// Package schedule turns scheduled-trigger definitions into record events on
// their cron cadence.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rulegate/rulegate/pkg/eventbus"
	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

// ValidateExpr checks a cron expression at definition save time.
func ValidateExpr(expr string) error {
	if expr == "" {
		return errors.New("cron expression is required for scheduled triggers")
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	return nil
}

// Source registers one cron entry per enabled scheduled-trigger workflow and
// publishes a tick event scoped to that definition when it fires. Ticks
// carry no record; definitions drive recordless action chains from them.
type Source struct {
	logger *slog.Logger
	store  persistence.Persistence
	bus    eventbus.EventBus

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// NewSource creates a schedule source.
func NewSource(logger *slog.Logger, store persistence.Persistence, bus eventbus.EventBus) *Source {
	return &Source{
		logger:  logger.With("module", "schedule_source"),
		store:   store,
		bus:     bus,
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads the scheduled definitions and begins firing ticks. The context
// only governs the initial load; call Stop to halt the cron loop.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("schedule source already started")
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if err := s.syncLocked(ctx); err != nil {
		s.cron = nil

		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Schedule source started", "entries", len(s.entries))

	return nil
}

// Reload re-syncs cron entries with the current definitions, picking up
// added, changed and disabled schedules.
func (s *Source) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return errors.New("schedule source not started")
	}

	return s.syncLocked(ctx)
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.cron = nil
	s.entries = make(map[string]cron.EntryID)
	s.logger.Info("Schedule source stopped")
}

// syncLocked reconciles cron entries with the store. Caller holds s.mu.
func (s *Source) syncLocked(ctx context.Context) error {
	definitions, err := s.store.Definitions().ListAutomations(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}

	wanted := make(map[string]*models.AutomationDefinition)

	for _, def := range definitions {
		if !def.IsEnabled || def.Kind != models.DefinitionWorkflow {
			continue
		}

		if def.Trigger == nil || def.Trigger.Type != models.TriggerScheduled {
			continue
		}

		wanted[def.ID] = def
	}

	for id, entryID := range s.entries {
		if _, ok := wanted[id]; !ok {
			s.cron.Remove(entryID)
			delete(s.entries, id)
		}
	}

	for id, def := range wanted {
		if _, ok := s.entries[id]; ok {
			continue
		}

		def := def

		entryID, err := s.cron.AddFunc(def.Trigger.Cron, func() {
			s.fire(def)
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping definition with bad cron expression",
				"definition_id", id, "cron", def.Trigger.Cron, "error", err)

			continue
		}

		s.entries[id] = entryID
		s.logger.InfoContext(ctx, "Registered schedule",
			"definition_id", id, "cron", def.Trigger.Cron)
	}

	return nil
}

func (s *Source) fire(def *models.AutomationDefinition) {
	ctx := context.Background()

	eventID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error("Failed to generate tick event ID", "error", err)

		return
	}

	event := &models.RecordEvent{
		ID:           eventID.String(),
		Type:         models.EventScheduledTick,
		ModuleID:     def.ModuleID,
		DefinitionID: def.ID,
		OccurredAt:   time.Now().UTC(),
	}

	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish tick event",
			"definition_id", def.ID, "error", err)

		return
	}

	s.logger.Debug("Published tick event", "definition_id", def.ID)
}
