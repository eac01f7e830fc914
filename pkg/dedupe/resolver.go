// Package dedupe resolves inbound public submissions against existing
// records before they enter the event pipeline.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

// ErrInvalidSubmission indicates the payload failed the webform's JSON
// schema.
var ErrInvalidSubmission = errors.New("submission payload failed schema validation")

// Submission is one inbound webform payload.
type Submission struct {
	ModuleID  string
	WebformID string

	// Fields is the raw payload. System field names (owner_id, stage) land
	// on the record struct; everything else goes into the data blob.
	Fields map[string]any

	// Schema, when set, is a JSON schema the payload must satisfy.
	Schema map[string]any
}

// Resolution is the outcome of resolving one submission.
type Resolution struct {
	Record *models.Record
	IsNew  bool

	// Skipped is set under the skip strategy: the submission matched an
	// existing record and produced no mutation.
	Skipped bool

	// Event is the lifecycle event to feed into the pipeline, nil when
	// Skipped.
	Event *models.RecordEvent
}

// Resolver applies a module's dedupe policy to submissions. Resolution per
// (module, dedupe key) is serialized through the locker, closing the race
// between concurrent identical submissions.
type Resolver struct {
	logger  *slog.Logger
	records persistence.RecordRepository
	locker  Locker
}

// NewResolver creates a dedupe resolver.
func NewResolver(logger *slog.Logger, records persistence.RecordRepository, locker Locker) *Resolver {
	return &Resolver{
		logger:  logger.With("module", "dedupe_resolver"),
		records: records,
		locker:  locker,
	}
}

// Resolve validates the submission and either matches it to an existing
// record per the configured strategy or creates a new one.
func (r *Resolver) Resolve(ctx context.Context, sub Submission, cfg models.DedupeConfig) (*Resolution, error) {
	if err := validatePayload(sub); err != nil {
		return nil, err
	}

	matchFields, ok := dedupeFields(sub, cfg)
	if !ok {
		return r.create(ctx, sub)
	}

	release, err := r.locker.Acquire(ctx, lockKey(sub.ModuleID, matchFields))
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := release(ctx); err != nil {
			r.logger.WarnContext(ctx, "Failed to release dedupe lock", "error", err)
		}
	}()

	existing, err := r.records.FindByFields(ctx, sub.ModuleID, matchFields)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return r.create(ctx, sub)
		}

		return nil, fmt.Errorf("failed to look up dedupe match: %w", err)
	}

	switch cfg.Strategy {
	case models.DedupeSkip:
		r.logger.InfoContext(ctx, "Skipped duplicate submission",
			"module_id", sub.ModuleID, "record_id", existing.ID)

		return &Resolution{Record: existing, Skipped: true}, nil

	case models.DedupeUpdate:
		return r.update(ctx, sub, existing)

	case models.DedupeCreateDuplicate:
		return r.create(ctx, sub)
	}

	return nil, fmt.Errorf("unknown dedupe strategy %q", cfg.Strategy)
}

func (r *Resolver) create(ctx context.Context, sub Submission) (*Resolution, error) {
	recordID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record ID: %w", err)
	}

	record := &models.Record{
		ID:       recordID.String(),
		ModuleID: sub.ModuleID,
		Data:     make(map[string]any, len(sub.Fields)),
	}

	applyFields(record, sub.Fields)

	if err := r.records.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create record from submission: %w", err)
	}

	r.logger.InfoContext(ctx, "Created record from submission",
		"module_id", sub.ModuleID, "record_id", record.ID, "webform_id", sub.WebformID)

	return &Resolution{
		Record: record,
		IsNew:  true,
		Event:  r.event(models.EventRecordCreated, sub, record, nil, nil),
	}, nil
}

func (r *Resolver) update(ctx context.Context, sub Submission, existing *models.Record) (*Resolution, error) {
	before := existing.Clone()

	applyFields(existing, sub.Fields)

	if err := r.records.SaveRecord(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to merge submission into record: %w", err)
	}

	changed := make([]string, 0, len(sub.Fields))
	for field := range sub.Fields {
		changed = append(changed, field)
	}

	sort.Strings(changed)

	r.logger.InfoContext(ctx, "Merged submission into existing record",
		"module_id", sub.ModuleID, "record_id", existing.ID)

	return &Resolution{
		Record: existing,
		Event:  r.event(models.EventRecordUpdated, sub, existing, before, changed),
	}, nil
}

func (r *Resolver) event(eventType models.EventType, sub Submission, record, old *models.Record, changed []string) *models.RecordEvent {
	eventID, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails when the entropy source does; fall back to
		// an empty ID rather than dropping the event.
		r.logger.Warn("Failed to generate event ID", "error", err)
	}

	return &models.RecordEvent{
		ID:            eventID.String(),
		Type:          eventType,
		ModuleID:      sub.ModuleID,
		Record:        record,
		OldRecord:     old,
		ChangedFields: changed,
		WebformID:     sub.WebformID,
		OccurredAt:    time.Now().UTC(),
	}
}

// dedupeFields extracts the configured match fields from the submission.
// Dedupe only applies when enabled and every configured field is present.
func dedupeFields(sub Submission, cfg models.DedupeConfig) (map[string]any, bool) {
	if !cfg.Enabled || len(cfg.Fields) == 0 {
		return nil, false
	}

	fields := make(map[string]any, len(cfg.Fields))

	for _, name := range cfg.Fields {
		value, ok := sub.Fields[name]
		if !ok {
			return nil, false
		}

		fields[name] = value
	}

	return fields, true
}

func applyFields(record *models.Record, fields map[string]any) {
	for name, value := range fields {
		switch name {
		case models.FieldOwnerID:
			record.OwnerID, _ = value.(string)
		case models.FieldStage:
			record.Stage, _ = value.(string)
		default:
			if record.Data == nil {
				record.Data = make(map[string]any)
			}

			record.Data[name] = value
		}
	}
}

// lockKey builds a deterministic key from the module and the match field
// values.
func lockKey(moduleID string, fields map[string]any) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}

	sort.Strings(names)

	var b strings.Builder

	b.WriteString(moduleID)

	for _, name := range names {
		fmt.Fprintf(&b, "|%s=%v", name, fields[name])
	}

	return b.String()
}

func validatePayload(sub Submission) error {
	if sub.Schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(sub.Schema),
		gojsonschema.NewGoLoader(sub.Fields),
	)
	if err != nil {
		return fmt.Errorf("failed to validate submission: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidSubmission, strings.Join(details, "; "))
}
