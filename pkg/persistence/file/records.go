package file

import (
	"context"
	"reflect"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

const kindRecords = "records"

// RecordRepository stores business records as JSON files keyed by
// module__id.
type RecordRepository struct {
	p *Persistence
}

func recordKey(moduleID, id string) string {
	return moduleID + "__" + id
}

func (r *RecordRepository) GetRecord(ctx context.Context, moduleID, id string) (*models.Record, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var rec models.Record
	if err := r.p.readEntity(kindRecords, recordKey(moduleID, id), &rec, persistence.ErrRecordNotFound); err != nil {
		return nil, err
	}

	return &rec, nil
}

func (r *RecordRepository) SaveRecord(ctx context.Context, record *models.Record) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeEntity(kindRecords, recordKey(record.ModuleID, record.ID), record)
}

func (r *RecordRepository) FindByFields(ctx context.Context, moduleID string, fields map[string]any) (*models.Record, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	ids, err := r.p.listIDs(kindRecords)
	if err != nil {
		return nil, err
	}

	for _, key := range ids {
		var rec models.Record
		if err := r.p.readEntity(kindRecords, key, &rec, persistence.ErrRecordNotFound); err != nil {
			return nil, err
		}

		if rec.ModuleID != moduleID {
			continue
		}

		if matchesFields(&rec, fields) {
			return &rec, nil
		}
	}

	return nil, persistence.ErrRecordNotFound
}

func matchesFields(rec *models.Record, fields map[string]any) bool {
	for field, want := range fields {
		got, ok := rec.FieldValue(field)
		if !ok {
			return false
		}

		if !reflect.DeepEqual(got, want) {
			return false
		}
	}

	return len(fields) > 0
}
