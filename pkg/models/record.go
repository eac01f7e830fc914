// Package models defines the core domain models for the automation and
// approval rule engine.
package models

import "time"

// System field names addressable from conditions alongside free-form data
// fields.
const (
	FieldID      = "id"
	FieldOwnerID = "owner_id"
	FieldStage   = "stage"
)

// Record is one business record of a tenant module. System fields live on the
// struct; everything tenant-defined lives in Data.
type Record struct {
	ID        string         `json:"id"`
	ModuleID  string         `json:"module_id"`
	OwnerID   string         `json:"owner_id"`
	Stage     string         `json:"stage,omitempty"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// FieldValue resolves a field by name, checking system fields before the data
// blob. The second return reports whether the field is present at all; an
// explicit nil in Data counts as present.
func (r *Record) FieldValue(field string) (any, bool) {
	switch field {
	case FieldID:
		return r.ID, true
	case FieldOwnerID:
		return r.OwnerID, true
	case FieldStage:
		return r.Stage, true
	}

	if r.Data == nil {
		return nil, false
	}

	v, ok := r.Data[field]

	return v, ok
}

// Clone returns a deep-enough copy for snapshotting: the data map is copied,
// values are shared.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cp := *r
	cp.Data = make(map[string]any, len(r.Data))

	for k, v := range r.Data {
		cp.Data[k] = v
	}

	return &cp
}

// Actor is the authenticated principal performing a decision, delegation or
// macro run. Authentication itself is out of scope; callers hand a resolved
// actor to the engine.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the actor holds the named role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}

	return false
}

// FieldType is the declared type of a tenant field, used to restrict which
// condition operators may target it.
type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
)
