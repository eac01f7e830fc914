// Package file provides a file-based persistence implementation, used for
// development and tests. A process-wide mutex makes the conditional approval
// transitions atomic within one process; production deployments use the
// postgresql implementation instead.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rulegate/rulegate/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory of
// JSON files.
type Persistence struct {
	root string
	mu   sync.RWMutex

	definitions *DefinitionRepository
	records     *RecordRepository
	approvals   *ApprovalRepository
	reports     *ReportRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.definitions = &DefinitionRepository{p: p}
	p.records = &RecordRepository{p: p}
	p.approvals = &ApprovalRepository{p: p}
	p.reports = &ReportRepository{p: p}

	return p
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return p.definitions }
func (p *Persistence) Records() persistence.RecordRepository         { return p.records }
func (p *Persistence) Approvals() persistence.ApprovalRepository     { return p.approvals }
func (p *Persistence) Reports() persistence.ReportRepository         { return p.reports }

// Close performs any necessary cleanup; nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) dir(kind string) string {
	return filepath.Join(p.root, kind)
}

func (p *Persistence) entityPath(kind, id string) string {
	return filepath.Join(p.root, kind, id+".json")
}

// readEntity loads one JSON entity; notFound is returned when the file does
// not exist. Callers must hold at least the read lock.
func (p *Persistence) readEntity(kind, id string, out any, notFound error) error {
	data, err := os.ReadFile(p.entityPath(kind, id))
	if os.IsNotExist(err) {
		return notFound
	}

	if err != nil {
		return fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}

	return nil
}

// writeEntity persists one JSON entity. Callers must hold the write lock.
func (p *Persistence) writeEntity(kind, id string, in any) error {
	if err := os.MkdirAll(p.dir(kind), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
	}

	if err := os.WriteFile(p.entityPath(kind, id), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

// listIDs returns the entity IDs present for a kind. Callers must hold at
// least the read lock.
func (p *Persistence) listIDs(kind string) ([]string, error) {
	root := os.DirFS(p.dir(kind))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", kind, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, f := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(f, ".json"))
	}

	return ids, nil
}
