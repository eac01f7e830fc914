package file

import (
	"context"
	"sort"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

const (
	kindDefinitions = "definitions"
	kindProcesses   = "processes"
)

// DefinitionRepository stores automation and approval process definitions as
// JSON files.
type DefinitionRepository struct {
	p *Persistence
}

func (r *DefinitionRepository) ListAutomations(ctx context.Context, moduleID string) ([]*models.AutomationDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	ids, err := r.p.listIDs(kindDefinitions)
	if err != nil {
		return nil, err
	}

	defs := make([]*models.AutomationDefinition, 0, len(ids))

	for _, id := range ids {
		var def models.AutomationDefinition
		if err := r.p.readEntity(kindDefinitions, id, &def, persistence.ErrDefinitionNotFound); err != nil {
			return nil, err
		}

		if moduleID == "" || def.ModuleID == moduleID {
			defs = append(defs, &def)
		}
	}

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].CreatedAt.Before(defs[j].CreatedAt)
	})

	return defs, nil
}

func (r *DefinitionRepository) AutomationByID(ctx context.Context, id string) (*models.AutomationDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var def models.AutomationDefinition
	if err := r.p.readEntity(kindDefinitions, id, &def, persistence.ErrDefinitionNotFound); err != nil {
		return nil, err
	}

	return &def, nil
}

func (r *DefinitionRepository) SaveAutomation(ctx context.Context, def *models.AutomationDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeEntity(kindDefinitions, def.ID, def)
}

func (r *DefinitionRepository) ListApprovalProcesses(ctx context.Context, moduleID string) ([]*models.ApprovalProcessDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	ids, err := r.p.listIDs(kindProcesses)
	if err != nil {
		return nil, err
	}

	defs := make([]*models.ApprovalProcessDefinition, 0, len(ids))

	for _, id := range ids {
		var def models.ApprovalProcessDefinition
		if err := r.p.readEntity(kindProcesses, id, &def, persistence.ErrProcessNotFound); err != nil {
			return nil, err
		}

		if moduleID == "" || def.ModuleID == moduleID {
			defs = append(defs, &def)
		}
	}

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].CreatedAt.Before(defs[j].CreatedAt)
	})

	return defs, nil
}

func (r *DefinitionRepository) ApprovalProcessByID(ctx context.Context, id string) (*models.ApprovalProcessDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var def models.ApprovalProcessDefinition
	if err := r.p.readEntity(kindProcesses, id, &def, persistence.ErrProcessNotFound); err != nil {
		return nil, err
	}

	return &def, nil
}

func (r *DefinitionRepository) SaveApprovalProcess(ctx context.Context, def *models.ApprovalProcessDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeEntity(kindProcesses, def.ID, def)
}
