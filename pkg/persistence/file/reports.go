package file

import (
	"context"
	"sort"

	"github.com/rulegate/rulegate/pkg/models"
	"github.com/rulegate/rulegate/pkg/persistence"
)

const kindReports = "reports"

// ReportRepository stores execution reports as JSON files.
type ReportRepository struct {
	p *Persistence
}

func (r *ReportRepository) SaveReport(ctx context.Context, report *models.ExecutionReport) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.writeEntity(kindReports, report.ID, report)
}

func (r *ReportRepository) ReportByID(ctx context.Context, id string) (*models.ExecutionReport, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var report models.ExecutionReport
	if err := r.p.readEntity(kindReports, id, &report, persistence.ErrReportNotFound); err != nil {
		return nil, err
	}

	return &report, nil
}

func (r *ReportRepository) ListReportsByRecord(ctx context.Context, moduleID, recordID string) ([]*models.ExecutionReport, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	ids, err := r.p.listIDs(kindReports)
	if err != nil {
		return nil, err
	}

	var reports []*models.ExecutionReport

	for _, id := range ids {
		var report models.ExecutionReport
		if err := r.p.readEntity(kindReports, id, &report, persistence.ErrReportNotFound); err != nil {
			return nil, err
		}

		if report.ModuleID == moduleID && report.RecordID == recordID {
			reports = append(reports, &report)
		}
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].StartedAt.Before(reports[j].StartedAt)
	})

	return reports, nil
}
