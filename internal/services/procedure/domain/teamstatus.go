package domain

import (
	"context"

	"github.com/firmdesk/firmdesk/internal/platform/requestctx"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

// TeamStatusReport is the per-run status board: one row per action run plus
// a progress summary derived on read.
type TeamStatusReport struct {
	Run   storage.RunRecord
	Rows  []storage.TeamStatusRow
	Done  int
	Total int
}

// TeamStatus aggregates every action run of the run with assignee, action
// and status, ordered by (surname, given name, action id).
func (s *Service) TeamStatus(ctx context.Context, identity requestctx.Identity, runID string) (TeamStatusReport, error) {
	run, err := s.runs.GetRun(ctx, identity.TenantID, runID)
	if err != nil {
		return TeamStatusReport{}, mapStorageError(err)
	}
	rows, err := s.runs.ListTeamStatus(ctx, identity.TenantID, runID)
	if err != nil {
		return TeamStatusReport{}, mapStorageError(err)
	}

	report := TeamStatusReport{Run: run, Rows: rows, Total: len(rows)}
	for _, row := range rows {
		if row.Terminal {
			report.Done++
		}
	}
	return report, nil
}

// Team loads the run's roster ordered by surname then given name.
func (s *Service) Team(ctx context.Context, identity requestctx.Identity, runID string) (storage.TeamRecord, []storage.TeamMemberView, error) {
	team, members, err := s.runs.GetTeamByRun(ctx, identity.TenantID, runID)
	if err != nil {
		return storage.TeamRecord{}, nil, mapStorageError(err)
	}
	return team, members, nil
}
