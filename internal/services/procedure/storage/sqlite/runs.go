package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

func scanRun(scan scanner) (storage.RunRecord, error) {
	var record storage.RunRecord
	var startedAt int64
	var dueDate sql.NullInt64
	if err := scan(
		&record.ID,
		&record.TenantID,
		&record.TenantProcedureID,
		&record.TargetEntityID,
		&record.CreatorID,
		&record.IdempotencyKey,
		&startedAt,
		&dueDate,
	); err != nil {
		return storage.RunRecord{}, err
	}
	record.StartedAt = fromMillis(startedAt)
	record.DueDate = fromNullMillis(dueDate)
	return record, nil
}

// CreateRunGraph persists a run, its action runs, their mirrored tasks, the
// team and every membership inside a single transaction. A duplicate
// idempotency key surfaces as storage.ErrConflict with nothing written.
func (s *Store) CreateRunGraph(ctx context.Context, graph storage.RunGraph) error {
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run graph tx: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", cause, rbErr)
		}
		return cause
	}

	run := graph.Run
	if _, err := tx.ExecContext(ctx, `
INSERT INTO procedure_runs (id, tenant_id, tenant_procedure_id, target_entity_id, creator_id, idempotency_key, started_at, due_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		run.ID,
		run.TenantID,
		run.TenantProcedureID,
		run.TargetEntityID,
		run.CreatorID,
		run.IdempotencyKey,
		toMillis(run.StartedAt),
		toNullMillis(run.DueDate),
	); err != nil {
		if isUniqueConstraintError(err) {
			return rollbackWith(storage.ErrConflict)
		}
		return rollbackWith(fmt.Errorf("insert run: %w", err))
	}

	for _, actionRun := range graph.ActionRuns {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO action_runs (id, run_id, action_id, assignee_user_id, due_date, status_id, notes, completed_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			actionRun.ID,
			actionRun.RunID,
			actionRun.ActionID,
			actionRun.AssigneeUserID,
			toNullMillis(actionRun.DueDate),
			actionRun.StatusID,
			actionRun.Notes,
			toNullMillis(actionRun.CompletedAt),
			toMillis(actionRun.CreatedAt),
			toMillis(actionRun.UpdatedAt),
		); err != nil {
			return rollbackWith(fmt.Errorf("insert action run %s: %w", actionRun.ID, err))
		}
	}

	for _, task := range graph.Tasks {
		if err := insertTask(ctx, tx, task); err != nil {
			return rollbackWith(fmt.Errorf("insert task %s: %w", task.ID, err))
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO teams (id, run_id, name) VALUES (?, ?, ?)
`, graph.Team.ID, graph.Team.RunID, graph.Team.Name); err != nil {
		return rollbackWith(fmt.Errorf("insert team: %w", err))
	}

	for _, member := range graph.Members {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO team_memberships (team_id, user_id) VALUES (?, ?)
`, member.TeamID, member.UserID); err != nil {
			return rollbackWith(fmt.Errorf("insert team membership %s: %w", member.UserID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run graph tx: %w", err)
	}
	return nil
}

func insertTask(ctx context.Context, execer sqlExecer, task storage.TaskRecord) error {
	_, err := execer.ExecContext(ctx, `
INSERT INTO tasks (id, tenant_id, title, description, due_date, creator_id, assignee_id, action_run_id, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		task.ID,
		task.TenantID,
		task.Title,
		task.Description,
		toNullMillis(task.DueDate),
		task.CreatorID,
		task.AssigneeID,
		task.ActionRunID,
		task.Status,
		toMillis(task.CreatedAt),
		toMillis(task.UpdatedAt),
	)
	return err
}

// GetRun loads one run scoped to the caller's tenant.
func (s *Store) GetRun(ctx context.Context, tenantID, runID string) (storage.RunRecord, error) {
	if err := s.ready(); err != nil {
		return storage.RunRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, tenant_id, tenant_procedure_id, target_entity_id, creator_id, idempotency_key, started_at, due_date
FROM procedure_runs
WHERE tenant_id = ? AND id = ?
`, tenantID, runID)
	record, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RunRecord{}, storage.ErrNotFound
		}
		return storage.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return record, nil
}

// GetRunByIdempotencyKey loads the run previously created under the key.
func (s *Store) GetRunByIdempotencyKey(ctx context.Context, tenantID, key string) (storage.RunRecord, error) {
	if err := s.ready(); err != nil {
		return storage.RunRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, tenant_id, tenant_procedure_id, target_entity_id, creator_id, idempotency_key, started_at, due_date
FROM procedure_runs
WHERE tenant_id = ? AND idempotency_key = ? AND idempotency_key <> ''
`, tenantID, key)
	record, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RunRecord{}, storage.ErrNotFound
		}
		return storage.RunRecord{}, fmt.Errorf("get run by idempotency key: %w", err)
	}
	return record, nil
}

// ListRuns lists the tenant's runs newest first.
func (s *Store) ListRuns(ctx context.Context, tenantID string) ([]storage.RunRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, tenant_id, tenant_procedure_id, target_entity_id, creator_id, idempotency_key, started_at, due_date
FROM procedure_runs
WHERE tenant_id = ?
ORDER BY started_at DESC, id ASC
`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var results []storage.RunRecord
	for rows.Next() {
		record, scanErr := scanRun(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan run row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return results, nil
}

func scanActionRun(scan scanner) (storage.ActionRunRecord, error) {
	var record storage.ActionRunRecord
	var dueDate, completedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := scan(
		&record.ID,
		&record.RunID,
		&record.TenantID,
		&record.ActionID,
		&record.AssigneeUserID,
		&dueDate,
		&record.StatusID,
		&record.Notes,
		&completedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.ActionRunRecord{}, err
	}
	record.DueDate = fromNullMillis(dueDate)
	record.CompletedAt = fromNullMillis(completedAt)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

const actionRunSelect = `
SELECT ar.id, ar.run_id, pr.tenant_id, ar.action_id, ar.assignee_user_id, ar.due_date, ar.status_id, ar.notes, ar.completed_at, ar.created_at, ar.updated_at
FROM action_runs ar
JOIN procedure_runs pr ON pr.id = ar.run_id
`

// GetActionRun loads one action run with the owning run's tenant attached.
func (s *Store) GetActionRun(ctx context.Context, actionRunID string) (storage.ActionRunRecord, error) {
	if err := s.ready(); err != nil {
		return storage.ActionRunRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, actionRunSelect+`WHERE ar.id = ?`, actionRunID)
	record, err := scanActionRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ActionRunRecord{}, storage.ErrNotFound
		}
		return storage.ActionRunRecord{}, fmt.Errorf("get action run: %w", err)
	}
	return record, nil
}

// UpdateActionRunStatus moves one action run to a new status and keeps the
// mirrored task row in step inside the same transaction.
func (s *Store) UpdateActionRunStatus(ctx context.Context, actionRunID, statusID string, completedAt *time.Time, taskStatus string, updatedAt time.Time) (storage.ActionRunRecord, error) {
	if err := s.ready(); err != nil {
		return storage.ActionRunRecord{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.ActionRunRecord{}, fmt.Errorf("begin status update tx: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", cause, rbErr)
		}
		return cause
	}

	result, err := tx.ExecContext(ctx, `
UPDATE action_runs
SET status_id = ?, completed_at = ?, updated_at = ?
WHERE id = ?
`, statusID, toNullMillis(completedAt), toMillis(updatedAt), actionRunID)
	if err != nil {
		return storage.ActionRunRecord{}, rollbackWith(fmt.Errorf("update action run status: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.ActionRunRecord{}, rollbackWith(fmt.Errorf("update action run rows affected: %w", err))
	}
	if affected == 0 {
		return storage.ActionRunRecord{}, rollbackWith(storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE tasks
SET status = ?, updated_at = ?
WHERE action_run_id = ?
`, taskStatus, toMillis(updatedAt), actionRunID); err != nil {
		return storage.ActionRunRecord{}, rollbackWith(fmt.Errorf("update mirrored task: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return storage.ActionRunRecord{}, fmt.Errorf("commit status update tx: %w", err)
	}
	return s.GetActionRun(ctx, actionRunID)
}

// UpdateActionRunNotes replaces one action run's free-form notes.
func (s *Store) UpdateActionRunNotes(ctx context.Context, actionRunID, notes string, updatedAt time.Time) (storage.ActionRunRecord, error) {
	if err := s.ready(); err != nil {
		return storage.ActionRunRecord{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE action_runs
SET notes = ?, updated_at = ?
WHERE id = ?
`, notes, toMillis(updatedAt), actionRunID)
	if err != nil {
		return storage.ActionRunRecord{}, fmt.Errorf("update action run notes: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.ActionRunRecord{}, fmt.Errorf("update action run notes rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ActionRunRecord{}, storage.ErrNotFound
	}
	return s.GetActionRun(ctx, actionRunID)
}

// GetTeamByRun loads the run's team and members ordered by surname then name.
func (s *Store) GetTeamByRun(ctx context.Context, tenantID, runID string) (storage.TeamRecord, []storage.TeamMemberView, error) {
	if err := s.ready(); err != nil {
		return storage.TeamRecord{}, nil, err
	}

	var team storage.TeamRecord
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT t.id, t.run_id, t.name
FROM teams t
JOIN procedure_runs pr ON pr.id = t.run_id
WHERE pr.tenant_id = ? AND t.run_id = ?
`, tenantID, runID).Scan(&team.ID, &team.RunID, &team.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TeamRecord{}, nil, storage.ErrNotFound
		}
		return storage.TeamRecord{}, nil, fmt.Errorf("get team by run: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT tm.user_id, COALESCE(u.name, ''), COALESCE(u.surname, '')
FROM team_memberships tm
LEFT JOIN users u ON u.id = tm.user_id
WHERE tm.team_id = ?
ORDER BY u.surname ASC, u.name ASC, tm.user_id ASC
`, team.ID)
	if err != nil {
		return storage.TeamRecord{}, nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	var members []storage.TeamMemberView
	for rows.Next() {
		var member storage.TeamMemberView
		if err := rows.Scan(&member.UserID, &member.Name, &member.Surname); err != nil {
			return storage.TeamRecord{}, nil, fmt.Errorf("scan team member row: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return storage.TeamRecord{}, nil, fmt.Errorf("iterate team member rows: %w", err)
	}
	return team, members, nil
}

// ListTeamStatus lists every action run of the run joined with assignee,
// action and status, ordered by assignee surname, name, then action id.
func (s *Store) ListTeamStatus(ctx context.Context, tenantID, runID string) ([]storage.TeamStatusRow, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.GetRun(ctx, tenantID, runID); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT ar.id, ar.action_id, a.name, ar.assignee_user_id,
       COALESCE(u.name, ''), COALESCE(u.surname, ''),
       ar.status_id, sd.name, sd.color, sd.is_terminal,
       ar.notes, ar.completed_at
FROM action_runs ar
JOIN actions a ON a.id = ar.action_id
JOIN status_definitions sd ON sd.id = ar.status_id
LEFT JOIN users u ON u.id = ar.assignee_user_id
WHERE ar.run_id = ?
ORDER BY u.surname ASC, u.name ASC, ar.action_id ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list team status: %w", err)
	}
	defer rows.Close()

	var results []storage.TeamStatusRow
	for rows.Next() {
		var row storage.TeamStatusRow
		var isTerminal int
		var completedAt sql.NullInt64
		if err := rows.Scan(
			&row.ActionRunID,
			&row.ActionID,
			&row.ActionName,
			&row.AssigneeUserID,
			&row.AssigneeName,
			&row.AssigneeSurname,
			&row.StatusID,
			&row.StatusName,
			&row.StatusColor,
			&isTerminal,
			&row.Notes,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan team status row: %w", err)
		}
		row.Terminal = isTerminal == 1
		row.CompletedAt = fromNullMillis(completedAt)
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team status rows: %w", err)
	}
	return results, nil
}
