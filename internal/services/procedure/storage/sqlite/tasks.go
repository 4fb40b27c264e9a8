package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

const taskViewSelect = `
SELECT t.id, t.tenant_id, t.title, t.description, t.due_date, t.creator_id, t.assignee_id, t.action_run_id, t.status, t.created_at, t.updated_at,
       COALESCE(u.name, ''), COALESCE(u.surname, '')
FROM tasks t
LEFT JOIN users u ON u.id = t.assignee_id
`

func scanTaskView(scan scanner) (storage.TaskView, error) {
	var view storage.TaskView
	var dueDate sql.NullInt64
	var createdAt, updatedAt int64
	if err := scan(
		&view.ID,
		&view.TenantID,
		&view.Title,
		&view.Description,
		&dueDate,
		&view.CreatorID,
		&view.AssigneeID,
		&view.ActionRunID,
		&view.Status,
		&createdAt,
		&updatedAt,
		&view.AssigneeName,
		&view.AssigneeSurname,
	); err != nil {
		return storage.TaskView{}, err
	}
	view.DueDate = fromNullMillis(dueDate)
	view.CreatedAt = fromMillis(createdAt)
	view.UpdatedAt = fromMillis(updatedAt)
	return view, nil
}

func (s *Store) queryTaskViews(ctx context.Context, query string, args ...any) ([]storage.TaskView, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var results []storage.TaskView
	for rows.Next() {
		view, scanErr := scanTaskView(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan task row: %w", scanErr)
		}
		results = append(results, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return results, nil
}

// ListUpcomingByAssignee lists one user's open tasks due on or after the
// cutoff, soonest first. Tasks without a due date sort last.
func (s *Store) ListUpcomingByAssignee(ctx context.Context, assigneeID string, from time.Time, limit int) ([]storage.TaskView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.queryTaskViews(ctx, taskViewSelect+`
WHERE t.assignee_id = ?
  AND t.status = ?
  AND (t.due_date IS NULL OR t.due_date >= ?)
ORDER BY t.due_date IS NULL ASC, t.due_date ASC, t.id ASC
LIMIT ?
`, assigneeID, storage.TaskStatusOpen, toMillis(from), limit)
}

// ListUpcomingByTenant lists a tenant's open tasks due on or after the
// cutoff across every assignee, soonest first then by assignee surname.
func (s *Store) ListUpcomingByTenant(ctx context.Context, tenantID string, from time.Time, limit int) ([]storage.TaskView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.queryTaskViews(ctx, taskViewSelect+`
WHERE t.tenant_id = ?
  AND t.status = ?
  AND (t.due_date IS NULL OR t.due_date >= ?)
ORDER BY t.due_date IS NULL ASC, t.due_date ASC, u.surname ASC, t.id ASC
LIMIT ?
`, tenantID, storage.TaskStatusOpen, toMillis(from), limit)
}

// ListByMonth lists a tenant's tasks with a due date inside [from, to),
// regardless of status.
func (s *Store) ListByMonth(ctx context.Context, tenantID string, from, to time.Time) ([]storage.TaskView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.queryTaskViews(ctx, taskViewSelect+`
WHERE t.tenant_id = ?
  AND t.due_date IS NOT NULL
  AND t.due_date >= ?
  AND t.due_date < ?
ORDER BY t.due_date ASC, t.id ASC
`, tenantID, toMillis(from), toMillis(to))
}

// PutTask inserts one standalone task row. Used by tests and manual tasks.
func (s *Store) PutTask(ctx context.Context, record storage.TaskRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := insertTask(ctx, s.sqlDB, record); err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put task: %w", err)
	}
	return nil
}
