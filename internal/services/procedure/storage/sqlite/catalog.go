package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

// ListTemplates lists the global standard template catalog ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]storage.TemplateRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name
FROM procedure_templates
ORDER BY name ASC, id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var results []storage.TemplateRecord
	for rows.Next() {
		var record storage.TemplateRecord
		if err := rows.Scan(&record.ID, &record.Name); err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate template rows: %w", err)
	}
	return results, nil
}

// GetTemplate loads one global template by id.
func (s *Store) GetTemplate(ctx context.Context, templateID string) (storage.TemplateRecord, error) {
	if err := s.ready(); err != nil {
		return storage.TemplateRecord{}, err
	}
	var record storage.TemplateRecord
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name FROM procedure_templates WHERE id = ?
`, strings.TrimSpace(templateID)).Scan(&record.ID, &record.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TemplateRecord{}, storage.ErrNotFound
		}
		return storage.TemplateRecord{}, fmt.Errorf("get template: %w", err)
	}
	return record, nil
}

// PutTemplate inserts one global template row. Used by seeding and tests.
func (s *Store) PutTemplate(ctx context.Context, record storage.TemplateRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO procedure_templates (id, name) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name
`, record.ID, record.Name)
	if err != nil {
		return fmt.Errorf("put template: %w", err)
	}
	return nil
}

func scanTenantProcedure(scan scanner) (storage.TenantProcedureRecord, error) {
	var record storage.TenantProcedureRecord
	var createdAt, updatedAt int64
	if err := scan(
		&record.ID,
		&record.SourceTemplateID,
		&record.TenantID,
		&record.Name,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.TenantProcedureRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListTenantProcedures lists one tenant's customized procedures.
func (s *Store) ListTenantProcedures(ctx context.Context, tenantID string) ([]storage.TenantProcedureRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, source_template_id, tenant_id, name, created_at, updated_at
FROM tenant_procedures
WHERE tenant_id = ?
ORDER BY name ASC, id ASC
`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant procedures: %w", err)
	}
	defer rows.Close()

	var results []storage.TenantProcedureRecord
	for rows.Next() {
		record, scanErr := scanTenantProcedure(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan tenant procedure row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant procedure rows: %w", err)
	}
	return results, nil
}

// GetTenantProcedure loads one procedure scoped to the caller's tenant.
func (s *Store) GetTenantProcedure(ctx context.Context, tenantID, procedureID string) (storage.TenantProcedureRecord, error) {
	if err := s.ready(); err != nil {
		return storage.TenantProcedureRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, source_template_id, tenant_id, name, created_at, updated_at
FROM tenant_procedures
WHERE tenant_id = ? AND id = ?
`, tenantID, procedureID)
	record, err := scanTenantProcedure(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TenantProcedureRecord{}, storage.ErrNotFound
		}
		return storage.TenantProcedureRecord{}, fmt.Errorf("get tenant procedure: %w", err)
	}
	return record, nil
}

// PutTenantProcedure inserts one tenant procedure row.
func (s *Store) PutTenantProcedure(ctx context.Context, record storage.TenantProcedureRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO tenant_procedures (id, source_template_id, tenant_id, name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.SourceTemplateID,
		record.TenantID,
		record.Name,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		if isForeignKeyConstraintError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("put tenant procedure: %w", err)
	}
	return nil
}

// RenameTenantProcedure renames one tenant-owned procedure.
func (s *Store) RenameTenantProcedure(ctx context.Context, tenantID, procedureID, name string, updatedAt time.Time) (storage.TenantProcedureRecord, error) {
	if err := s.ready(); err != nil {
		return storage.TenantProcedureRecord{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE tenant_procedures
SET name = ?, updated_at = ?
WHERE tenant_id = ? AND id = ?
`, name, toMillis(updatedAt), tenantID, procedureID)
	if err != nil {
		return storage.TenantProcedureRecord{}, fmt.Errorf("rename tenant procedure: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.TenantProcedureRecord{}, fmt.Errorf("rename tenant procedure rows affected: %w", err)
	}
	if affected == 0 {
		return storage.TenantProcedureRecord{}, storage.ErrNotFound
	}
	return s.GetTenantProcedure(ctx, tenantID, procedureID)
}

func scanProcess(scan scanner) (storage.ProcessRecord, error) {
	var record storage.ProcessRecord
	var createdAt, updatedAt int64
	if err := scan(
		&record.ID,
		&record.TenantProcedureID,
		&record.Name,
		&record.SequenceOrder,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.ProcessRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListProcesses lists the processes of one tenant-owned procedure in sequence order.
func (s *Store) ListProcesses(ctx context.Context, tenantID, procedureID string) ([]storage.ProcessRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT p.id, p.tenant_procedure_id, p.name, p.sequence_order, p.created_at, p.updated_at
FROM processes p
JOIN tenant_procedures tp ON tp.id = p.tenant_procedure_id
WHERE tp.tenant_id = ? AND tp.id = ?
ORDER BY p.sequence_order ASC, p.id ASC
`, tenantID, procedureID)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	var results []storage.ProcessRecord
	for rows.Next() {
		record, scanErr := scanProcess(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan process row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate process rows: %w", err)
	}
	return results, nil
}

// GetProcess loads one process via the process → procedure → tenant join chain.
func (s *Store) GetProcess(ctx context.Context, tenantID, processID string) (storage.ProcessRecord, error) {
	if err := s.ready(); err != nil {
		return storage.ProcessRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT p.id, p.tenant_procedure_id, p.name, p.sequence_order, p.created_at, p.updated_at
FROM processes p
JOIN tenant_procedures tp ON tp.id = p.tenant_procedure_id
WHERE tp.tenant_id = ? AND p.id = ?
`, tenantID, processID)
	record, err := scanProcess(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProcessRecord{}, storage.ErrNotFound
		}
		return storage.ProcessRecord{}, fmt.Errorf("get process: %w", err)
	}
	return record, nil
}

// PutProcess inserts one process after verifying the procedure belongs to the tenant.
func (s *Store) PutProcess(ctx context.Context, tenantID string, record storage.ProcessRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.GetTenantProcedure(ctx, tenantID, record.TenantProcedureID); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO processes (id, tenant_procedure_id, name, sequence_order, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.TenantProcedureID,
		record.Name,
		record.SequenceOrder,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put process: %w", err)
	}
	return nil
}

// RenameProcess renames one process inside the tenant's join chain.
func (s *Store) RenameProcess(ctx context.Context, tenantID, processID, name string, updatedAt time.Time) (storage.ProcessRecord, error) {
	if err := s.ready(); err != nil {
		return storage.ProcessRecord{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE processes
SET name = ?, updated_at = ?
WHERE id = ? AND tenant_procedure_id IN (
    SELECT id FROM tenant_procedures WHERE tenant_id = ?
)
`, name, toMillis(updatedAt), processID, tenantID)
	if err != nil {
		return storage.ProcessRecord{}, fmt.Errorf("rename process: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.ProcessRecord{}, fmt.Errorf("rename process rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ProcessRecord{}, storage.ErrNotFound
	}
	return s.GetProcess(ctx, tenantID, processID)
}

func scanAction(scan scanner) (storage.ActionRecord, error) {
	var record storage.ActionRecord
	var createdAt, updatedAt int64
	if err := scan(
		&record.ID,
		&record.ProcessID,
		&record.Name,
		&record.Description,
		&record.DefaultRoleID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.ActionRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListActions lists the actions of one process inside the tenant's join chain.
func (s *Store) ListActions(ctx context.Context, tenantID, processID string) ([]storage.ActionRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT a.id, a.process_id, a.name, a.description, a.default_role_id, a.created_at, a.updated_at
FROM actions a
JOIN processes p ON p.id = a.process_id
JOIN tenant_procedures tp ON tp.id = p.tenant_procedure_id
WHERE tp.tenant_id = ? AND p.id = ?
ORDER BY a.id ASC
`, tenantID, processID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var results []storage.ActionRecord
	for rows.Next() {
		record, scanErr := scanAction(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan action row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return results, nil
}

// GetAction loads one action via the action → process → procedure → tenant join chain.
func (s *Store) GetAction(ctx context.Context, tenantID, actionID string) (storage.ActionRecord, error) {
	if err := s.ready(); err != nil {
		return storage.ActionRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT a.id, a.process_id, a.name, a.description, a.default_role_id, a.created_at, a.updated_at
FROM actions a
JOIN processes p ON p.id = a.process_id
JOIN tenant_procedures tp ON tp.id = p.tenant_procedure_id
WHERE tp.tenant_id = ? AND a.id = ?
`, tenantID, actionID)
	record, err := scanAction(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ActionRecord{}, storage.ErrNotFound
		}
		return storage.ActionRecord{}, fmt.Errorf("get action: %w", err)
	}
	return record, nil
}

// PutAction inserts one action after verifying the process belongs to the tenant.
func (s *Store) PutAction(ctx context.Context, tenantID string, record storage.ActionRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.GetProcess(ctx, tenantID, record.ProcessID); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO actions (id, process_id, name, description, default_role_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.ProcessID,
		record.Name,
		record.Description,
		record.DefaultRoleID,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put action: %w", err)
	}
	return nil
}

// UpdateAction updates one action's mutable fields inside the tenant's join chain.
func (s *Store) UpdateAction(ctx context.Context, tenantID string, record storage.ActionRecord) (storage.ActionRecord, error) {
	if err := s.ready(); err != nil {
		return storage.ActionRecord{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE actions
SET name = ?, description = ?, default_role_id = ?, updated_at = ?
WHERE id = ? AND process_id IN (
    SELECT p.id
    FROM processes p
    JOIN tenant_procedures tp ON tp.id = p.tenant_procedure_id
    WHERE tp.tenant_id = ?
)
`,
		record.Name,
		record.Description,
		record.DefaultRoleID,
		toMillis(record.UpdatedAt),
		record.ID,
		tenantID,
	)
	if err != nil {
		return storage.ActionRecord{}, fmt.Errorf("update action: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.ActionRecord{}, fmt.Errorf("update action rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ActionRecord{}, storage.ErrNotFound
	}
	return s.GetAction(ctx, tenantID, record.ID)
}

// ListProcedureActions flattens every action of the procedure across its
// processes, ordered by (process sequence, action id).
func (s *Store) ListProcedureActions(ctx context.Context, tenantID, procedureID string) ([]storage.ActionRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT a.id, a.process_id, a.name, a.description, a.default_role_id, a.created_at, a.updated_at
FROM actions a
JOIN processes p ON p.id = a.process_id
JOIN tenant_procedures tp ON tp.id = p.tenant_procedure_id
WHERE tp.tenant_id = ? AND tp.id = ?
ORDER BY p.sequence_order ASC, a.id ASC
`, tenantID, procedureID)
	if err != nil {
		return nil, fmt.Errorf("list procedure actions: %w", err)
	}
	defer rows.Close()

	var results []storage.ActionRecord
	for rows.Next() {
		record, scanErr := scanAction(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan procedure action row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate procedure action rows: %w", err)
	}
	return results, nil
}
