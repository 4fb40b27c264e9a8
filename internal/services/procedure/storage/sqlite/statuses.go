package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

func scanStatus(scan scanner) (storage.StatusRecord, error) {
	var record storage.StatusRecord
	var isDefault, isTerminal int
	if err := scan(
		&record.ID,
		&record.Name,
		&record.Color,
		&record.TenantID,
		&isDefault,
		&isTerminal,
	); err != nil {
		return storage.StatusRecord{}, err
	}
	record.Default = isDefault == 1
	record.Terminal = isTerminal == 1
	return record, nil
}

// ListVisibleStatuses lists global statuses plus the tenant's own definitions.
func (s *Store) ListVisibleStatuses(ctx context.Context, tenantID string) ([]storage.StatusRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, color, tenant_id, is_default, is_terminal
FROM status_definitions
WHERE tenant_id = '' OR tenant_id = ?
ORDER BY id ASC
`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list visible statuses: %w", err)
	}
	defer rows.Close()

	var results []storage.StatusRecord
	for rows.Next() {
		record, scanErr := scanStatus(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan status row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status rows: %w", err)
	}
	return results, nil
}

// GetStatus loads one status definition by id without tenant filtering.
// Visibility decisions belong to the caller.
func (s *Store) GetStatus(ctx context.Context, statusID string) (storage.StatusRecord, error) {
	if err := s.ready(); err != nil {
		return storage.StatusRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, color, tenant_id, is_default, is_terminal
FROM status_definitions
WHERE id = ?
`, statusID)
	record, err := scanStatus(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.StatusRecord{}, storage.ErrNotFound
		}
		return storage.StatusRecord{}, fmt.Errorf("get status: %w", err)
	}
	return record, nil
}

// DefaultStatus returns the globally seeded default status.
func (s *Store) DefaultStatus(ctx context.Context) (storage.StatusRecord, error) {
	if err := s.ready(); err != nil {
		return storage.StatusRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, color, tenant_id, is_default, is_terminal
FROM status_definitions
WHERE is_default = 1 AND tenant_id = ''
ORDER BY id ASC
LIMIT 1
`)
	record, err := scanStatus(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.StatusRecord{}, storage.ErrNotFound
		}
		return storage.StatusRecord{}, fmt.Errorf("get default status: %w", err)
	}
	return record, nil
}

// ListTransitionRules lists the tenant's allowed (from → to) status pairs.
// An empty result means the tenant runs unconstrained.
func (s *Store) ListTransitionRules(ctx context.Context, tenantID string) ([]storage.TransitionRuleRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT tenant_id, from_status_id, to_status_id
FROM status_transition_rules
WHERE tenant_id = ?
ORDER BY from_status_id ASC, to_status_id ASC
`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list transition rules: %w", err)
	}
	defer rows.Close()

	var results []storage.TransitionRuleRecord
	for rows.Next() {
		var record storage.TransitionRuleRecord
		if err := rows.Scan(&record.TenantID, &record.FromStatusID, &record.ToStatusID); err != nil {
			return nil, fmt.Errorf("scan transition rule row: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transition rule rows: %w", err)
	}
	return results, nil
}

// PutStatus inserts or updates one status definition. Used by seeding and tests.
func (s *Store) PutStatus(ctx context.Context, record storage.StatusRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	isDefault := 0
	if record.Default {
		isDefault = 1
	}
	isTerminal := 0
	if record.Terminal {
		isTerminal = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO status_definitions (id, name, color, tenant_id, is_default, is_terminal)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    color = excluded.color,
    tenant_id = excluded.tenant_id,
    is_default = excluded.is_default,
    is_terminal = excluded.is_terminal
`, record.ID, record.Name, record.Color, record.TenantID, isDefault, isTerminal)
	if err != nil {
		return fmt.Errorf("put status: %w", err)
	}
	return nil
}

// PutTransitionRule inserts one allowed (from → to) pair for a tenant.
func (s *Store) PutTransitionRule(ctx context.Context, record storage.TransitionRuleRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO status_transition_rules (tenant_id, from_status_id, to_status_id)
VALUES (?, ?, ?)
`, record.TenantID, record.FromStatusID, record.ToStatusID)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("put transition rule: %w", err)
	}
	return nil
}
