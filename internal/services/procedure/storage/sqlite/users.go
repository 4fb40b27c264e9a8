package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

// GetUser loads one user from the read-side identity replica.
func (s *Store) GetUser(ctx context.Context, userID string) (storage.UserRecord, error) {
	if err := s.ready(); err != nil {
		return storage.UserRecord{}, err
	}
	var record storage.UserRecord
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, tenant_id, name, surname, email
FROM users
WHERE id = ?
`, userID).Scan(&record.ID, &record.TenantID, &record.Name, &record.Surname, &record.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UserRecord{}, storage.ErrNotFound
		}
		return storage.UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	return record, nil
}

// PutUser upserts one user into the replica. Last write wins.
func (s *Store) PutUser(ctx context.Context, record storage.UserRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, tenant_id, name, surname, email)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    tenant_id = excluded.tenant_id,
    name = excluded.name,
    surname = excluded.surname,
    email = excluded.email
`, record.ID, record.TenantID, record.Name, record.Surname, record.Email)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}
