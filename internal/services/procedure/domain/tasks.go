package domain

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/firmdesk/firmdesk/internal/platform/errors"
	"github.com/firmdesk/firmdesk/internal/platform/requestctx"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
	"github.com/firmdesk/firmdesk/internal/services/shared/authctx"
)

const (
	defaultTaskLimit = 50
	maxTaskLimit     = 200
)

func clampTaskLimit(limit int) int {
	if limit <= 0 {
		return defaultTaskLimit
	}
	if limit > maxTaskLimit {
		return maxTaskLimit
	}
	return limit
}

// today floors the clock to the UTC day boundary.
func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// MyUpcoming lists the caller's open tasks due today or later, soonest first.
func (s *Service) MyUpcoming(ctx context.Context, identity requestctx.Identity, limit int) ([]storage.TaskView, error) {
	tasks, err := s.tasks.ListUpcomingByAssignee(ctx, identity.UserID, s.today(), clampTaskLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list upcoming tasks: %w", err)
	}
	return tasks, nil
}

// TenantUpcoming lists the tenant's open tasks across every assignee.
// Requires the admin capability.
func (s *Service) TenantUpcoming(ctx context.Context, identity requestctx.Identity, limit int) ([]storage.TaskView, error) {
	if err := requireCapability(identity, authctx.CapabilityAdmin); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListUpcomingByTenant(ctx, identity.TenantID, s.today(), clampTaskLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list tenant tasks: %w", err)
	}
	return tasks, nil
}

// ByMonth lists every task of the tenant due inside the given calendar month.
func (s *Service) ByMonth(ctx context.Context, identity requestctx.Identity, year, month int) ([]storage.TaskView, error) {
	if month < 1 || month > 12 {
		return nil, apperrors.WithMetadata(apperrors.CodeMonthOutOfRange, "month must be between 1 and 12", map[string]string{
			"Month": strconv.Itoa(month),
		})
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	tasks, err := s.tasks.ListByMonth(ctx, identity.TenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list tasks by month: %w", err)
	}
	return tasks, nil
}
