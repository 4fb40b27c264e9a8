package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/firmdesk/firmdesk/internal/platform/errors"
	"github.com/firmdesk/firmdesk/internal/platform/requestctx"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

var (
	// ErrNotAssignee indicates only the assignee may mutate an action run.
	ErrNotAssignee = apperrors.New(apperrors.CodeActionRunNotAssignee, "only the assignee may update this action")
	// ErrStatusNotVisible indicates the status is outside the tenant's catalog.
	ErrStatusNotVisible = apperrors.New(apperrors.CodeStatusNotVisible, "status is not available to this tenant")
)

// ListStatuses lists the statuses visible to the caller's tenant.
func (s *Service) ListStatuses(ctx context.Context, identity requestctx.Identity) ([]storage.StatusRecord, error) {
	statuses, err := s.statuses.ListVisibleStatuses(ctx, identity.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list visible statuses: %w", err)
	}
	return statuses, nil
}

// UpdateStatus moves one action run to a new status. Only the assignee may
// transition, the status must be visible to the run's tenant, and when the
// tenant carries a transition rule table the (from → to) pair must be
// listed. An empty table leaves the tenant unconstrained.
func (s *Service) UpdateStatus(ctx context.Context, identity requestctx.Identity, actionRunID, newStatusID string) (storage.ActionRunRecord, error) {
	actionRun, err := s.loadOwnActionRun(ctx, identity, actionRunID)
	if err != nil {
		return storage.ActionRunRecord{}, err
	}

	newStatus, err := s.visibleStatus(ctx, actionRun.TenantID, newStatusID)
	if err != nil {
		return storage.ActionRunRecord{}, err
	}

	if err := s.checkTransitionAllowed(ctx, actionRun.TenantID, actionRun.StatusID, newStatus.ID); err != nil {
		return storage.ActionRunRecord{}, err
	}

	now := s.now()
	var completedAt *time.Time
	taskStatus := storage.TaskStatusOpen
	if newStatus.Terminal {
		completedAt = &now
		taskStatus = storage.TaskStatusDone
	}

	updated, err := s.runs.UpdateActionRunStatus(ctx, actionRunID, newStatus.ID, completedAt, taskStatus, now)
	if err != nil {
		return storage.ActionRunRecord{}, mapStorageError(err)
	}
	if s.metrics != nil {
		s.metrics.StatusTransitions.Inc()
	}
	return updated, nil
}

// UpdateNotes replaces one action run's free-form notes. Assignee-only; the
// text is stored verbatim.
func (s *Service) UpdateNotes(ctx context.Context, identity requestctx.Identity, actionRunID, notes string) (storage.ActionRunRecord, error) {
	if _, err := s.loadOwnActionRun(ctx, identity, actionRunID); err != nil {
		return storage.ActionRunRecord{}, err
	}
	updated, err := s.runs.UpdateActionRunNotes(ctx, actionRunID, notes, s.now())
	if err != nil {
		return storage.ActionRunRecord{}, mapStorageError(err)
	}
	return updated, nil
}

func (s *Service) loadOwnActionRun(ctx context.Context, identity requestctx.Identity, actionRunID string) (storage.ActionRunRecord, error) {
	actionRun, err := s.runs.GetActionRun(ctx, actionRunID)
	if err != nil {
		return storage.ActionRunRecord{}, mapStorageError(err)
	}
	if actionRun.TenantID != identity.TenantID {
		return storage.ActionRunRecord{}, ErrNotFound
	}
	if actionRun.AssigneeUserID != identity.UserID {
		return storage.ActionRunRecord{}, ErrNotAssignee
	}
	return actionRun, nil
}

func (s *Service) visibleStatus(ctx context.Context, tenantID, statusID string) (storage.StatusRecord, error) {
	notVisible := func() error {
		return apperrors.WithMetadata(apperrors.CodeStatusNotVisible, "status is not available to this tenant", map[string]string{
			"StatusID": statusID,
		})
	}
	status, err := s.statuses.GetStatus(ctx, statusID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.StatusRecord{}, notVisible()
	}
	if err != nil {
		return storage.StatusRecord{}, fmt.Errorf("load status %s: %w", statusID, err)
	}
	if status.TenantID != "" && status.TenantID != tenantID {
		return storage.StatusRecord{}, notVisible()
	}
	return status, nil
}

func (s *Service) checkTransitionAllowed(ctx context.Context, tenantID, fromStatusID, toStatusID string) error {
	rules, err := s.statuses.ListTransitionRules(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list transition rules: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}
	for _, rule := range rules {
		if rule.FromStatusID == fromStatusID && rule.ToStatusID == toStatusID {
			return nil
		}
	}
	return apperrors.WithMetadata(apperrors.CodeStatusTransitionBlocked, "status transition is not allowed", map[string]string{
		"FromStatus": fromStatusID,
		"ToStatus":   toStatusID,
	})
}
