package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/firmdesk/firmdesk/internal/platform/errors"
	"github.com/firmdesk/firmdesk/internal/platform/requestctx"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

// ErrRunTargetEmpty indicates a run needs a target entity.
var ErrRunTargetEmpty = apperrors.New(apperrors.CodeRunTargetEmpty, "target entity is required")

// InstantiateInput describes one procedure instantiation request.
type InstantiateInput struct {
	TenantProcedureID string
	TargetEntityID    string
	DueDate           *time.Time
	// Assignments maps every action of the procedure to its assignee.
	// Entries for actions outside the procedure are ignored.
	Assignments map[string]string
	// IdempotencyKey, when set, makes repeated instantiation return the
	// original run instead of creating a second graph.
	IdempotencyKey string
}

// InstantiateResult is the created (or replayed) run graph.
type InstantiateResult struct {
	Run        storage.RunRecord
	ActionRuns []storage.ActionRunRecord
	Team       storage.TeamRecord
	Members    []storage.TeamMemberView
	// Replayed reports that the idempotency key matched an existing run
	// and nothing was created.
	Replayed bool
}

// Instantiate turns one tenant procedure into a live run: an action run per
// action, a mirrored task per action run, and a team of the distinct
// assignees. The whole graph commits atomically or not at all.
func (s *Service) Instantiate(ctx context.Context, identity requestctx.Identity, input InstantiateInput) (InstantiateResult, error) {
	ctx, span := s.tracer.Start(ctx, "procedure.instantiate")
	defer span.End()
	span.SetAttributes(attribute.String("procedure.id", input.TenantProcedureID))

	start := s.clock()
	targetEntityID := strings.TrimSpace(input.TargetEntityID)
	if targetEntityID == "" {
		return InstantiateResult{}, ErrRunTargetEmpty
	}

	idempotencyKey := strings.TrimSpace(input.IdempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.runs.GetRunByIdempotencyKey(ctx, identity.TenantID, idempotencyKey)
		if err == nil {
			return s.replayResult(ctx, identity, existing)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return InstantiateResult{}, fmt.Errorf("check idempotency key: %w", err)
		}
	}

	if _, err := s.catalog.GetTenantProcedure(ctx, identity.TenantID, input.TenantProcedureID); err != nil {
		return InstantiateResult{}, mapStorageError(err)
	}
	actions, err := s.catalog.ListProcedureActions(ctx, identity.TenantID, input.TenantProcedureID)
	if err != nil {
		return InstantiateResult{}, fmt.Errorf("list procedure actions: %w", err)
	}
	if err := validateAssignments(actions, input.Assignments); err != nil {
		return InstantiateResult{}, err
	}

	defaultStatus, err := s.statuses.DefaultStatus(ctx)
	if err != nil {
		return InstantiateResult{}, fmt.Errorf("resolve default status: %w", err)
	}

	graph, err := s.buildRunGraph(identity, input, targetEntityID, idempotencyKey, actions, defaultStatus.ID)
	if err != nil {
		return InstantiateResult{}, err
	}

	if err := s.runs.CreateRunGraph(ctx, graph); err != nil {
		if errors.Is(err, storage.ErrConflict) && idempotencyKey != "" {
			// Lost a race with a concurrent instantiate on the same key.
			existing, lookupErr := s.runs.GetRunByIdempotencyKey(ctx, identity.TenantID, idempotencyKey)
			if lookupErr == nil {
				return s.replayResult(ctx, identity, existing)
			}
		}
		return InstantiateResult{}, mapStorageError(err)
	}

	if s.metrics != nil {
		s.metrics.RunsInstantiated.Inc()
		s.metrics.InstantiateDuration.Observe(s.clock().Sub(start).Seconds())
	}

	team, members, err := s.runs.GetTeamByRun(ctx, identity.TenantID, graph.Run.ID)
	if err != nil {
		return InstantiateResult{}, fmt.Errorf("load created team: %w", err)
	}

	s.notifyRunCreated(ctx, identity, graph, actions)

	return InstantiateResult{
		Run:        graph.Run,
		ActionRuns: graph.ActionRuns,
		Team:       team,
		Members:    members,
	}, nil
}

func (s *Service) replayResult(ctx context.Context, identity requestctx.Identity, run storage.RunRecord) (InstantiateResult, error) {
	team, members, err := s.runs.GetTeamByRun(ctx, identity.TenantID, run.ID)
	if err != nil {
		return InstantiateResult{}, fmt.Errorf("load replayed team: %w", err)
	}
	return InstantiateResult{
		Run:      run,
		Team:     team,
		Members:  members,
		Replayed: true,
	}, nil
}

// validateAssignments enforces the completeness invariant: every action of
// the procedure must resolve to an assignee. Entries for unknown actions are
// ignored rather than rejected.
func validateAssignments(actions []storage.ActionRecord, assignments map[string]string) error {
	var missing []string
	for _, action := range actions {
		if strings.TrimSpace(assignments[action.ID]) == "" {
			missing = append(missing, action.ID)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return apperrors.WithMetadata(apperrors.CodeRunAssignmentsIncomplete, "assignments are missing for actions", map[string]string{
			"MissingActions": strings.Join(missing, ", "),
		})
	}
	return nil
}

func (s *Service) buildRunGraph(identity requestctx.Identity, input InstantiateInput, targetEntityID, idempotencyKey string, actions []storage.ActionRecord, defaultStatusID string) (storage.RunGraph, error) {
	runID, err := s.newID()
	if err != nil {
		return storage.RunGraph{}, fmt.Errorf("generate run id: %w", err)
	}
	teamID, err := s.newID()
	if err != nil {
		return storage.RunGraph{}, fmt.Errorf("generate team id: %w", err)
	}
	now := s.now()

	graph := storage.RunGraph{
		Run: storage.RunRecord{
			ID:                runID,
			TenantID:          identity.TenantID,
			TenantProcedureID: input.TenantProcedureID,
			TargetEntityID:    targetEntityID,
			CreatorID:         identity.UserID,
			IdempotencyKey:    idempotencyKey,
			StartedAt:         now,
			DueDate:           input.DueDate,
		},
		Team: storage.TeamRecord{ID: teamID, RunID: runID, Name: targetEntityID},
	}

	seenMembers := make(map[string]bool)
	for _, action := range actions {
		assignee := strings.TrimSpace(input.Assignments[action.ID])
		actionRunID, err := s.newID()
		if err != nil {
			return storage.RunGraph{}, fmt.Errorf("generate action run id: %w", err)
		}
		taskID, err := s.newID()
		if err != nil {
			return storage.RunGraph{}, fmt.Errorf("generate task id: %w", err)
		}
		graph.ActionRuns = append(graph.ActionRuns, storage.ActionRunRecord{
			ID:             actionRunID,
			RunID:          runID,
			ActionID:       action.ID,
			AssigneeUserID: assignee,
			DueDate:        input.DueDate,
			StatusID:       defaultStatusID,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		graph.Tasks = append(graph.Tasks, storage.TaskRecord{
			ID:          taskID,
			TenantID:    identity.TenantID,
			Title:       action.Name,
			Description: action.Description,
			DueDate:     input.DueDate,
			CreatorID:   identity.UserID,
			AssigneeID:  assignee,
			ActionRunID: actionRunID,
			Status:      storage.TaskStatusOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if !seenMembers[assignee] {
			seenMembers[assignee] = true
			graph.Members = append(graph.Members, storage.TeamMemberRecord{TeamID: teamID, UserID: assignee})
		}
	}
	return graph, nil
}

// notifyRunCreated enqueues one notification per unique team member with
// that member's own action subset. Failures are logged, never returned.
func (s *Service) notifyRunCreated(ctx context.Context, identity requestctx.Identity, graph storage.RunGraph, actions []storage.ActionRecord) {
	if s.notifier == nil {
		return
	}

	procedureName := graph.Run.TenantProcedureID
	if procedure, err := s.catalog.GetTenantProcedure(ctx, identity.TenantID, graph.Run.TenantProcedureID); err == nil {
		procedureName = procedure.Name
	}

	actionNames := make(map[string]string, len(actions))
	for _, action := range actions {
		actionNames[action.ID] = action.Name
	}

	roster := make([]string, 0, len(graph.Members))
	for _, member := range graph.Members {
		display := member.UserID
		if user, err := s.users.GetUser(ctx, member.UserID); err == nil {
			display = strings.TrimSpace(user.Name + " " + user.Surname)
		}
		roster = append(roster, display)
	}

	perMember := make(map[string][]string, len(graph.Members))
	for _, actionRun := range graph.ActionRuns {
		perMember[actionRun.AssigneeUserID] = append(perMember[actionRun.AssigneeUserID], actionNames[actionRun.ActionID])
	}

	for _, member := range graph.Members {
		notification := RecipientNotification{
			RecipientUserID: member.UserID,
			RunID:           graph.Run.ID,
			TenantID:        identity.TenantID,
			ProcedureName:   procedureName,
			TargetEntityID:  graph.Run.TargetEntityID,
			DueDate:         graph.Run.DueDate,
			TeamMembers:     roster,
			ActionNames:     perMember[member.UserID],
		}
		if err := s.notifier.NotifyRunCreated(notification); err != nil {
			log.Printf("enqueue run notification for %s: %v", member.UserID, err)
			continue
		}
		if s.metrics != nil {
			s.metrics.NotificationJobs.Inc()
		}
	}
}

// GetRun loads one run inside the caller's tenant.
func (s *Service) GetRun(ctx context.Context, identity requestctx.Identity, runID string) (storage.RunRecord, error) {
	run, err := s.runs.GetRun(ctx, identity.TenantID, runID)
	if err != nil {
		return storage.RunRecord{}, mapStorageError(err)
	}
	return run, nil
}

// ListRuns lists the caller tenant's runs newest first.
func (s *Service) ListRuns(ctx context.Context, identity requestctx.Identity) ([]storage.RunRecord, error) {
	runs, err := s.runs.ListRuns(ctx, identity.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
