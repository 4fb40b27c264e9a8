package domain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	apperrors "github.com/firmdesk/firmdesk/internal/platform/errors"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

func TestInstantiateValidatesInput(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1", "action-2")
	svc := newService(store, nil, fixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator())
	caller := memberIdentity("user-1", "tenant-a")

	if _, err := svc.Instantiate(context.Background(), caller, InstantiateInput{
		TenantProcedureID: "proc-1",
		Assignments:       map[string]string{"action-1": "user-1"},
	}); !errors.Is(err, ErrRunTargetEmpty) {
		t.Fatalf("expected target error, got %v", err)
	}

	// An empty map leaves every action unresolved, so each one is named.
	_, err := svc.Instantiate(context.Background(), caller, InstantiateInput{
		TenantProcedureID: "proc-1",
		TargetEntityID:    "client-42",
	})
	if apperrors.GetCode(err) != apperrors.CodeRunAssignmentsIncomplete {
		t.Fatalf("expected incomplete assignments error, got %v", err)
	}
	if missing := apperrors.GetMetadata(err)["MissingActions"]; !strings.Contains(missing, "action-1") || !strings.Contains(missing, "action-2") {
		t.Fatalf("expected every unresolved action listed in metadata, got %q", missing)
	}

	_, err = svc.Instantiate(context.Background(), caller, InstantiateInput{
		TenantProcedureID: "proc-1",
		TargetEntityID:    "client-42",
		Assignments:       map[string]string{"action-1": "user-1"},
	})
	if apperrors.GetCode(err) != apperrors.CodeRunAssignmentsIncomplete {
		t.Fatalf("expected incomplete assignments error, got %v", err)
	}
	if missing := apperrors.GetMetadata(err)["MissingActions"]; !strings.Contains(missing, "action-2") {
		t.Fatalf("expected missing action listed in metadata, got %q", missing)
	}

	if len(store.runs) != 0 {
		t.Fatalf("expected no runs written on validation failure, got %d", len(store.runs))
	}
}

func TestInstantiateIgnoresAssignmentsOutsideProcedure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1", "action-2")
	svc := newService(store, &fakeNotifier{}, fixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator(
		"run-1", "team-1",
		"action-run-1", "task-1",
		"action-run-2", "task-2",
	))

	result, err := svc.Instantiate(context.Background(), memberIdentity("user-1", "tenant-a"), InstantiateInput{
		TenantProcedureID: "proc-1",
		TargetEntityID:    "client-42",
		Assignments: map[string]string{
			"action-1": "user-1",
			"action-2": "user-2",
			"action-x": "user-3",
		},
	})
	if err != nil {
		t.Fatalf("instantiate with superset assignments: %v", err)
	}
	if len(result.ActionRuns) != 2 {
		t.Fatalf("expected one action run per procedure action, got %d", len(result.ActionRuns))
	}
	for _, actionRun := range result.ActionRuns {
		if actionRun.ActionID == "action-x" {
			t.Fatalf("unexpected action run for unknown action: %+v", actionRun)
		}
	}
	// The extra entry's assignee never joins the team.
	for _, member := range store.memberships["team-1"] {
		if member.UserID == "user-3" {
			t.Fatalf("unexpected team member %q", member.UserID)
		}
	}
	if got := len(store.memberships["team-1"]); got != 2 {
		t.Fatalf("expected 2 team members, got %d", got)
	}
}

func TestInstantiateCreatesFullGraph(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	due := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1", "action-2", "action-3")
	notifier := &fakeNotifier{}
	svc := newService(store, notifier, fixedClock(now), sequentialIDGenerator(
		"run-1", "team-1",
		"action-run-1", "task-1",
		"action-run-2", "task-2",
		"action-run-3", "task-3",
	))

	result, err := svc.Instantiate(context.Background(), memberIdentity("user-1", "tenant-a"), InstantiateInput{
		TenantProcedureID: "proc-1",
		TargetEntityID:    "client-42",
		DueDate:           &due,
		Assignments: map[string]string{
			"action-1": "user-1",
			"action-2": "user-2",
			"action-3": "user-1",
		},
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if result.Replayed {
		t.Fatal("expected fresh run, got replay")
	}
	if result.Run.ID != "run-1" || result.Run.CreatorID != "user-1" {
		t.Fatalf("unexpected run: %+v", result.Run)
	}
	if len(result.ActionRuns) != 3 {
		t.Fatalf("expected 3 action runs, got %d", len(result.ActionRuns))
	}
	for _, actionRun := range result.ActionRuns {
		if actionRun.StatusID != "status-open" {
			t.Fatalf("expected default status, got %+v", actionRun)
		}
	}
	if len(store.tasks) != 3 {
		t.Fatalf("expected mirrored task per action run, got %d", len(store.tasks))
	}
	for _, task := range store.tasks {
		if task.Status != storage.TaskStatusOpen || task.ActionRunID == "" {
			t.Fatalf("expected open mirrored task, got %+v", task)
		}
	}
	// Two distinct assignees, membership deduped.
	if got := len(store.memberships["team-1"]); got != 2 {
		t.Fatalf("expected 2 team members, got %d", got)
	}

	if len(notifier.notifications) != 2 {
		t.Fatalf("expected one notification per member, got %d", len(notifier.notifications))
	}
	byRecipient := make(map[string][]string)
	for _, notification := range notifier.notifications {
		byRecipient[notification.RecipientUserID] = notification.ActionNames
		if notification.RunID != "run-1" || notification.TargetEntityID != "client-42" {
			t.Fatalf("unexpected notification payload: %+v", notification)
		}
	}
	sort.Strings(byRecipient["user-1"])
	if len(byRecipient["user-1"]) != 2 || len(byRecipient["user-2"]) != 1 {
		t.Fatalf("expected per-recipient action subsets, got %+v", byRecipient)
	}
}

func TestInstantiateIdempotentReplay(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1")
	svc := newService(store, &fakeNotifier{}, fixedClock(now), sequentialIDGenerator(
		"run-1", "team-1", "action-run-1", "task-1",
		"run-2", "team-2", "action-run-2", "task-2",
	))
	input := InstantiateInput{
		TenantProcedureID: "proc-1",
		TargetEntityID:    "client-42",
		Assignments:       map[string]string{"action-1": "user-1"},
		IdempotencyKey:    "key-may-close",
	}

	first, err := svc.Instantiate(context.Background(), memberIdentity("user-1", "tenant-a"), input)
	if err != nil {
		t.Fatalf("first instantiate: %v", err)
	}
	second, err := svc.Instantiate(context.Background(), memberIdentity("user-1", "tenant-a"), input)
	if err != nil {
		t.Fatalf("replayed instantiate: %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected replay flag")
	}
	if second.Run.ID != first.Run.ID {
		t.Fatalf("expected original run on replay, got %s", second.Run.ID)
	}
	if len(store.runs) != 1 {
		t.Fatalf("expected exactly one run, got %d", len(store.runs))
	}

	// Same key in another tenant creates independently.
	store.seedProcedure("tenant-b", "proc-b", "action-b1")
	if _, err := svc.Instantiate(context.Background(), memberIdentity("user-9", "tenant-b"), InstantiateInput{
		TenantProcedureID: "proc-b",
		TargetEntityID:    "client-7",
		Assignments:       map[string]string{"action-b1": "user-9"},
		IdempotencyKey:    "key-may-close",
	}); err != nil {
		t.Fatalf("instantiate in other tenant: %v", err)
	}
	if len(store.runs) != 2 {
		t.Fatalf("expected independent run per tenant, got %d", len(store.runs))
	}
}

func TestInstantiateNotifierFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1")
	notifier := &fakeNotifier{err: errors.New("queue full")}
	svc := newService(store, notifier, fixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator(
		"run-1", "team-1", "action-run-1", "task-1",
	))

	result, err := svc.Instantiate(context.Background(), memberIdentity("user-1", "tenant-a"), InstantiateInput{
		TenantProcedureID: "proc-1",
		TargetEntityID:    "client-42",
		Assignments:       map[string]string{"action-1": "user-1"},
	})
	if err != nil {
		t.Fatalf("instantiate despite enqueue failure: %v", err)
	}
	if result.Run.ID != "run-1" {
		t.Fatalf("expected run created, got %+v", result.Run)
	}
}

func TestInstantiateForeignProcedureNotFound(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1")
	svc := newService(store, nil, fixedClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator())

	if _, err := svc.Instantiate(context.Background(), memberIdentity("user-9", "tenant-b"), InstantiateInput{
		TenantProcedureID: "proc-1",
		TargetEntityID:    "client-42",
		Assignments:       map[string]string{"action-1": "user-9"},
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign procedure, got %v", err)
	}
}
