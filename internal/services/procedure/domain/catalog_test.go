package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/firmdesk/firmdesk/internal/platform/errors"
)

func TestCreateTenantProcedureRequiresCapability(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1")
	svc := newService(store, nil, fixedClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator("proc-2"))

	_, err := svc.CreateTenantProcedure(context.Background(), memberIdentity("user-1", "tenant-a"), CreateTenantProcedureInput{
		SourceTemplateID: "tmpl-1",
		Name:             "Quarterly Close",
	})
	if !errors.Is(err, ErrCapabilityMissing) {
		t.Fatalf("expected capability error, got %v", err)
	}
}

func TestCreateTenantProcedureValidation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1")
	svc := newService(store, nil, fixedClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator("proc-2", "proc-3"))
	manager := managerIdentity("user-1", "tenant-a")

	if _, err := svc.CreateTenantProcedure(context.Background(), manager, CreateTenantProcedureInput{
		SourceTemplateID: "tmpl-1",
		Name:             "   ",
	}); !errors.Is(err, ErrProcedureNameEmpty) {
		t.Fatalf("expected empty name error, got %v", err)
	}

	_, err := svc.CreateTenantProcedure(context.Background(), manager, CreateTenantProcedureInput{
		SourceTemplateID: "tmpl-missing",
		Name:             "Quarterly Close",
	})
	if apperrors.GetCode(err) != apperrors.CodeProcedureSourceUnknown {
		t.Fatalf("expected unknown source template error, got %v", err)
	}

	created, err := svc.CreateTenantProcedure(context.Background(), manager, CreateTenantProcedureInput{
		SourceTemplateID: "tmpl-1",
		Name:             "  Quarterly Close  ",
	})
	if err != nil {
		t.Fatalf("create tenant procedure: %v", err)
	}
	if created.Name != "Quarterly Close" {
		t.Fatalf("expected trimmed name, got %q", created.Name)
	}
	if created.TenantID != "tenant-a" {
		t.Fatalf("expected caller tenant, got %q", created.TenantID)
	}
}

func TestRenameTenantProcedureScopedToTenant(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1")
	svc := newService(store, nil, fixedClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator())

	if _, err := svc.RenameTenantProcedure(context.Background(), managerIdentity("user-9", "tenant-b"), "proc-1", "Hijack"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign tenant, got %v", err)
	}

	renamed, err := svc.RenameTenantProcedure(context.Background(), managerIdentity("user-1", "tenant-a"), "proc-1", "Close 2026")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != "Close 2026" {
		t.Fatalf("expected renamed procedure, got %q", renamed.Name)
	}
}

func TestCreateProcessAppendsSequence(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1")
	svc := newService(store, nil, fixedClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator("process-2", "process-3"))
	manager := managerIdentity("user-1", "tenant-a")

	second, err := svc.CreateProcess(context.Background(), manager, "proc-1", "Review")
	if err != nil {
		t.Fatalf("create process: %v", err)
	}
	if second.SequenceOrder != 2 {
		t.Fatalf("expected sequence 2 after seeded process, got %d", second.SequenceOrder)
	}
	third, err := svc.CreateProcess(context.Background(), manager, "proc-1", "Archive")
	if err != nil {
		t.Fatalf("create third process: %v", err)
	}
	if third.SequenceOrder != 3 {
		t.Fatalf("expected sequence 3, got %d", third.SequenceOrder)
	}

	if _, err := svc.CreateProcess(context.Background(), manager, "proc-1", ""); !errors.Is(err, ErrProcessNameEmpty) {
		t.Fatalf("expected empty name error, got %v", err)
	}
}

func TestCreateActionValidatesNameAndChain(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-1")
	svc := newService(store, nil, fixedClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator("action-2"))
	manager := managerIdentity("user-1", "tenant-a")

	if _, err := svc.CreateAction(context.Background(), manager, CreateActionInput{ProcessID: "proc-1-process", Name: " "}); !errors.Is(err, ErrActionNameEmpty) {
		t.Fatalf("expected empty name error, got %v", err)
	}

	if _, err := svc.CreateAction(context.Background(), managerIdentity("user-9", "tenant-b"), CreateActionInput{
		ProcessID: "proc-1-process",
		Name:      "Foreign",
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign process, got %v", err)
	}

	created, err := svc.CreateAction(context.Background(), manager, CreateActionInput{
		ProcessID:     "proc-1-process",
		Name:          "Collect statements",
		Description:   "Pull the bank statements",
		DefaultRoleID: "role-bookkeeper",
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	if created.DefaultRoleID != "role-bookkeeper" {
		t.Fatalf("expected default role persisted, got %+v", created)
	}
}

func TestFlattenedActionsOrderedBySequence(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedProcedure("tenant-a", "proc-1", "action-b", "action-a")
	svc := newService(store, nil, fixedClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)), sequentialIDGenerator())

	actions, err := svc.FlattenedActions(context.Background(), memberIdentity("user-1", "tenant-a"), "proc-1")
	if err != nil {
		t.Fatalf("flattened actions: %v", err)
	}
	if len(actions) != 2 || actions[0].ID != "action-a" || actions[1].ID != "action-b" {
		t.Fatalf("expected actions ordered by id inside one process, got %+v", actions)
	}

	if _, err := svc.FlattenedActions(context.Background(), memberIdentity("user-9", "tenant-b"), "proc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign tenant, got %v", err)
	}
}
