package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/firmdesk/firmdesk/internal/platform/errors"
	"github.com/firmdesk/firmdesk/internal/platform/requestctx"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
	"github.com/firmdesk/firmdesk/internal/services/shared/authctx"
)

var (
	// ErrNotFound indicates a record is missing or outside the caller's tenant.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")
	// ErrConflict indicates a write collided with an existing record.
	ErrConflict = apperrors.New(apperrors.CodeConflict, "record conflict")
	// ErrProcedureNameEmpty indicates a procedure name is required.
	ErrProcedureNameEmpty = apperrors.New(apperrors.CodeProcedureNameEmpty, "procedure name is required")
	// ErrProcessNameEmpty indicates a process name is required.
	ErrProcessNameEmpty = apperrors.New(apperrors.CodeProcessNameEmpty, "process name is required")
	// ErrActionNameEmpty indicates an action name is required.
	ErrActionNameEmpty = apperrors.New(apperrors.CodeActionNameEmpty, "action name is required")
	// ErrCapabilityMissing indicates the caller lacks the required capability.
	ErrCapabilityMissing = apperrors.New(apperrors.CodeCapabilityMissing, "caller lacks required capability")
)

func mapStorageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return ErrConflict
	default:
		return err
	}
}

func requireCapability(identity requestctx.Identity, capability string) error {
	if identity.HasCapability(capability) {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeCapabilityMissing, "caller lacks required capability", map[string]string{
		"Capability": capability,
	})
}

// ListTemplates lists the global standard procedure catalog.
func (s *Service) ListTemplates(ctx context.Context) ([]storage.TemplateRecord, error) {
	templates, err := s.catalog.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// ListTenantProcedures lists the caller tenant's customized procedures.
func (s *Service) ListTenantProcedures(ctx context.Context, identity requestctx.Identity) ([]storage.TenantProcedureRecord, error) {
	procedures, err := s.catalog.ListTenantProcedures(ctx, identity.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant procedures: %w", err)
	}
	return procedures, nil
}

// GetTenantProcedure loads one procedure inside the caller's tenant.
func (s *Service) GetTenantProcedure(ctx context.Context, identity requestctx.Identity, procedureID string) (storage.TenantProcedureRecord, error) {
	record, err := s.catalog.GetTenantProcedure(ctx, identity.TenantID, procedureID)
	if err != nil {
		return storage.TenantProcedureRecord{}, mapStorageError(err)
	}
	return record, nil
}

// CreateTenantProcedureInput describes one procedure customization request.
type CreateTenantProcedureInput struct {
	SourceTemplateID string
	Name             string
}

// CreateTenantProcedure customizes a standard template for the caller's
// tenant. Requires the manage-templates capability.
func (s *Service) CreateTenantProcedure(ctx context.Context, identity requestctx.Identity, input CreateTenantProcedureInput) (storage.TenantProcedureRecord, error) {
	if err := requireCapability(identity, authctx.CapabilityManageTemplates); err != nil {
		return storage.TenantProcedureRecord{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return storage.TenantProcedureRecord{}, ErrProcedureNameEmpty
	}
	if _, err := s.catalog.GetTemplate(ctx, input.SourceTemplateID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.TenantProcedureRecord{}, apperrors.WithMetadata(apperrors.CodeProcedureSourceUnknown, "source template does not exist", map[string]string{
				"TemplateID": input.SourceTemplateID,
			})
		}
		return storage.TenantProcedureRecord{}, fmt.Errorf("resolve source template: %w", err)
	}

	procedureID, err := s.newID()
	if err != nil {
		return storage.TenantProcedureRecord{}, fmt.Errorf("generate procedure id: %w", err)
	}
	now := s.now()
	record := storage.TenantProcedureRecord{
		ID:               procedureID,
		SourceTemplateID: strings.TrimSpace(input.SourceTemplateID),
		TenantID:         identity.TenantID,
		Name:             name,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.catalog.PutTenantProcedure(ctx, record); err != nil {
		return storage.TenantProcedureRecord{}, mapStorageError(err)
	}
	return record, nil
}

// RenameTenantProcedure renames one tenant-owned procedure.
func (s *Service) RenameTenantProcedure(ctx context.Context, identity requestctx.Identity, procedureID, name string) (storage.TenantProcedureRecord, error) {
	if err := requireCapability(identity, authctx.CapabilityManageTemplates); err != nil {
		return storage.TenantProcedureRecord{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.TenantProcedureRecord{}, ErrProcedureNameEmpty
	}
	record, err := s.catalog.RenameTenantProcedure(ctx, identity.TenantID, procedureID, name, s.now())
	if err != nil {
		return storage.TenantProcedureRecord{}, mapStorageError(err)
	}
	return record, nil
}

// ListProcesses lists the procedure's processes in sequence order.
func (s *Service) ListProcesses(ctx context.Context, identity requestctx.Identity, procedureID string) ([]storage.ProcessRecord, error) {
	if _, err := s.catalog.GetTenantProcedure(ctx, identity.TenantID, procedureID); err != nil {
		return nil, mapStorageError(err)
	}
	processes, err := s.catalog.ListProcesses(ctx, identity.TenantID, procedureID)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	return processes, nil
}

// CreateProcess appends one process at the next sequence position.
func (s *Service) CreateProcess(ctx context.Context, identity requestctx.Identity, procedureID, name string) (storage.ProcessRecord, error) {
	if err := requireCapability(identity, authctx.CapabilityManageTemplates); err != nil {
		return storage.ProcessRecord{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.ProcessRecord{}, ErrProcessNameEmpty
	}
	existing, err := s.ListProcesses(ctx, identity, procedureID)
	if err != nil {
		return storage.ProcessRecord{}, err
	}
	nextSequence := 1
	for _, process := range existing {
		if process.SequenceOrder >= nextSequence {
			nextSequence = process.SequenceOrder + 1
		}
	}

	processID, err := s.newID()
	if err != nil {
		return storage.ProcessRecord{}, fmt.Errorf("generate process id: %w", err)
	}
	now := s.now()
	record := storage.ProcessRecord{
		ID:                processID,
		TenantProcedureID: procedureID,
		Name:              name,
		SequenceOrder:     nextSequence,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.catalog.PutProcess(ctx, identity.TenantID, record); err != nil {
		return storage.ProcessRecord{}, mapStorageError(err)
	}
	return record, nil
}

// RenameProcess renames one process inside the caller's tenant.
func (s *Service) RenameProcess(ctx context.Context, identity requestctx.Identity, processID, name string) (storage.ProcessRecord, error) {
	if err := requireCapability(identity, authctx.CapabilityManageTemplates); err != nil {
		return storage.ProcessRecord{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.ProcessRecord{}, ErrProcessNameEmpty
	}
	record, err := s.catalog.RenameProcess(ctx, identity.TenantID, processID, name, s.now())
	if err != nil {
		return storage.ProcessRecord{}, mapStorageError(err)
	}
	return record, nil
}

// ListActions lists one process's actions inside the caller's tenant.
func (s *Service) ListActions(ctx context.Context, identity requestctx.Identity, processID string) ([]storage.ActionRecord, error) {
	if _, err := s.catalog.GetProcess(ctx, identity.TenantID, processID); err != nil {
		return nil, mapStorageError(err)
	}
	actions, err := s.catalog.ListActions(ctx, identity.TenantID, processID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return actions, nil
}

// CreateActionInput describes one new unit of work under a process.
type CreateActionInput struct {
	ProcessID     string
	Name          string
	Description   string
	DefaultRoleID string
}

// CreateAction adds one action to a process inside the caller's tenant.
func (s *Service) CreateAction(ctx context.Context, identity requestctx.Identity, input CreateActionInput) (storage.ActionRecord, error) {
	if err := requireCapability(identity, authctx.CapabilityManageTemplates); err != nil {
		return storage.ActionRecord{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return storage.ActionRecord{}, ErrActionNameEmpty
	}

	actionID, err := s.newID()
	if err != nil {
		return storage.ActionRecord{}, fmt.Errorf("generate action id: %w", err)
	}
	now := s.now()
	record := storage.ActionRecord{
		ID:            actionID,
		ProcessID:     input.ProcessID,
		Name:          name,
		Description:   strings.TrimSpace(input.Description),
		DefaultRoleID: strings.TrimSpace(input.DefaultRoleID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.catalog.PutAction(ctx, identity.TenantID, record); err != nil {
		return storage.ActionRecord{}, mapStorageError(err)
	}
	return record, nil
}

// UpdateActionInput describes one action edit.
type UpdateActionInput struct {
	ActionID      string
	Name          string
	Description   string
	DefaultRoleID string
}

// UpdateAction edits one action inside the caller's tenant.
func (s *Service) UpdateAction(ctx context.Context, identity requestctx.Identity, input UpdateActionInput) (storage.ActionRecord, error) {
	if err := requireCapability(identity, authctx.CapabilityManageTemplates); err != nil {
		return storage.ActionRecord{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return storage.ActionRecord{}, ErrActionNameEmpty
	}
	record, err := s.catalog.UpdateAction(ctx, identity.TenantID, storage.ActionRecord{
		ID:            input.ActionID,
		Name:          name,
		Description:   strings.TrimSpace(input.Description),
		DefaultRoleID: strings.TrimSpace(input.DefaultRoleID),
		UpdatedAt:     s.now(),
	})
	if err != nil {
		return storage.ActionRecord{}, mapStorageError(err)
	}
	return record, nil
}

// FlattenedActions lists every action of the procedure across its processes,
// ordered by process sequence then action id.
func (s *Service) FlattenedActions(ctx context.Context, identity requestctx.Identity, procedureID string) ([]storage.ActionRecord, error) {
	if _, err := s.catalog.GetTenantProcedure(ctx, identity.TenantID, procedureID); err != nil {
		return nil, mapStorageError(err)
	}
	actions, err := s.catalog.ListProcedureActions(ctx, identity.TenantID, procedureID)
	if err != nil {
		return nil, fmt.Errorf("list procedure actions: %w", err)
	}
	return actions, nil
}
