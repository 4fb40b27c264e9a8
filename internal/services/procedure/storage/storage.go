// Package storage defines the persistence boundary for the procedure engine.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing or outside the caller's tenant scope.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// Task mirror states kept in step with the backing action run.
const (
	TaskStatusOpen = "open"
	TaskStatusDone = "done"
)

// TemplateRecord stores one global standard procedure template.
type TemplateRecord struct {
	ID   string
	Name string
}

// TenantProcedureRecord stores one tenant-customized procedure definition.
type TenantProcedureRecord struct {
	ID               string
	SourceTemplateID string
	TenantID         string
	Name             string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProcessRecord stores one ordered process under a tenant procedure.
type ProcessRecord struct {
	ID                string
	TenantProcedureID string
	Name              string
	SequenceOrder     int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ActionRecord stores one unit of work under a process.
type ActionRecord struct {
	ID            string
	ProcessID     string
	Name          string
	Description   string
	DefaultRoleID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatusRecord stores one action run status definition.
// TenantID is empty for globally visible statuses.
type StatusRecord struct {
	ID       string
	Name     string
	Color    string
	TenantID string
	Default  bool
	Terminal bool
}

// TransitionRuleRecord allows one (from → to) status pair for a tenant.
type TransitionRuleRecord struct {
	TenantID     string
	FromStatusID string
	ToStatusID   string
}

// RunRecord stores one concrete instantiation of a tenant procedure.
type RunRecord struct {
	ID                string
	TenantID          string
	TenantProcedureID string
	TargetEntityID    string
	CreatorID         string
	IdempotencyKey    string
	StartedAt         time.Time
	DueDate           *time.Time
}

// ActionRunRecord stores one action instantiation owned by a single assignee.
// TenantID is populated from the owning run on reads.
type ActionRunRecord struct {
	ID             string
	RunID          string
	TenantID       string
	ActionID       string
	AssigneeUserID string
	DueDate        *time.Time
	StatusID       string
	Notes          string
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TeamRecord stores the participant set of one run.
type TeamRecord struct {
	ID    string
	RunID string
	Name  string
}

// TeamMemberRecord stores one (team, user) membership pair.
type TeamMemberRecord struct {
	TeamID string
	UserID string
}

// TeamMemberView joins a membership with the member's display identity.
type TeamMemberView struct {
	UserID  string
	Name    string
	Surname string
}

// TaskRecord stores one generic cross-module task projection.
type TaskRecord struct {
	ID          string
	TenantID    string
	Title       string
	Description string
	DueDate     *time.Time
	CreatorID   string
	AssigneeID  string
	ActionRunID string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskView joins a task with its assignee's display identity.
type TaskView struct {
	TaskRecord
	AssigneeName    string
	AssigneeSurname string
}

// UserRecord is the engine's read-side replica of platform user identity.
type UserRecord struct {
	ID       string
	TenantID string
	Name     string
	Surname  string
	Email    string
}

// TeamStatusRow is one action run joined with assignee, action and status.
type TeamStatusRow struct {
	ActionRunID     string
	ActionID        string
	ActionName      string
	AssigneeUserID  string
	AssigneeName    string
	AssigneeSurname string
	StatusID        string
	StatusName      string
	StatusColor     string
	Terminal        bool
	Notes           string
	CompletedAt     *time.Time
}

// RunGraph is the full write set of one instantiation.
type RunGraph struct {
	Run        RunRecord
	ActionRuns []ActionRunRecord
	Tasks      []TaskRecord
	Team       TeamRecord
	Members    []TeamMemberRecord
}

// CatalogStore persists the procedure definition tree.
type CatalogStore interface {
	ListTemplates(ctx context.Context) ([]TemplateRecord, error)
	GetTemplate(ctx context.Context, templateID string) (TemplateRecord, error)

	ListTenantProcedures(ctx context.Context, tenantID string) ([]TenantProcedureRecord, error)
	GetTenantProcedure(ctx context.Context, tenantID, procedureID string) (TenantProcedureRecord, error)
	PutTenantProcedure(ctx context.Context, record TenantProcedureRecord) error
	RenameTenantProcedure(ctx context.Context, tenantID, procedureID, name string, updatedAt time.Time) (TenantProcedureRecord, error)

	ListProcesses(ctx context.Context, tenantID, procedureID string) ([]ProcessRecord, error)
	GetProcess(ctx context.Context, tenantID, processID string) (ProcessRecord, error)
	PutProcess(ctx context.Context, tenantID string, record ProcessRecord) error
	RenameProcess(ctx context.Context, tenantID, processID, name string, updatedAt time.Time) (ProcessRecord, error)

	ListActions(ctx context.Context, tenantID, processID string) ([]ActionRecord, error)
	GetAction(ctx context.Context, tenantID, actionID string) (ActionRecord, error)
	PutAction(ctx context.Context, tenantID string, record ActionRecord) error
	UpdateAction(ctx context.Context, tenantID string, record ActionRecord) (ActionRecord, error)

	// ListProcedureActions returns every action across the procedure's
	// processes, ordered by (process sequence, action id).
	ListProcedureActions(ctx context.Context, tenantID, procedureID string) ([]ActionRecord, error)
}

// RunStore persists run graphs and action run mutations.
type RunStore interface {
	// CreateRunGraph persists the whole graph in one atomic unit: the run,
	// every action run, every mirrored task, the team and every membership.
	// No partial graph may be observed by any other caller.
	CreateRunGraph(ctx context.Context, graph RunGraph) error

	GetRun(ctx context.Context, tenantID, runID string) (RunRecord, error)
	GetRunByIdempotencyKey(ctx context.Context, tenantID, key string) (RunRecord, error)
	ListRuns(ctx context.Context, tenantID string) ([]RunRecord, error)

	GetActionRun(ctx context.Context, actionRunID string) (ActionRunRecord, error)
	// UpdateActionRunStatus persists the transition and keeps the mirrored
	// task row in step within the same transaction.
	UpdateActionRunStatus(ctx context.Context, actionRunID, statusID string, completedAt *time.Time, taskStatus string, updatedAt time.Time) (ActionRunRecord, error)
	UpdateActionRunNotes(ctx context.Context, actionRunID, notes string, updatedAt time.Time) (ActionRunRecord, error)

	GetTeamByRun(ctx context.Context, tenantID, runID string) (TeamRecord, []TeamMemberView, error)
	ListTeamStatus(ctx context.Context, tenantID, runID string) ([]TeamStatusRow, error)
}

// StatusStore persists status definitions and tenant transition rules.
type StatusStore interface {
	ListVisibleStatuses(ctx context.Context, tenantID string) ([]StatusRecord, error)
	GetStatus(ctx context.Context, statusID string) (StatusRecord, error)
	DefaultStatus(ctx context.Context) (StatusRecord, error)
	ListTransitionRules(ctx context.Context, tenantID string) ([]TransitionRuleRecord, error)
}

// TaskStore reads the task projection.
type TaskStore interface {
	ListUpcomingByAssignee(ctx context.Context, assigneeID string, from time.Time, limit int) ([]TaskView, error)
	ListUpcomingByTenant(ctx context.Context, tenantID string, from time.Time, limit int) ([]TaskView, error)
	ListByMonth(ctx context.Context, tenantID string, from, to time.Time) ([]TaskView, error)
}

// UserStore reads the user identity replica.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (UserRecord, error)
	PutUser(ctx context.Context, record UserRecord) error
}
