package domain

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/firmdesk/firmdesk/internal/platform/requestctx"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
	"github.com/firmdesk/firmdesk/internal/services/shared/authctx"
)

var errIDsExhausted = errors.New("test id sequence exhausted")

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDGenerator(ids ...string) func() (string, error) {
	queue := append([]string(nil), ids...)
	index := 0
	return func() (string, error) {
		if index >= len(queue) {
			return "", errIDsExhausted
		}
		value := queue[index]
		index++
		return value, nil
	}
}

func managerIdentity(userID, tenantID string) requestctx.Identity {
	return requestctx.Identity{
		UserID:       userID,
		TenantID:     tenantID,
		Capabilities: []string{authctx.CapabilityManageTemplates, authctx.CapabilityAdmin},
	}
}

func memberIdentity(userID, tenantID string) requestctx.Identity {
	return requestctx.Identity{UserID: userID, TenantID: tenantID}
}

type fakeNotifier struct {
	notifications []RecipientNotification
	err           error
}

func (n *fakeNotifier) NotifyRunCreated(notification RecipientNotification) error {
	if n.err != nil {
		return n.err
	}
	n.notifications = append(n.notifications, notification)
	return nil
}

// fakeStore implements every storage interface the service consumes.
type fakeStore struct {
	templates   map[string]storage.TemplateRecord
	procedures  map[string]storage.TenantProcedureRecord
	processes   map[string]storage.ProcessRecord
	actions     map[string]storage.ActionRecord
	statuses    map[string]storage.StatusRecord
	rules       []storage.TransitionRuleRecord
	runs        map[string]storage.RunRecord
	actionRuns  map[string]storage.ActionRunRecord
	teams       map[string]storage.TeamRecord
	memberships map[string][]storage.TeamMemberRecord
	tasks       map[string]storage.TaskRecord
	users       map[string]storage.UserRecord

	createGraphErr error
	getStatusErr   error
}

func newFakeStore() *fakeStore {
	store := &fakeStore{
		templates:   make(map[string]storage.TemplateRecord),
		procedures:  make(map[string]storage.TenantProcedureRecord),
		processes:   make(map[string]storage.ProcessRecord),
		actions:     make(map[string]storage.ActionRecord),
		statuses:    make(map[string]storage.StatusRecord),
		runs:        make(map[string]storage.RunRecord),
		actionRuns:  make(map[string]storage.ActionRunRecord),
		teams:       make(map[string]storage.TeamRecord),
		memberships: make(map[string][]storage.TeamMemberRecord),
		tasks:       make(map[string]storage.TaskRecord),
		users:       make(map[string]storage.UserRecord),
	}
	store.statuses["status-open"] = storage.StatusRecord{ID: "status-open", Name: "Open", Default: true}
	store.statuses["status-in-progress"] = storage.StatusRecord{ID: "status-in-progress", Name: "In Progress"}
	store.statuses["status-done"] = storage.StatusRecord{ID: "status-done", Name: "Done", Terminal: true}
	return store
}

func newService(store *fakeStore, notifier Notifier, clock func() time.Time, newID func() (string, error)) *Service {
	return NewService(Config{
		Catalog:  store,
		Runs:     store,
		Statuses: store,
		Tasks:    store,
		Users:    store,
		Notifier: notifier,
		Clock:    clock,
		NewID:    newID,
	})
}

// seedProcedure wires a template, procedure, one process and the given
// actions into the fake store.
func (s *fakeStore) seedProcedure(tenantID, procedureID string, actionIDs ...string) {
	s.templates["tmpl-1"] = storage.TemplateRecord{ID: "tmpl-1", Name: "Year End Close"}
	s.procedures[procedureID] = storage.TenantProcedureRecord{
		ID:               procedureID,
		SourceTemplateID: "tmpl-1",
		TenantID:         tenantID,
		Name:             "Year End Close",
	}
	processID := procedureID + "-process"
	s.processes[processID] = storage.ProcessRecord{
		ID:                processID,
		TenantProcedureID: procedureID,
		Name:              "Prepare",
		SequenceOrder:     1,
	}
	for _, actionID := range actionIDs {
		s.actions[actionID] = storage.ActionRecord{
			ID:        actionID,
			ProcessID: processID,
			Name:      "Action " + actionID,
		}
	}
}

// CatalogStore

func (s *fakeStore) ListTemplates(context.Context) ([]storage.TemplateRecord, error) {
	results := make([]storage.TemplateRecord, 0, len(s.templates))
	for _, record := range s.templates {
		results = append(results, record)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

func (s *fakeStore) GetTemplate(_ context.Context, templateID string) (storage.TemplateRecord, error) {
	record, ok := s.templates[templateID]
	if !ok {
		return storage.TemplateRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) ListTenantProcedures(_ context.Context, tenantID string) ([]storage.TenantProcedureRecord, error) {
	var results []storage.TenantProcedureRecord
	for _, record := range s.procedures {
		if record.TenantID == tenantID {
			results = append(results, record)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

func (s *fakeStore) GetTenantProcedure(_ context.Context, tenantID, procedureID string) (storage.TenantProcedureRecord, error) {
	record, ok := s.procedures[procedureID]
	if !ok || record.TenantID != tenantID {
		return storage.TenantProcedureRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) PutTenantProcedure(_ context.Context, record storage.TenantProcedureRecord) error {
	if _, exists := s.procedures[record.ID]; exists {
		return storage.ErrConflict
	}
	s.procedures[record.ID] = record
	return nil
}

func (s *fakeStore) RenameTenantProcedure(_ context.Context, tenantID, procedureID, name string, updatedAt time.Time) (storage.TenantProcedureRecord, error) {
	record, ok := s.procedures[procedureID]
	if !ok || record.TenantID != tenantID {
		return storage.TenantProcedureRecord{}, storage.ErrNotFound
	}
	record.Name = name
	record.UpdatedAt = updatedAt
	s.procedures[procedureID] = record
	return record, nil
}

func (s *fakeStore) ListProcesses(_ context.Context, tenantID, procedureID string) ([]storage.ProcessRecord, error) {
	procedure, ok := s.procedures[procedureID]
	if !ok || procedure.TenantID != tenantID {
		return nil, nil
	}
	var results []storage.ProcessRecord
	for _, record := range s.processes {
		if record.TenantProcedureID == procedureID {
			results = append(results, record)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].SequenceOrder < results[j].SequenceOrder })
	return results, nil
}

func (s *fakeStore) GetProcess(_ context.Context, tenantID, processID string) (storage.ProcessRecord, error) {
	record, ok := s.processes[processID]
	if !ok {
		return storage.ProcessRecord{}, storage.ErrNotFound
	}
	procedure, ok := s.procedures[record.TenantProcedureID]
	if !ok || procedure.TenantID != tenantID {
		return storage.ProcessRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) PutProcess(_ context.Context, tenantID string, record storage.ProcessRecord) error {
	procedure, ok := s.procedures[record.TenantProcedureID]
	if !ok || procedure.TenantID != tenantID {
		return storage.ErrNotFound
	}
	s.processes[record.ID] = record
	return nil
}

func (s *fakeStore) RenameProcess(ctx context.Context, tenantID, processID, name string, updatedAt time.Time) (storage.ProcessRecord, error) {
	record, err := s.GetProcess(ctx, tenantID, processID)
	if err != nil {
		return storage.ProcessRecord{}, err
	}
	record.Name = name
	record.UpdatedAt = updatedAt
	s.processes[processID] = record
	return record, nil
}

func (s *fakeStore) ListActions(ctx context.Context, tenantID, processID string) ([]storage.ActionRecord, error) {
	if _, err := s.GetProcess(ctx, tenantID, processID); err != nil {
		return nil, nil
	}
	var results []storage.ActionRecord
	for _, record := range s.actions {
		if record.ProcessID == processID {
			results = append(results, record)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (s *fakeStore) GetAction(_ context.Context, tenantID, actionID string) (storage.ActionRecord, error) {
	record, ok := s.actions[actionID]
	if !ok {
		return storage.ActionRecord{}, storage.ErrNotFound
	}
	process, ok := s.processes[record.ProcessID]
	if !ok {
		return storage.ActionRecord{}, storage.ErrNotFound
	}
	procedure, ok := s.procedures[process.TenantProcedureID]
	if !ok || procedure.TenantID != tenantID {
		return storage.ActionRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) PutAction(ctx context.Context, tenantID string, record storage.ActionRecord) error {
	if _, err := s.GetProcess(ctx, tenantID, record.ProcessID); err != nil {
		return err
	}
	s.actions[record.ID] = record
	return nil
}

func (s *fakeStore) UpdateAction(ctx context.Context, tenantID string, record storage.ActionRecord) (storage.ActionRecord, error) {
	existing, err := s.GetAction(ctx, tenantID, record.ID)
	if err != nil {
		return storage.ActionRecord{}, err
	}
	existing.Name = record.Name
	existing.Description = record.Description
	existing.DefaultRoleID = record.DefaultRoleID
	existing.UpdatedAt = record.UpdatedAt
	s.actions[record.ID] = existing
	return existing, nil
}

func (s *fakeStore) ListProcedureActions(_ context.Context, tenantID, procedureID string) ([]storage.ActionRecord, error) {
	procedure, ok := s.procedures[procedureID]
	if !ok || procedure.TenantID != tenantID {
		return nil, nil
	}
	type ordered struct {
		sequence int
		action   storage.ActionRecord
	}
	var entries []ordered
	for _, action := range s.actions {
		process, ok := s.processes[action.ProcessID]
		if !ok || process.TenantProcedureID != procedureID {
			continue
		}
		entries = append(entries, ordered{sequence: process.SequenceOrder, action: action})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].sequence != entries[j].sequence {
			return entries[i].sequence < entries[j].sequence
		}
		return entries[i].action.ID < entries[j].action.ID
	})
	results := make([]storage.ActionRecord, 0, len(entries))
	for _, entry := range entries {
		results = append(results, entry.action)
	}
	return results, nil
}

// RunStore

func (s *fakeStore) CreateRunGraph(_ context.Context, graph storage.RunGraph) error {
	if s.createGraphErr != nil {
		return s.createGraphErr
	}
	if graph.Run.IdempotencyKey != "" {
		for _, run := range s.runs {
			if run.TenantID == graph.Run.TenantID && run.IdempotencyKey == graph.Run.IdempotencyKey {
				return storage.ErrConflict
			}
		}
	}
	s.runs[graph.Run.ID] = graph.Run
	for _, actionRun := range graph.ActionRuns {
		s.actionRuns[actionRun.ID] = actionRun
	}
	for _, task := range graph.Tasks {
		s.tasks[task.ID] = task
	}
	s.teams[graph.Team.ID] = graph.Team
	s.memberships[graph.Team.ID] = append([]storage.TeamMemberRecord(nil), graph.Members...)
	return nil
}

func (s *fakeStore) GetRun(_ context.Context, tenantID, runID string) (storage.RunRecord, error) {
	record, ok := s.runs[runID]
	if !ok || record.TenantID != tenantID {
		return storage.RunRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) GetRunByIdempotencyKey(_ context.Context, tenantID, key string) (storage.RunRecord, error) {
	for _, record := range s.runs {
		if record.TenantID == tenantID && record.IdempotencyKey == key && key != "" {
			return record, nil
		}
	}
	return storage.RunRecord{}, storage.ErrNotFound
}

func (s *fakeStore) ListRuns(_ context.Context, tenantID string) ([]storage.RunRecord, error) {
	var results []storage.RunRecord
	for _, record := range s.runs {
		if record.TenantID == tenantID {
			results = append(results, record)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].StartedAt.After(results[j].StartedAt) })
	return results, nil
}

func (s *fakeStore) GetActionRun(_ context.Context, actionRunID string) (storage.ActionRunRecord, error) {
	record, ok := s.actionRuns[actionRunID]
	if !ok {
		return storage.ActionRunRecord{}, storage.ErrNotFound
	}
	if run, ok := s.runs[record.RunID]; ok {
		record.TenantID = run.TenantID
	}
	return record, nil
}

func (s *fakeStore) UpdateActionRunStatus(ctx context.Context, actionRunID, statusID string, completedAt *time.Time, taskStatus string, updatedAt time.Time) (storage.ActionRunRecord, error) {
	record, ok := s.actionRuns[actionRunID]
	if !ok {
		return storage.ActionRunRecord{}, storage.ErrNotFound
	}
	record.StatusID = statusID
	record.CompletedAt = completedAt
	record.UpdatedAt = updatedAt
	s.actionRuns[actionRunID] = record
	for id, task := range s.tasks {
		if task.ActionRunID == actionRunID {
			task.Status = taskStatus
			task.UpdatedAt = updatedAt
			s.tasks[id] = task
		}
	}
	return s.GetActionRun(ctx, actionRunID)
}

func (s *fakeStore) UpdateActionRunNotes(ctx context.Context, actionRunID, notes string, updatedAt time.Time) (storage.ActionRunRecord, error) {
	record, ok := s.actionRuns[actionRunID]
	if !ok {
		return storage.ActionRunRecord{}, storage.ErrNotFound
	}
	record.Notes = notes
	record.UpdatedAt = updatedAt
	s.actionRuns[actionRunID] = record
	return s.GetActionRun(ctx, actionRunID)
}

func (s *fakeStore) GetTeamByRun(_ context.Context, tenantID, runID string) (storage.TeamRecord, []storage.TeamMemberView, error) {
	run, ok := s.runs[runID]
	if !ok || run.TenantID != tenantID {
		return storage.TeamRecord{}, nil, storage.ErrNotFound
	}
	for _, team := range s.teams {
		if team.RunID != runID {
			continue
		}
		var members []storage.TeamMemberView
		for _, membership := range s.memberships[team.ID] {
			view := storage.TeamMemberView{UserID: membership.UserID}
			if user, ok := s.users[membership.UserID]; ok {
				view.Name = user.Name
				view.Surname = user.Surname
			}
			members = append(members, view)
		}
		sort.Slice(members, func(i, j int) bool {
			if members[i].Surname != members[j].Surname {
				return members[i].Surname < members[j].Surname
			}
			return members[i].Name < members[j].Name
		})
		return team, members, nil
	}
	return storage.TeamRecord{}, nil, storage.ErrNotFound
}

func (s *fakeStore) ListTeamStatus(ctx context.Context, tenantID, runID string) ([]storage.TeamStatusRow, error) {
	if _, err := s.GetRun(ctx, tenantID, runID); err != nil {
		return nil, err
	}
	var results []storage.TeamStatusRow
	for _, actionRun := range s.actionRuns {
		if actionRun.RunID != runID {
			continue
		}
		row := storage.TeamStatusRow{
			ActionRunID:    actionRun.ID,
			ActionID:       actionRun.ActionID,
			AssigneeUserID: actionRun.AssigneeUserID,
			StatusID:       actionRun.StatusID,
			Notes:          actionRun.Notes,
			CompletedAt:    actionRun.CompletedAt,
		}
		if action, ok := s.actions[actionRun.ActionID]; ok {
			row.ActionName = action.Name
		}
		if status, ok := s.statuses[actionRun.StatusID]; ok {
			row.StatusName = status.Name
			row.StatusColor = status.Color
			row.Terminal = status.Terminal
		}
		if user, ok := s.users[actionRun.AssigneeUserID]; ok {
			row.AssigneeName = user.Name
			row.AssigneeSurname = user.Surname
		}
		results = append(results, row)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].AssigneeSurname != results[j].AssigneeSurname {
			return results[i].AssigneeSurname < results[j].AssigneeSurname
		}
		if results[i].AssigneeName != results[j].AssigneeName {
			return results[i].AssigneeName < results[j].AssigneeName
		}
		return results[i].ActionID < results[j].ActionID
	})
	return results, nil
}

// StatusStore

func (s *fakeStore) ListVisibleStatuses(_ context.Context, tenantID string) ([]storage.StatusRecord, error) {
	var results []storage.StatusRecord
	for _, record := range s.statuses {
		if record.TenantID == "" || record.TenantID == tenantID {
			results = append(results, record)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (s *fakeStore) GetStatus(_ context.Context, statusID string) (storage.StatusRecord, error) {
	if s.getStatusErr != nil {
		return storage.StatusRecord{}, s.getStatusErr
	}
	record, ok := s.statuses[statusID]
	if !ok {
		return storage.StatusRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) DefaultStatus(context.Context) (storage.StatusRecord, error) {
	for _, record := range s.statuses {
		if record.Default && record.TenantID == "" {
			return record, nil
		}
	}
	return storage.StatusRecord{}, storage.ErrNotFound
}

func (s *fakeStore) ListTransitionRules(_ context.Context, tenantID string) ([]storage.TransitionRuleRecord, error) {
	var results []storage.TransitionRuleRecord
	for _, rule := range s.rules {
		if rule.TenantID == tenantID {
			results = append(results, rule)
		}
	}
	return results, nil
}

// TaskStore

func (s *fakeStore) ListUpcomingByAssignee(_ context.Context, assigneeID string, from time.Time, limit int) ([]storage.TaskView, error) {
	var results []storage.TaskView
	for _, task := range s.tasks {
		if task.AssigneeID != assigneeID || task.Status != storage.TaskStatusOpen {
			continue
		}
		if task.DueDate != nil && task.DueDate.Before(from) {
			continue
		}
		results = append(results, storage.TaskView{TaskRecord: task})
	}
	sortTaskViews(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *fakeStore) ListUpcomingByTenant(_ context.Context, tenantID string, from time.Time, limit int) ([]storage.TaskView, error) {
	var results []storage.TaskView
	for _, task := range s.tasks {
		if task.TenantID != tenantID || task.Status != storage.TaskStatusOpen {
			continue
		}
		if task.DueDate != nil && task.DueDate.Before(from) {
			continue
		}
		results = append(results, storage.TaskView{TaskRecord: task})
	}
	sortTaskViews(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *fakeStore) ListByMonth(_ context.Context, tenantID string, from, to time.Time) ([]storage.TaskView, error) {
	var results []storage.TaskView
	for _, task := range s.tasks {
		if task.TenantID != tenantID || task.DueDate == nil {
			continue
		}
		if task.DueDate.Before(from) || !task.DueDate.Before(to) {
			continue
		}
		results = append(results, storage.TaskView{TaskRecord: task})
	}
	sortTaskViews(results)
	return results, nil
}

func sortTaskViews(views []storage.TaskView) {
	sort.Slice(views, func(i, j int) bool {
		left, right := views[i].DueDate, views[j].DueDate
		switch {
		case left == nil && right == nil:
			return views[i].ID < views[j].ID
		case left == nil:
			return false
		case right == nil:
			return true
		case !left.Equal(*right):
			return left.Before(*right)
		default:
			return views[i].ID < views[j].ID
		}
	})
}

// UserStore

func (s *fakeStore) GetUser(_ context.Context, userID string) (storage.UserRecord, error) {
	record, ok := s.users[userID]
	if !ok {
		return storage.UserRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) PutUser(_ context.Context, record storage.UserRecord) error {
	s.users[record.ID] = record
	return nil
}
