package http

import (
	"net/http"
	"time"

	apperrors "github.com/firmdesk/firmdesk/internal/platform/errors"
	"github.com/firmdesk/firmdesk/internal/services/procedure/domain"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

const dueDateLayout = "2006-01-02"

type runPayload struct {
	ID                string `json:"id"`
	TenantProcedureID string `json:"tenantProcedureId"`
	TargetEntityID    string `json:"targetEntityId"`
	CreatorID         string `json:"creatorId"`
	StartedAt         string `json:"startedAt"`
	DueDate           string `json:"dueDate,omitempty"`
}

type teamMemberPayload struct {
	UserID  string `json:"userId"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

type teamPayload struct {
	ID      string              `json:"id"`
	RunID   string              `json:"runId"`
	Name    string              `json:"name"`
	Members []teamMemberPayload `json:"members"`
}

type teamStatusRowPayload struct {
	ActionRunID     string `json:"actionRunId"`
	ActionName      string `json:"actionName"`
	AssigneeUserID  string `json:"assigneeUserId"`
	AssigneeName    string `json:"assigneeName"`
	AssigneeSurname string `json:"assigneeSurname"`
	StatusID        string `json:"statusId"`
	StatusName      string `json:"statusName"`
	StatusColor     string `json:"statusColor"`
	Terminal        bool   `json:"terminal"`
	Notes           string `json:"notes"`
	CompletedAt     string `json:"completedAt,omitempty"`
}

type actionRunPayload struct {
	ID             string `json:"id"`
	RunID          string `json:"runId"`
	ActionID       string `json:"actionId"`
	AssigneeUserID string `json:"assigneeUserId"`
	StatusID       string `json:"statusId"`
	Notes          string `json:"notes"`
	DueDate        string `json:"dueDate,omitempty"`
	CompletedAt    string `json:"completedAt,omitempty"`
}

type statusPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Default  bool   `json:"default"`
	Terminal bool   `json:"terminal"`
}

func toRunPayload(record storage.RunRecord) runPayload {
	payload := runPayload{
		ID:                record.ID,
		TenantProcedureID: record.TenantProcedureID,
		TargetEntityID:    record.TargetEntityID,
		CreatorID:         record.CreatorID,
		StartedAt:         record.StartedAt.Format(time.RFC3339),
	}
	if record.DueDate != nil {
		payload.DueDate = record.DueDate.Format(dueDateLayout)
	}
	return payload
}

func toActionRunPayload(record storage.ActionRunRecord) actionRunPayload {
	payload := actionRunPayload{
		ID:             record.ID,
		RunID:          record.RunID,
		ActionID:       record.ActionID,
		AssigneeUserID: record.AssigneeUserID,
		StatusID:       record.StatusID,
		Notes:          record.Notes,
	}
	if record.DueDate != nil {
		payload.DueDate = record.DueDate.Format(dueDateLayout)
	}
	if record.CompletedAt != nil {
		payload.CompletedAt = record.CompletedAt.Format(time.RFC3339)
	}
	return payload
}

func toTeamPayload(team storage.TeamRecord, members []storage.TeamMemberView) teamPayload {
	payload := teamPayload{
		ID:      team.ID,
		RunID:   team.RunID,
		Name:    team.Name,
		Members: make([]teamMemberPayload, 0, len(members)),
	}
	for _, member := range members {
		payload.Members = append(payload.Members, teamMemberPayload{
			UserID:  member.UserID,
			Name:    member.Name,
			Surname: member.Surname,
		})
	}
	return payload
}

func (s *Server) handleInstantiate(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	var request struct {
		TenantProcedureID string            `json:"tenantProcedureId"`
		TargetEntityID    string            `json:"targetEntityId"`
		DueDate           string            `json:"dueDate"`
		Assignments       map[string]string `json:"assignments"`
		IdempotencyKey    string            `json:"idempotencyKey"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}

	input := domain.InstantiateInput{
		TenantProcedureID: request.TenantProcedureID,
		TargetEntityID:    request.TargetEntityID,
		Assignments:       request.Assignments,
		IdempotencyKey:    request.IdempotencyKey,
	}
	if request.IdempotencyKey == "" {
		input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	if request.DueDate != "" {
		due, err := time.ParseInLocation(dueDateLayout, request.DueDate, time.UTC)
		if err != nil {
			respondError(w, r, apperrors.WithMetadata(apperrors.CodeRunDueDateInvalid, "due date must be YYYY-MM-DD", map[string]string{
				"DueDate": request.DueDate,
			}))
			return
		}
		input.DueDate = &due
	}

	result, err := s.service.Instantiate(r.Context(), identity, input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	actionRuns := make([]actionRunPayload, 0, len(result.ActionRuns))
	for _, actionRun := range result.ActionRuns {
		actionRuns = append(actionRuns, toActionRunPayload(actionRun))
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/procedure-runs/"+result.Run.ID)
	respondJSON(w, status, map[string]any{
		"run":        toRunPayload(result.Run),
		"actionRuns": actionRuns,
		"team":       toTeamPayload(result.Team, result.Members),
		"replayed":   result.Replayed,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	runs, err := s.service.ListRuns(r.Context(), identity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	payload := make([]runPayload, 0, len(runs))
	for _, run := range runs {
		payload = append(payload, toRunPayload(run))
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": payload})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	run, err := s.service.GetRun(r.Context(), identity, r.PathValue("runID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toRunPayload(run))
}

func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	team, members, err := s.service.Team(r.Context(), identity, r.PathValue("runID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTeamPayload(team, members))
}

func (s *Server) handleTeamStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	report, err := s.service.TeamStatus(r.Context(), identity, r.PathValue("runID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	rows := make([]teamStatusRowPayload, 0, len(report.Rows))
	for _, row := range report.Rows {
		payload := teamStatusRowPayload{
			ActionRunID:     row.ActionRunID,
			ActionName:      row.ActionName,
			AssigneeUserID:  row.AssigneeUserID,
			AssigneeName:    row.AssigneeName,
			AssigneeSurname: row.AssigneeSurname,
			StatusID:        row.StatusID,
			StatusName:      row.StatusName,
			StatusColor:     row.StatusColor,
			Terminal:        row.Terminal,
			Notes:           row.Notes,
		}
		if row.CompletedAt != nil {
			payload.CompletedAt = row.CompletedAt.Format(time.RFC3339)
		}
		rows = append(rows, payload)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"run":   toRunPayload(report.Run),
		"rows":  rows,
		"done":  report.Done,
		"total": report.Total,
	})
}

func (s *Server) handleListStatuses(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	statuses, err := s.service.ListStatuses(r.Context(), identity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	payload := make([]statusPayload, 0, len(statuses))
	for _, status := range statuses {
		payload = append(payload, statusPayload{
			ID:       status.ID,
			Name:     status.Name,
			Color:    status.Color,
			Default:  status.Default,
			Terminal: status.Terminal,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"statuses": payload})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	var request struct {
		StatusID string `json:"statusId"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	updated, err := s.service.UpdateStatus(r.Context(), identity, r.PathValue("actionRunID"), request.StatusID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toActionRunPayload(updated))
}

func (s *Server) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	var request struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	updated, err := s.service.UpdateNotes(r.Context(), identity, r.PathValue("actionRunID"), request.Text)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toActionRunPayload(updated))
}
