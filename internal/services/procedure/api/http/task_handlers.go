package http

import (
	"net/http"
	"strconv"

	apperrors "github.com/firmdesk/firmdesk/internal/platform/errors"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

type taskPayload struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DueDate         string `json:"dueDate,omitempty"`
	AssigneeID      string `json:"assigneeId"`
	AssigneeName    string `json:"assigneeName"`
	AssigneeSurname string `json:"assigneeSurname"`
	ActionRunID     string `json:"actionRunId,omitempty"`
	Status          string `json:"status"`
}

func toTaskPayload(view storage.TaskView) taskPayload {
	payload := taskPayload{
		ID:              view.ID,
		Title:           view.Title,
		Description:     view.Description,
		AssigneeID:      view.AssigneeID,
		AssigneeName:    view.AssigneeName,
		AssigneeSurname: view.AssigneeSurname,
		ActionRunID:     view.ActionRunID,
		Status:          view.Status,
	}
	if view.DueDate != nil {
		payload.DueDate = view.DueDate.Format(dueDateLayout)
	}
	return payload
}

func respondTasks(w http.ResponseWriter, views []storage.TaskView) {
	payload := make([]taskPayload, 0, len(views))
	for _, view := range views {
		payload = append(payload, toTaskPayload(view))
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": payload})
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}

func (s *Server) handleMyUpcoming(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	tasks, err := s.service.MyUpcoming(r.Context(), identity, queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondTasks(w, tasks)
}

func (s *Server) handleTenantUpcoming(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	tasks, err := s.service.TenantUpcoming(r.Context(), identity, queryLimit(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondTasks(w, tasks)
}

func (s *Server) handleTasksByMonth(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	query := r.URL.Query()
	year, yearErr := strconv.Atoi(query.Get("year"))
	month, monthErr := strconv.Atoi(query.Get("month"))
	if yearErr != nil || monthErr != nil {
		respondError(w, r, apperrors.WithMetadata(apperrors.CodeMonthOutOfRange, "year and month query parameters are required", map[string]string{
			"Month": query.Get("month"),
		}))
		return
	}
	tasks, err := s.service.ByMonth(r.Context(), identity, year, month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondTasks(w, tasks)
}
