package http

import (
	"net/http"
	"time"

	"github.com/firmdesk/firmdesk/internal/services/procedure/domain"
	"github.com/firmdesk/firmdesk/internal/services/procedure/storage"
)

type templatePayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type tenantProcedurePayload struct {
	ID               string `json:"id"`
	SourceTemplateID string `json:"sourceTemplateId"`
	Name             string `json:"name"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

type processPayload struct {
	ID                string `json:"id"`
	TenantProcedureID string `json:"tenantProcedureId"`
	Name              string `json:"name"`
	SequenceOrder     int    `json:"sequenceOrder"`
}

type actionPayload struct {
	ID            string `json:"id"`
	ProcessID     string `json:"processId"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	DefaultRoleID string `json:"defaultRoleId"`
}

func toTenantProcedurePayload(record storage.TenantProcedureRecord) tenantProcedurePayload {
	return tenantProcedurePayload{
		ID:               record.ID,
		SourceTemplateID: record.SourceTemplateID,
		Name:             record.Name,
		CreatedAt:        record.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        record.UpdatedAt.Format(time.RFC3339),
	}
}

func toProcessPayload(record storage.ProcessRecord) processPayload {
	return processPayload{
		ID:                record.ID,
		TenantProcedureID: record.TenantProcedureID,
		Name:              record.Name,
		SequenceOrder:     record.SequenceOrder,
	}
}

func toActionPayload(record storage.ActionRecord) actionPayload {
	return actionPayload{
		ID:            record.ID,
		ProcessID:     record.ProcessID,
		Name:          record.Name,
		Description:   record.Description,
		DefaultRoleID: record.DefaultRoleID,
	}
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.service.ListTemplates(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	payload := make([]templatePayload, 0, len(templates))
	for _, template := range templates {
		payload = append(payload, templatePayload{ID: template.ID, Name: template.Name})
	}
	respondJSON(w, http.StatusOK, map[string]any{"templates": payload})
}

func (s *Server) handleListTenantProcedures(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	procedures, err := s.service.ListTenantProcedures(r.Context(), identity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	payload := make([]tenantProcedurePayload, 0, len(procedures))
	for _, procedure := range procedures {
		payload = append(payload, toTenantProcedurePayload(procedure))
	}
	respondJSON(w, http.StatusOK, map[string]any{"procedures": payload})
}

func (s *Server) handleCreateTenantProcedure(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	var request struct {
		SourceTemplateID string `json:"sourceTemplateId"`
		CustomName       string `json:"customName"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	created, err := s.service.CreateTenantProcedure(r.Context(), identity, domain.CreateTenantProcedureInput{
		SourceTemplateID: request.SourceTemplateID,
		Name:             request.CustomName,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/tenant-procedures/"+created.ID)
	respondJSON(w, http.StatusCreated, toTenantProcedurePayload(created))
}

func (s *Server) handleRenameTenantProcedure(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	var request struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	renamed, err := s.service.RenameTenantProcedure(r.Context(), identity, r.PathValue("procedureID"), request.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTenantProcedurePayload(renamed))
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	processes, err := s.service.ListProcesses(r.Context(), identity, r.PathValue("procedureID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	payload := make([]processPayload, 0, len(processes))
	for _, process := range processes {
		payload = append(payload, toProcessPayload(process))
	}
	respondJSON(w, http.StatusOK, map[string]any{"processes": payload})
}

func (s *Server) handleCreateProcess(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	var request struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	created, err := s.service.CreateProcess(r.Context(), identity, r.PathValue("procedureID"), request.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/processes/"+created.ID)
	respondJSON(w, http.StatusCreated, toProcessPayload(created))
}

func (s *Server) handleRenameProcess(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	var request struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	renamed, err := s.service.RenameProcess(r.Context(), identity, r.PathValue("processID"), request.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProcessPayload(renamed))
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	actions, err := s.service.ListActions(r.Context(), identity, r.PathValue("processID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	payload := make([]actionPayload, 0, len(actions))
	for _, action := range actions {
		payload = append(payload, toActionPayload(action))
	}
	respondJSON(w, http.StatusOK, map[string]any{"actions": payload})
}

func (s *Server) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	var request struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		DefaultRoleID string `json:"defaultRoleId"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	created, err := s.service.CreateAction(r.Context(), identity, domain.CreateActionInput{
		ProcessID:     r.PathValue("processID"),
		Name:          request.Name,
		Description:   request.Description,
		DefaultRoleID: request.DefaultRoleID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/actions/"+created.ID)
	respondJSON(w, http.StatusCreated, toActionPayload(created))
}

func (s *Server) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	var request struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		DefaultRoleID string `json:"defaultRoleId"`
	}
	if !decodeJSON(w, r, &request) {
		return
	}
	updated, err := s.service.UpdateAction(r.Context(), identity, domain.UpdateActionInput{
		ActionID:      r.PathValue("actionID"),
		Name:          request.Name,
		Description:   request.Description,
		DefaultRoleID: request.DefaultRoleID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toActionPayload(updated))
}

func (s *Server) handleFlattenedActions(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		respondError(w, r, errUnauthenticated)
		return
	}
	actions, err := s.service.FlattenedActions(r.Context(), identity, r.PathValue("procedureID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	payload := make([]actionPayload, 0, len(actions))
	for _, action := range actions {
		payload = append(payload, toActionPayload(action))
	}
	respondJSON(w, http.StatusOK, map[string]any{"actions": payload})
}
