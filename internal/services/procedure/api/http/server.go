package http

import (
	"net/http"

	"github.com/firmdesk/firmdesk/internal/services/procedure/domain"
	"github.com/firmdesk/firmdesk/internal/services/shared/authctx"
	"github.com/firmdesk/firmdesk/internal/services/shared/route"
)

// Server routes the procedure engine API.
type Server struct {
	service  *domain.Service
	verifier authctx.Verifier
}

// NewServer constructs the API server around the domain service.
func NewServer(service *domain.Service, verifier authctx.Verifier) *Server {
	return &Server{service: service, verifier: verifier}
}

// Handler builds the routed, authenticated handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /procedure-templates", s.handleListTemplates)

	mux.HandleFunc("GET /tenant-procedures", s.handleListTenantProcedures)
	mux.HandleFunc("POST /tenant-procedures", s.handleCreateTenantProcedure)
	mux.HandleFunc("PATCH /tenant-procedures/{procedureID}", s.handleRenameTenantProcedure)
	mux.HandleFunc("GET /tenant-procedures/{procedureID}/processes", s.handleListProcesses)
	mux.HandleFunc("POST /tenant-procedures/{procedureID}/processes", s.handleCreateProcess)
	mux.HandleFunc("GET /tenant-procedures/{procedureID}/actions", s.handleFlattenedActions)
	mux.HandleFunc("PATCH /processes/{processID}", s.handleRenameProcess)
	mux.HandleFunc("GET /processes/{processID}/actions", s.handleListActions)
	mux.HandleFunc("POST /processes/{processID}/actions", s.handleCreateAction)
	mux.HandleFunc("PATCH /actions/{actionID}", s.handleUpdateAction)

	mux.HandleFunc("POST /procedure-runs", s.handleInstantiate)
	mux.HandleFunc("GET /procedure-runs", s.handleListRuns)
	mux.HandleFunc("GET /procedure-runs/{runID}", s.handleGetRun)
	mux.HandleFunc("GET /procedure-runs/{runID}/team", s.handleTeam)
	mux.HandleFunc("GET /procedure-runs/{runID}/team-status", s.handleTeamStatus)

	mux.HandleFunc("GET /action-runs/statuses", s.handleListStatuses)
	mux.HandleFunc("PATCH /action-runs/{actionRunID}/status", s.handleUpdateStatus)
	mux.HandleFunc("PATCH /action-runs/{actionRunID}/notes", s.handleUpdateNotes)

	mux.HandleFunc("GET /tasks/mine-upcoming", s.handleMyUpcoming)
	mux.HandleFunc("GET /tasks/tenant-upcoming", s.handleTenantUpcoming)
	mux.HandleFunc("GET /tasks", s.handleTasksByMonth)

	authed := withAuth(s.verifier, mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route.RedirectTrailingSlash(w, r) {
			return
		}
		authed.ServeHTTP(w, r)
	})
}
