// Package http exposes the procedure engine as a JSON HTTP API.
package http

import (
	"encoding/json"
	"log"
	"net/http"

	apperrors "github.com/firmdesk/firmdesk/internal/platform/errors"
	"github.com/firmdesk/firmdesk/internal/platform/errors/i18n"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// respondError maps a domain error to its HTTP status and localized message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	catalog := i18n.GetCatalog(r.Header.Get("Accept-Language"))
	respondJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    string(code),
		Message: catalog.Format(string(code), apperrors.GetMetadata(err)),
	}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		respondJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
			Code:    "MALFORMED_BODY",
			Message: "request body is not valid JSON",
		}})
		return false
	}
	return true
}
