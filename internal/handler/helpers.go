// Package handler holds the HTTP mutation coordinators: authorize, write the
// record store, recompute aggregates, answer the caller with the
// personalized projection and push the sanitized one to the hub.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/echowave/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
