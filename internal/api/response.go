// JSON response helpers and the mapping from domain errors to HTTP status.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vrsandeep/tunedl/internal/downloader"
	"github.com/vrsandeep/tunedl/internal/jobs"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RespondWithJSON writes payload as JSON with the given status code.
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithError writes {"error": message}.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, errorBody{Error: message})
}

// RespondWithAppError maps err onto a status and a stable machine-readable
// code. Causes of a BatchFatalError stay in the server log.
func RespondWithAppError(w http.ResponseWriter, err error) {
	var fatal *downloader.BatchFatalError
	switch {
	case errors.Is(err, downloader.ErrAlreadyRunning):
		RespondWithJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "already_running"})
	case errors.Is(err, jobs.ErrShutdown):
		RespondWithJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "shutting_down"})
	case errors.As(err, &fatal):
		RespondWithJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to start batch", Code: "batch_failed"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		RespondWithJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "cancelled"})
	default:
		RespondWithJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}
