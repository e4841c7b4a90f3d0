// Handlers for the per-user download queue and its batches.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

type urlsPayload struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	var payload urlsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	added, err := s.app.Queue().Enqueue(user.ID, payload.URLs)
	if err != nil {
		s.log.Error("enqueue failed", zap.String("owner", user.ID), zap.Error(err))
		RespondWithError(w, http.StatusInternalServerError, "Failed to add to the download queue")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{"added": len(added)})
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	urls, err := s.app.Queue().List(user.ID)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve download queue")
		return
	}
	if urls == nil {
		urls = []string{}
	}
	RespondWithJSON(w, http.StatusOK, map[string][]string{"urls": urls})
}

// handleRemoveFromQueue removes the listed URLs. No body, or no URLs, clears
// the whole queue.
func (s *Server) handleRemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	var payload urlsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	removed, err := s.app.Queue().Remove(user.ID, payload.URLs)
	if err != nil {
		s.log.Error("remove from queue failed", zap.String("owner", user.ID), zap.Error(err))
		RespondWithError(w, http.StatusInternalServerError, "Failed to update download queue")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleRemoveQueueItem(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	url := r.URL.Query().Get("url")
	if url == "" {
		RespondWithError(w, http.StatusBadRequest, "Missing url")
		return
	}

	ok, err := s.app.Queue().RemoveOne(user.ID, url)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to update download queue")
		return
	}
	removed := 0
	if ok {
		removed = 1
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	queued, err := s.app.Processor().StartBatch(r.Context(), user.ID)
	if err != nil {
		RespondWithAppError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}
