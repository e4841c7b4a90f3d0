package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/vrsandeep/tunedl/internal/jobs"
	"github.com/vrsandeep/tunedl/internal/models"
)

func (s *Server) handleRunAdminJob(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		JobName string `json:"job_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	err := s.app.JobManager().RunJob(payload.JobName, s.app)
	if errors.Is(err, jobs.ErrShutdown) {
		RespondWithAppError(w, err)
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusConflict, err.Error()) // 409 Conflict if a job is already running
		return
	}

	RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": "Job '" + payload.JobName + "' started successfully.",
	})
}

func (s *Server) handleGetAdminJobsStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.app.JobManager().GetStatus()
	RespondWithJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	runs, err := s.app.Store().ListBatchRuns(r.URL.Query().Get("owner"), limit)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list batches")
		return
	}
	if runs == nil {
		runs = []*models.BatchRunLog{}
	}
	RespondWithJSON(w, http.StatusOK, runs)
}

type onlineUser struct {
	ID      string `json:"id"`
	Running bool   `json:"running"`
}

func (s *Server) handleListOnlineUsers(w http.ResponseWriter, r *http.Request) {
	owners := s.app.WsHub().ConnectedOwners()
	sort.Strings(owners)
	users := make([]onlineUser, 0, len(owners))
	for _, id := range owners {
		users = append(users, onlineUser{ID: id, Running: s.app.Processor().Running(id)})
	}
	RespondWithJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	queued, err := s.app.Store().CountQueueItems()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to count queue")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]int{
		"queued_items":   queued,
		"active_batches": len(s.app.Processor().ActiveRuns()),
		"online_users":   len(s.app.WsHub().ConnectedOwners()),
	})
}
