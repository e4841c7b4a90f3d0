package api

import (
	"net/http"

	"github.com/vrsandeep/tunedl/internal/models"
)

type progressResponse struct {
	Running bool                    `json:"running"`
	Items   []models.ProgressRecord `json:"items"`
}

// handleGetProgress returns the caller's live records so a client that just
// (re)connected can catch up before applying events.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	items := s.app.Tracker().List(user.ID)
	if items == nil {
		items = []models.ProgressRecord{}
	}
	RespondWithJSON(w, http.StatusOK, progressResponse{
		Running: s.app.Processor().Running(user.ID),
		Items:   items,
	})
}
