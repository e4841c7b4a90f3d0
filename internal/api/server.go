// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/assets"
	"github.com/vrsandeep/tunedl/internal/core"
)

// Server holds the dependencies for our API.
type Server struct {
	app *core.App
	log *zap.Logger
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{app: app, log: app.Logger().Named("http")}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/version", s.handleGetVersion)
	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.AuthMiddleware)

		// Long-lived; must not sit behind the request timeout.
		r.Get("/ws", s.handleWebSocket)

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/me", s.handleGetMe)

			r.Get("/queue", s.handleListQueue)
			r.Post("/queue", s.handleEnqueue)
			r.Delete("/queue", s.handleRemoveFromQueue)
			r.Delete("/queue/item", s.handleRemoveQueueItem)
			r.Post("/queue/start", s.handleStartBatch)

			r.Get("/progress", s.handleGetProgress)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.AdminOnlyMiddleware)

				r.Get("/jobs/status", s.handleGetAdminJobsStatus)
				r.Post("/jobs/run", s.handleRunAdminJob)
				r.Get("/batches", s.handleListBatches)
				r.Get("/users", s.handleListOnlineUsers)
				r.Get("/dashboard", s.handleGetDashboard)
			})
		})
	})

	// Frontend: a single monitor page from the embedded FS.
	webFS, err := fs.Sub(assets.WebFS, "web")
	if err != nil {
		s.log.Fatal("failed to create web sub-filesystem", zap.Error(err))
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, webFS, "index.html")
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB().PingContext(r.Context()); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": core.Version})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, getUserFromContext(r))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.app.WsHub().ServeWs(w, r, *getUserFromContext(r))
}
