package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/notesmith/internal/llm"
	"github.com/dgallion1/notesmith/internal/pipeline"
	"github.com/dgallion1/notesmith/internal/registry"
	"github.com/dgallion1/notesmith/internal/stage"
)

// Server is the HTTP API for notesmith.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	runner       *stage.Runner
	store        registry.Store
	stats        *llm.Stats
	model        string
	apiKey       string
	log          *slog.Logger
}

// Options carries the optional pieces of a Server.
type Options struct {
	APIKey string
	Model  string
	Stats  *llm.Stats
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, runner *stage.Runner, store registry.Store, log *slog.Logger, opts Options) *Server {
	s := &Server{
		orchestrator: orch,
		runner:       runner,
		store:        store,
		stats:        opts.Stats,
		model:        opts.Model,
		apiKey:       opts.APIKey,
		log:          log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKey, s.log))

		r.Get("/api/documents", s.handleListDocuments)
		r.Route("/api/documents/{docID}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Put("/info", s.handlePutInfo)
			r.Post("/stages/{stage}", s.handleRunStage)
			r.Post("/build", s.handleBuild)
			r.Get("/sections/{key}", s.handleGetSection)
			r.Get("/issues", s.handleIssues)
			r.Get("/assemble", s.handleAssemble)
			r.Get("/jobs", s.handleListJobs)
		})
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
