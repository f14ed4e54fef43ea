package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dgallion1/apindex/internal/index"
	"github.com/dgallion1/apindex/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Jobs queues volume jobs and reports on them. *pipeline.Orchestrator satisfies it.
type Jobs interface {
	Submit(job *pipeline.Job) error
	GetJob(id string) *pipeline.Job
	QueueDepth() int
}

// Volumes manages what has already been written. *pipeline.Destination satisfies it.
type Volumes interface {
	DeleteVolume(ctx context.Context, druid string) error
	IndexStats() *index.Stats
}

type Config struct {
	APIKey      string
	CORSOrigins []string
}

// Server is the HTTP API server for apindex.
type Server struct {
	router  chi.Router
	jobs    Jobs
	volumes Volumes
	log     *slog.Logger
	cfg     Config
}

func NewServer(jobs Jobs, volumes Volumes, log *slog.Logger, cfg Config) *Server {
	s := &Server{
		jobs:    jobs,
		volumes: volumes,
		log:     log,
		cfg:     cfg,
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
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/volumes", s.handleIndexVolumes)
		r.Delete("/api/volumes/{druid}", s.handleDeleteVolume)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/stats/index", s.handleIndexStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.jobs.QueueDepth(),
	})
}
