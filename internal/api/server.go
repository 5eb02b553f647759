package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
	"github.com/MikeSquared-Agency/rosa/internal/datasource"
	"github.com/MikeSquared-Agency/rosa/internal/hermes"
	"github.com/MikeSquared-Agency/rosa/internal/ingest"
	"github.com/MikeSquared-Agency/rosa/internal/metrics"
	"github.com/MikeSquared-Agency/rosa/internal/session"
)

// RecordLoader returns the current merged contacts.
type RecordLoader interface {
	Records(ctx context.Context) ([]contact.Record, error)
}

// Deps are the collaborators the dashboard API serves from.
type Deps struct {
	Contacts RecordLoader
	Source   datasource.Source
	Sessions *session.Manager
	Metrics  *metrics.Metrics
	Events   hermes.Publisher // nil disables events
	Logger   *slog.Logger

	// Ingest re-merges the CSV directory; nil disables POST /api/v1/ingest.
	Ingest func(ctx context.Context) (*ingest.Result, error)

	Backend        string
	APIToken       string
	DefaultLimit   int
	ExportFilename string
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	logger *slog.Logger
	srv    *http.Server
}

func NewServer(port int, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.DefaultLimit < 1 {
		deps.DefaultLimit = 100
	}
	if deps.ExportFilename == "" {
		deps.ExportFilename = "contacts_disponibles.csv"
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		logger: deps.Logger,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", deps.Metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(deps.APIToken))
		r.Get("/rosa/status", s.status)
		r.Get("/stats", s.stats)
		if deps.Ingest != nil {
			r.Post("/ingest", s.runIngest)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware(false))
			r.Get("/contacts", s.listContacts)
			r.Get("/charts/status", s.statusChart)
			r.Get("/charts/calls", s.callsChart)
			r.Get("/export/preview", s.previewExport)
			r.Get("/history", s.history)
			r.Delete("/session", s.endSession)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware(true))
			r.Post("/export", s.export)
			r.Post("/session/reset", s.resetSession)
		})
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ExpireSessions drops sessions idle for longer than ttl, checking every
// interval until ctx is done, and keeps the active-sessions gauge current.
func (s *Server) ExpireSessions(ctx context.Context, ttl, interval time.Duration) {
	s.deps.Sessions.Expire(ctx, ttl, interval, func(dropped, remaining int) {
		s.deps.Metrics.SessionsActive.Set(float64(remaining))
		if dropped > 0 {
			s.logger.Info("idle sessions expired", "dropped", dropped, "remaining", remaining)
		}
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "rosa",
		"backend":  s.deps.Backend,
		"sessions": s.deps.Sessions.Len(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
