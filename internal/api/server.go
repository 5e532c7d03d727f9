package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/api/handler"
	mw "github.com/edvin/devtunnel/internal/api/middleware"
	"github.com/edvin/devtunnel/internal/core"
)

// Pinger reports whether the route store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router     chi.Router
	logger     zerolog.Logger
	services   *core.Services
	store      Pinger
	apiKeyHash string
	mcp        http.Handler
}

// NewServer wires the HTTP API. apiKeyHash is the hashed API key or empty to
// disable authentication; mcp may be nil.
func NewServer(logger zerolog.Logger, services *core.Services, store Pinger, apiKeyHash string, mcp http.Handler) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		logger:     logger,
		services:   services,
		store:      store,
		apiKeyHash: apiKeyHash,
		mcp:        mcp,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	if s.mcp != nil {
		s.router.With(mw.Auth(s.apiKeyHash)).Handle("/mcp", s.mcp)
		s.router.With(mw.Auth(s.apiKeyHash)).Handle("/mcp/*", s.mcp)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.apiKeyHash))

		// Settings
		settings := handler.NewSettings(s.services.Settings)
		r.Get("/settings", settings.Get)
		r.Post("/settings", settings.Save)
		r.Delete("/settings", settings.Delete)

		// Tunnel
		tunnel := handler.NewTunnel(s.services.Tunnel)
		r.Get("/tunnel/config", tunnel.Config)
		r.Get("/tunnel/info", tunnel.Info)
		r.Get("/tunnel/status", tunnel.Status)
		r.Post("/restart", tunnel.Restart)

		// Routes
		route := handler.NewRoute(s.services.Publish, s.services.Reconcile, s.services.Health)
		r.Get("/routes", route.List)
		r.Get("/routes/mapped", route.Mapped)
		r.Get("/routes/orphaned", route.Orphaned)
		r.Delete("/routes/orphaned", route.DeleteOrphans)
		r.Delete("/routes/orphaned/{hostname}", route.DeleteOrphan)
		r.Put("/routes/{hostname}/port", route.UpdatePort)
		r.Put("/routes/{hostname}/websocket", route.UpdateWebsocket)
		r.Put("/routes/{hostname}/protection", route.UpdateProtection)
		r.Post("/check-route/{hostname}", route.Check)
		r.Get("/projects/{projectID}/routes", route.ListByProject)

		// Publication
		publish := handler.NewPublish(s.services.Publish)
		r.Post("/publish", publish.Create)
		r.Delete("/publish/{hostname}", publish.Teardown)

		// Reconciliation
		sync := handler.NewSync(s.services.Reconcile)
		r.Post("/sync", sync.Run)

		// Projects
		project := handler.NewProject(s.services.Project)
		r.Get("/projects", project.List)
		r.Post("/projects", project.Create)

		// Event stream
		events := handler.NewEvents(s.services.Events, s.logger)
		r.Get("/events", events.Stream)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		healthy = false
	} else {
		checks["store"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
