package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v3"

	"nfviz.dev/core/app"
	"nfviz.dev/core/config"
	"nfviz.dev/core/log"
	"nfviz.dev/core/orchestrator"
	"nfviz.dev/core/registry"
	"nfviz.dev/core/status"
	"nfviz.dev/core/telemetry"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "serve the step status API and change stream",
		Action: Run,
		Description: `
Environment variables:
	NFVIZ_SERVER_LISTEN_ADDR        (default: 127.0.0.1:6580)
	NFVIZ_SERVER_DEV                (default: false)
	NFVIZ_BACKEND_URL               (default: http://localhost:5000)
	NFVIZ_BACKEND_READY_TIMEOUT     (default: 30s)
	NFVIZ_POLL_INTERVAL             (default: 5s)
	NFVIZ_REGISTRY_PATH             (optional YAML registry)
	NFVIZ_JOURNAL_PROVIDER          (memory, sqlite or redis; default: memory)
	NFVIZ_JOURNAL_SQLITE_PATH       (default: nfviz.db)
	NFVIZ_JOURNAL_REDIS_ADDR        (default: localhost:6379)
	NFVIZ_JOURNAL_REDIS_KEY         (default: nfviz:changes)
	NFVIZ_TELEMETRY_ENABLED         (default: false)
	NFVIZ_POSTHOG_API_KEY
	NFVIZ_POSTHOG_ENDPOINT          (default: https://eu.i.posthog.com)
	NFVIZ_LOG_LEVEL                 (default: info)
`,
	}
}

type Server struct {
	reg   *registry.Registry
	plan  registry.Plan
	store *status.Store
	o     *orchestrator.Orchestrator
	t     *telemetry.Telemetry
	l     *slog.Logger
}

func New(a *app.App, l *slog.Logger) *Server {
	return &Server{
		reg:   a.Registry,
		plan:  a.Plan,
		store: a.Store,
		o:     a.Orchestrator,
		t:     a.Telemetry,
		l:     l,
	}
}

func Run(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.FromContext(ctx)

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	if cfg.Server.Dev {
		logger.Info("running in dev mode, telemetry is exported to stderr")
	}

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: New(a, logger).Router(),
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.WithoutCancel(ctx))
	}()

	logger.Info("starting nfviz server", "address", cfg.Server.ListenAddr, "backend", cfg.Backend.URL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(s.RequestLogger)
	if s.t != nil {
		mux.Use(s.t.RequestInFlight())
		mux.Use(s.t.RequestDuration())
	}

	mux.Get("/events", s.Events)
	mux.Route("/api", func(r chi.Router) {
		r.Get("/health", s.Health)
		r.Get("/graph", s.Graph)
		r.Get("/state", s.State)
		r.Post("/run", s.RunAll)
		r.Post("/stop", s.Stop)
		r.Post("/monitor", s.Monitor)
	})
	return mux
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type graphResponse struct {
	Steps []registry.Step `json:"steps"`
	Edges []registry.Edge `json:"edges"`
	Plan  registry.Plan   `json:"plan"`
}

func (s *Server) Graph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, graphResponse{
		Steps: s.reg.Steps(),
		Edges: s.reg.Edges(),
		Plan:  s.plan,
	})
}

type sessionInfo struct {
	ID    string `json:"id,omitempty"`
	State string `json:"state"`
}

type stateResponse struct {
	State   orchestrator.State          `json:"state"`
	Session sessionInfo                 `json:"session"`
	Seq     uint64                      `json:"seq"`
	Steps   map[string]status.StepState `json:"steps"`
}

func (s *Server) State(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	id, st := s.o.Session()
	writeJSON(w, http.StatusOK, stateResponse{
		State:   s.o.State(),
		Session: sessionInfo{ID: id, State: st.String()},
		Seq:     snap.Seq,
		Steps:   snap.Steps,
	})
}

func (s *Server) RunAll(w http.ResponseWriter, r *http.Request) {
	id := s.o.RunAll()
	writeJSON(w, http.StatusAccepted, sessionInfo{ID: id, State: "active"})
}

func (s *Server) Stop(w http.ResponseWriter, r *http.Request) {
	s.o.Stop()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) Monitor(w http.ResponseWriter, r *http.Request) {
	id, err := s.o.Monitor()
	if errors.Is(err, orchestrator.ErrBusy) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, sessionInfo{ID: id, State: "active"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
