// Package control exposes the orchestration-core boundary over HTTP for
// demo tooling: running journeys, inspecting status, and stopping workers.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/bizobs/journeysim/pkg/journey"
	"github.com/bizobs/journeysim/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Core is the orchestration surface consumed by the control plane.
type Core interface {
	RunJourney(ctx context.Context, j journey.Journey) (*domain.RunRecord, error)
	Status() domain.OrchestratorStatus
	Worker(owner domain.OwnerKey) (domain.WorkerInstance, error)
	Breakers() []domain.BreakerInfo
	StopAll()
	StopNonEssential(preserve []string)
}

// Server implements the control-plane HTTP surface.
type Server struct {
	core     Core
	store    ports.RecordStore
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithRecordStore exposes saved run records on the API.
func WithRecordStore(store ports.RecordStore) Option {
	return func(s *Server) { s.store = store }
}

// WithGatherer exposes a Prometheus registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates the control-plane server around a core.
func NewServer(core Core, opts ...Option) *Server {
	s := &Server{
		core:   core,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the chi router for the control plane.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/journeys/run", s.handleRunJourney)
	r.Get("/workers/{owner}", s.handleGetWorker)
	r.Post("/workers/stop", s.handleStopWorkers)
	if s.store != nil {
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	}
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse merges the orchestrator and breaker snapshots.
type statusResponse struct {
	domain.OrchestratorStatus
	Breakers []domain.BreakerInfo `json:"breakers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		OrchestratorStatus: s.core.Status(),
		Breakers:           s.core.Breakers(),
	})
}

func (s *Server) handleRunJourney(w http.ResponseWriter, r *http.Request) {
	var j journey.Journey
	if err := json.NewDecoder(r.Body).Decode(&j); err != nil {
		s.logger.Warn("run journey: invalid request body", "err", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := s.core.RunJourney(r.Context(), j)
	if err != nil {
		s.logger.Error("run journey failed", "journey", j.Name, "err", err)
		http.Error(w, fmt.Sprintf("Journey run error: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	owner := domain.OwnerKey(chi.URLParam(r, "owner"))
	inst, err := s.core.Worker(owner)
	if err != nil {
		if errors.Is(err, domain.ErrWorkerNotFound) {
			http.Error(w, "Worker not found", http.StatusNotFound)
			return
		}
		s.logger.Error("worker lookup failed", "owner", owner, "err", err)
		http.Error(w, "Failed to look up worker", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type stopRequest struct {
	Preserve []string `json:"preserve"`
	All      bool     `json:"all"`
}

func (s *Server) handleStopWorkers(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if r.Body != nil {
		// An empty body means "stop every non-essential worker".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if req.All {
		s.core.StopAll()
	} else {
		s.core.StopNonEssential(req.Preserve)
	}
	writeJSON(w, http.StatusOK, s.core.Status())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list runs failed", "err", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": ids})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.Load(r.Context(), id)
	if err != nil {
		if err == domain.ErrRecordNotFound {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		s.logger.Error("load run failed", "id", id, "err", err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
