// Package worker implements the spawned worker process: a stateless
// single-step executor serving the /process and /health contract on
// loopback. Workers never call the next worker themselves; the chain is
// always driven from the orchestrator side.
package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/bizobs/journeysim/pkg/trace"
	"github.com/go-chi/chi/v5"
)

// ProcessRequest is the JSON body accepted by POST /process.
type ProcessRequest struct {
	CompanyName     string          `json:"companyName"`
	StepName        string          `json:"stepName"`
	Substeps        []domain.Substep `json:"substeps,omitempty"`
	StepIndex       int             `json:"stepIndex"`
	TotalSteps      int             `json:"totalSteps"`
	ErrorSimulation bool            `json:"errorSimulation,omitempty"`

	// ErrorRate overrides the worker's configured failure probability for
	// this one request. Journeys set it through step metadata.
	ErrorRate *float64 `json:"errorRate,omitempty"`
}

// ProcessResponse is the success shape returned by POST /process.
type ProcessResponse struct {
	Status            string `json:"status"`
	HTTPStatus        int    `json:"httpStatus"`
	ServiceName       string `json:"serviceName"`
	StepName          string `json:"stepName"`
	SubstepsCompleted int    `json:"substepsCompleted"`
	DurationMs        int64  `json:"durationMs"`
}

type errorResponse struct {
	Status     string `json:"status"`
	HTTPStatus int    `json:"httpStatus"`
	ErrorKind  string `json:"errorKind"`
	Message    string `json:"message,omitempty"`
}

// Server is one worker instance. It holds its identity explicitly; the
// handler never reads the environment.
type Server struct {
	cfg    Config
	logger *slog.Logger
	rand   func() float64
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRandSource overrides the failure-simulation dice (tests).
func WithRandSource(f func() float64) Option {
	return func(s *Server) { s.rand = f }
}

// NewServer creates a worker server for the given identity.
func NewServer(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		rand:   rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the worker's HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/process", s.handleProcess)
	return r
}

// ListenAndServe runs the worker on its configured loopback port.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)
	s.logger.Info("worker listening",
		"service", s.cfg.ServiceName,
		"company", s.cfg.Context.Company,
		"addr", addr,
	)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": s.cfg.ServiceName,
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	// Echo trace context back so callers can attach the response hop.
	if tp := r.Header.Get(trace.HeaderTraceparent); tp != "" {
		w.Header().Set(trace.HeaderTraceparent, tp)
	}
	w.Header().Set("Content-Type", "application/json")

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("process: invalid request body", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{
			Status:     "error",
			HTTPStatus: http.StatusBadRequest,
			ErrorKind:  "invalid_request",
			Message:    err.Error(),
		})
		return
	}

	// Simulate the declared substeps as scaled-down work.
	for _, sub := range req.Substeps {
		sleep := time.Duration(float64(sub.Duration) * s.cfg.SubstepScale * float64(time.Second))
		if sleep > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(sleep):
			}
		}
	}

	rate := s.cfg.ErrorRate
	if req.ErrorRate != nil {
		rate = *req.ErrorRate
	}
	if req.ErrorSimulation && s.rand() < rate {
		s.logger.Info("process: simulated failure",
			"step", req.StepName, "company", req.CompanyName)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errorResponse{
			Status:     "error",
			HTTPStatus: http.StatusInternalServerError,
			ErrorKind:  "simulated_failure",
			Message:    fmt.Sprintf("simulated failure in %s", req.StepName),
		})
		return
	}

	resp := ProcessResponse{
		Status:            "completed",
		HTTPStatus:        http.StatusOK,
		ServiceName:       s.cfg.ServiceName,
		StepName:          req.StepName,
		SubstepsCompleted: len(req.Substeps),
		DurationMs:        time.Since(started).Milliseconds(),
	}
	s.logger.Debug("process: step completed",
		"step", req.StepName,
		"substeps", resp.SubstepsCompleted,
		"duration_ms", resp.DurationMs,
	)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("process: response encode failed", "err", err)
	}
}
