// Package server exposes the ops endpoints and drives the scoring schedule.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"alpha-finder/internal/observability"
	"alpha-finder/internal/pipeline"
)

// StatusSource reports the most recent scoring cycle.
type StatusSource interface {
	Last() *pipeline.CycleResult
}

// Server serves /health, /status and /metrics.
type Server struct {
	router  *mux.Router
	http    *http.Server
	status  StatusSource
	started time.Time
	logger  zerolog.Logger
}

// New creates an ops server listening on addr.
func New(addr string, status StatusSource, logger zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		status:  status,
		started: time.Now(),
		logger:  logger.With().Str("component", "server").Logger(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("ops server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status    string      `json:"status"`
	Uptime    string      `json:"uptime"`
	LastCycle *CycleStats `json:"last_cycle,omitempty"`
}

// CycleStats summarizes a CycleResult.
type CycleStats struct {
	RunID          string   `json:"run_id"`
	Kind           string   `json:"kind"`
	StartedAt      int64    `json:"started_at"`
	FinishedAt     int64    `json:"finished_at"`
	TokensOK       int      `json:"tokens_ok"`
	TokensFailed   int      `json:"tokens_failed"`
	WalletsWritten int      `json:"wallets_written"`
	WalletErrors   int      `json:"wallet_errors"`
	Ranked         int      `json:"ranked"`
	Errors         []string `json:"errors,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status: "running",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}

	if s.status != nil {
		if last := s.status.Last(); last != nil {
			stats := &CycleStats{
				RunID:          last.RunID,
				Kind:           last.Kind,
				StartedAt:      last.StartedAt,
				FinishedAt:     last.FinishedAt,
				TokensOK:       last.Succeeded(),
				TokensFailed:   last.Failed(),
				WalletsWritten: last.WalletsWritten,
				WalletErrors:   len(last.WalletErrors),
				Ranked:         last.Ranked,
				Errors:         last.Errors,
			}
			for _, t := range last.Tokens {
				stats.WalletErrors += len(t.WalletErrors)
			}
			resp.LastCycle = stats
			if stats.TokensFailed > 0 || stats.WalletErrors > 0 {
				resp.Status = "degraded"
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn().Err(err).Msg("encode status")
	}
}
