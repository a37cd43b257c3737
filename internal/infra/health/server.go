// Package health exposes HTTP endpoints for liveness checks and Prometheus
// metrics scraping.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// SystemStatus represents the overall health state of the process or a watch.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// WatchHealth is the reported condition of one watch session.
type WatchHealth struct {
	Network string              `json:"network"`
	Address string              `json:"address"`
	State   domain.MonitorState `json:"state"`
	Status  SystemStatus        `json:"status"`
}

// Reporter supplies the current condition of all watch sessions.
type Reporter interface {
	Report() []WatchHealth
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	reporter Reporter
	server   *http.Server
}

// NewServer creates a health server on the given port.
func NewServer(reporter Reporter, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		reporter: reporter,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// StatusOf maps a monitor state onto a health status.
func StatusOf(state domain.MonitorState) SystemStatus {
	switch state {
	case domain.StateFailed:
		return StatusCritical
	case domain.StateDegradedRetry, domain.StateConnecting:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.reporter.Report()
	status := StatusHealthy

	// Worst case wins.
	for _, watch := range report {
		if watch.Status == StatusCritical {
			status = StatusCritical
			break
		}
		if watch.Status == StatusDegraded {
			status = StatusDegraded
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": string(status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.reporter.Report())
}
