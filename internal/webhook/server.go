// Package webhook is the daemon's HTTP intake surface. Monitors POST
// incidents in, deployment pipelines report back on landed fixes, and
// probes hit healthz. Everything else goes through the control socket
// or the CLI.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mendhq/mend/internal/orchestrator"
	"github.com/mendhq/mend/internal/types"
)

// maxBodyBytes caps intake payloads. Stack traces and logs fit well
// under this; anything larger is not an incident report.
const maxBodyBytes = 1 << 20

// Healer is the slice of the orchestrator the HTTP surface needs.
type Healer interface {
	Report(ctx context.Context, incident *types.Incident) error
	HandleDeploymentStatus(ctx context.Context, report orchestrator.DeploymentReport) error
	Status() orchestrator.Status
}

// Server serves the intake endpoints on a single address.
type Server struct {
	healer     Healer
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates an intake server bound to addr when started.
func NewServer(addr string, healer Healer) *Server {
	s := &Server{healer: healer}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/incidents", s.handleReportIncident)
	r.Post("/webhooks/deployment", s.handleDeployment)
	return r
}

// Start binds the listener and serves in the background. Binding errors
// surface here; later serve errors only get logged.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("binding intake listener on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "webhook: serve error: %v\n", err)
		}
	}()
	return nil
}

// Addr returns the bound address, useful when the configured port is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"healing": s.healer.Status(),
	})
}

// handleReportIncident accepts a types.Incident document, stores it, and
// queues it for healing. Responds 202: healing happens asynchronously.
func (s *Server) handleReportIncident(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var inc types.Incident
	if err := json.NewDecoder(r.Body).Decode(&inc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid incident payload: %v", err))
		return
	}

	if err := s.healer.Report(r.Context(), &inc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     inc.ID,
		"status": string(inc.Status),
	})
}

// handleDeployment accepts a deployment pipeline's report for a session
// parked in the deploy phase.
func (s *Server) handleDeployment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var report orchestrator.DeploymentReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid deployment payload: %v", err))
		return
	}

	if err := s.healer.HandleDeploymentStatus(r.Context(), report); err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "stopped") {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id":        report.SessionID,
		"deployment_status": string(report.Status),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fmt.Fprintf(os.Stderr, "webhook: failed to encode response: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
