// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api serves agent status, alert history and Prometheus metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"grimm.is/shellwatch/internal/alerting"
	"grimm.is/shellwatch/internal/detector"
	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/health"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/metrics"
	"grimm.is/shellwatch/internal/scanner"
)

const (
	defaultAlertLimit = 100
	shutdownTimeout   = 5 * time.Second
)

// Options wires the server to the running agent.
type Options struct {
	Engine  *detector.Engine
	Alerts  *alerting.Engine
	Metrics *metrics.Metrics
	Health  *health.Checker
	Scanner *scanner.Scanner
	Logger  *logging.Logger
}

// Server is the agent's HTTP API.
type Server struct {
	router  *mux.Router
	engine  *detector.Engine
	alerts  *alerting.Engine
	metrics *metrics.Metrics
	health  *health.Checker
	scanner *scanner.Scanner
	logger  *logging.Logger
	started time.Time
}

// NewServer creates the API server and registers its routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("api")
	}
	s := &Server{
		router:  mux.NewRouter(),
		engine:  opts.Engine,
		alerts:  opts.Alerts,
		metrics: opts.Metrics,
		health:  opts.Health,
		scanner: opts.Scanner,
		logger:  opts.Logger,
		started: time.Now(),
	}
	s.RegisterRoutes(s.router)
	return s
}

// RegisterRoutes registers API routes on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")
	router.HandleFunc("/api/v1/ports", s.handlePorts).Methods("GET")
	router.HandleFunc("/api/v1/alerts", s.handleAlerts).Methods("GET")
	router.HandleFunc("/api/v1/alerts/stream", s.handleAlertStream).Methods("GET")
	router.HandleFunc("/api/v1/connections", s.handleConnections).Methods("GET")
	router.HandleFunc("/api/v1/processes", s.handleProcesses).Methods("GET")
	router.HandleFunc("/api/v1/report", s.handleReport).Methods("GET")

	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to listen"), "addr", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("API shutdown incomplete", "error", err)
		}
	}()

	s.logger.Info("API server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, errors.KindInternal, "API server failed")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         health.StatusHealthy,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	}
	status := http.StatusOK
	if s.health != nil {
		report := s.health.Run(r.Context())
		resp["status"] = report.Status
		resp["checks"] = report.Checks
		if report.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if s.engine != nil {
		resp["engine"] = s.engine.Stats()
	}
	if s.alerts != nil {
		resp["alerts"] = s.alerts.Summary()
	}
	if s.scanner != nil {
		resp["scanner"] = s.scanner.Summary()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Detection engine not running", nil)
		return
	}
	ports := s.engine.Ports().Ports()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ports": ports,
		"count": len(ports),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Alerting not running", nil)
		return
	}

	limit := defaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	alerts := s.alerts.History(limit)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Scanner not running", nil)
		return
	}

	suspiciousOnly := false
	if v := r.URL.Query().Get("suspicious"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "suspicious must be a boolean", err)
			return
		}
		suspiciousOnly = b
	}

	conns := s.scanner.Connections(suspiciousOnly)
	sum := s.scanner.Summary()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"connections": conns,
		"count":       len(conns),
		"suspicious":  sum.Suspicious,
		"last_scan":   sum.LastScan,
	})
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Scanner not running", nil)
		return
	}
	procs := s.scanner.Processes()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"processes": procs,
		"count":     len(procs),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Alerting not running", nil)
		return
	}

	var inv alerting.Inventory
	if s.engine != nil {
		inv.Tracked = s.engine.Tracker().Len()
	}
	if s.scanner != nil {
		inv.Suspicious = s.scanner.SuspiciousLines()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.alerts.Report(w, inv); err != nil {
		s.logger.Debug("Failed to write report", "error", err)
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("Failed to write response", "error", err)
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.writeJSON(w, status, response)
}
