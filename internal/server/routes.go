package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes. Handlers check their own methods
// so a wrong verb gets a JSON 405 rather than the mux's plain text one.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Analysis
	mux.HandleFunc("/api/analyze", s.app.AnalysisHandler.AnalyzeHandler)           // POST
	mux.HandleFunc("/api/analyses/{id}", s.app.AnalysisHandler.GetAnalysisHandler) // GET

	// Breaker state
	mux.HandleFunc("/api/breaker", s.app.BreakerHandler.StateHandler) // GET

	// Scheduler (only when enabled)
	if s.app.SchedulerHandler != nil {
		mux.HandleFunc("/api/scheduler", s.app.SchedulerHandler.StatusHandler)      // GET
		mux.HandleFunc("/api/scheduler/run", s.app.SchedulerHandler.TriggerHandler) // POST
	}

	// System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
