package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/services/scheduler"
)

// ScheduleRunner is the scheduler surface used by the API.
type ScheduleRunner interface {
	RunNow()
	NextRun() time.Time
	Statuses() []scheduler.TickerStatus
}

// SchedulerHandler handles scheduler-related endpoints
type SchedulerHandler struct {
	scheduler ScheduleRunner
	logger    arbor.ILogger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(s ScheduleRunner, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s, logger: logger}
}

// StatusHandler handles GET /api/scheduler
func (h *SchedulerHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	resp := map[string]interface{}{
		"tickers": h.scheduler.Statuses(),
	}
	if next := h.scheduler.NextRun(); !next.IsZero() {
		resp["next_run"] = next
	}
	WriteJSON(w, http.StatusOK, resp)
}

// TriggerHandler handles POST /api/scheduler/run. Runs continue after the
// response is written.
func (h *SchedulerHandler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	common.SafeGo(h.logger, "scheduler-trigger", h.scheduler.RunNow)
	WriteStarted(w, "Scheduled analyses triggered")
}
