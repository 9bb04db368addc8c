package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MatusBehul/veloryn/internal/services/breaker"
)

// BreakerReader reports the breaker state and the current pacing delay.
type BreakerReader interface {
	CheckOpen(ctx context.Context) breaker.State
	PacingDelay(ctx context.Context) time.Duration
}

// BreakerHandler exposes the circuit breaker state.
type BreakerHandler struct {
	breaker BreakerReader
}

// NewBreakerHandler creates a new BreakerHandler
func NewBreakerHandler(b BreakerReader) *BreakerHandler {
	return &BreakerHandler{breaker: b}
}

// StateHandler handles GET /api/breaker
func (h *BreakerHandler) StateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	state := h.breaker.CheckOpen(r.Context())
	pacing := h.breaker.PacingDelay(r.Context())

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"open":                    state.Open,
		"wait_seconds":            state.Wait.Seconds(),
		"events_in_window":        state.Count,
		"most_recent_age_seconds": state.MostRecentAge.Seconds(),
		"pacing_delay_seconds":    pacing.Seconds(),
	})
}
