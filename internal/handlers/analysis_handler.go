package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/interfaces"
	"github.com/MatusBehul/veloryn/internal/models"
	"github.com/MatusBehul/veloryn/internal/services/analysis"
	"github.com/MatusBehul/veloryn/internal/services/orchestrator"
)

// Analyzer runs one analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Outcome, error)
}

// AnalysisHandler triggers analyses and reads stored results.
type AnalysisHandler struct {
	analyzer Analyzer
	storage  interfaces.AnalysisStorage
	logger   arbor.ILogger
}

// NewAnalysisHandler creates a new AnalysisHandler
func NewAnalysisHandler(analyzer Analyzer, storage interfaces.AnalysisStorage, logger arbor.ILogger) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer: analyzer,
		storage:  storage,
		logger:   logger,
	}
}

// AnalyzeHandler handles POST /api/analyze.
// 200 on success, 202 when deferred by the circuit breaker, 400 on a bad
// request and 502 when the pipeline fails.
func (h *AnalysisHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req analysis.Request
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "No JSON payload provided")
		return
	}
	if strings.TrimSpace(req.Ticker) == "" {
		WriteError(w, http.StatusBadRequest, "ticker parameter is required")
		return
	}

	outcome, err := h.analyzer.Analyze(r.Context(), req)
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest):
		WriteError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error().Err(err).Str("ticker", req.Ticker).Msg("Analysis failed")
		if outcome == nil {
			WriteError(w, http.StatusBadGateway, err.Error())
			return
		}
		WriteJSON(w, http.StatusBadGateway, outcome)
	case outcome.Status == orchestrator.StatusCircuitOpen:
		WriteJSON(w, http.StatusAccepted, outcome)
	default:
		WriteJSON(w, http.StatusOK, outcome)
	}
}

// analysisResponse is a stored analysis header with its overview.
type analysisResponse struct {
	Record    *models.AnalysisRecord   `json:"record"`
	Overview  *models.AnalysisOverview `json:"overview,omitempty"`
	Documents []string                 `json:"documents"`
}

// GetAnalysisHandler handles GET /api/analyses/{id}, where id is {TICKER}-{day}.
func (h *AnalysisHandler) GetAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "analysis id is required")
		return
	}

	record, err := h.storage.GetRecord(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	docs, err := h.storage.ListData(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to list analysis data")
		WriteError(w, http.StatusInternalServerError, "failed to list analysis data")
		return
	}

	resp := analysisResponse{Record: record, Documents: make([]string, 0, len(docs))}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, doc.Name)
	}

	var overview models.AnalysisOverview
	if err := h.storage.GetData(r.Context(), id, models.DataAnalysisOverview, &overview); err == nil {
		resp.Overview = &overview
	}

	WriteJSON(w, http.StatusOK, resp)
}
