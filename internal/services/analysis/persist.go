package analysis

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/models"
	"github.com/MatusBehul/veloryn/internal/services/orchestrator"
)

// run carries the state of one executed analysis into persistence.
type run struct {
	ticker   common.Ticker
	day      string
	env      orchestrator.Envelope
	snapshot *models.MarketSnapshot
	result   *orchestrator.Result
	started  time.Time
}

func (r *run) recordID() string {
	return r.ticker.DocumentKey(r.day)
}

// dataset wraps list payloads the way the analysis readers expect them.
type dataset struct {
	Data interface{} `json:"data"`
}

func (s *Service) persistFailure(ctx context.Context, r *run) error {
	if err := s.saveRecord(ctx, r, false); err != nil {
		return err
	}
	overview := &models.AnalysisOverview{
		AnalysisData:       map[string]models.AnalysisItem{},
		Success:            false,
		Error:              r.result.Error(),
		FailureClass:       string(r.result.Class),
		Day:                r.day,
		ValidationAttempts: r.result.ValidationAttempts,
	}
	if err := s.storage.SaveData(ctx, r.recordID(), models.DataAnalysisOverview, overview); err != nil {
		return err
	}
	return s.storage.SaveData(ctx, r.recordID(), models.DataPerformanceMetrics, s.performance(r))
}

// persistSuccess writes the header, the overview, every dataset and the run
// bookkeeping documents. The first write error stops the sequence.
func (s *Service) persistSuccess(ctx context.Context, r *run) error {
	if err := s.saveRecord(ctx, r, true); err != nil {
		return err
	}

	id := r.recordID()
	overview := &models.AnalysisOverview{
		AnalysisData:       make(map[string]models.AnalysisItem, len(r.result.Items)),
		Success:            true,
		Day:                r.day,
		ValidationAttempts: r.result.ValidationAttempts,
	}
	for _, item := range r.result.Items {
		overview.AnalysisData[item.Language] = item
	}

	docs := map[string]interface{}{
		models.DataAnalysisOverview:   overview,
		models.DataDailyPrices:        dataset{r.snapshot.DailyPrices},
		models.DataWeeklyPrices:       dataset{r.snapshot.WeeklyPrices},
		models.DataMonthlyPrices:      dataset{r.snapshot.MonthlyPrices},
		models.DataPerformanceMetrics: s.performance(r),
		models.DataAnalysisMetadata:   s.metadata(r),
		models.DataCostTracking:       s.cost(r),
	}
	for name, data := range r.snapshot.Datasets {
		docs[name] = dataset{data}
	}

	for _, name := range slices.Sorted(maps.Keys(docs)) {
		if err := s.storage.SaveData(ctx, id, name, docs[name]); err != nil {
			return fmt.Errorf("failed to save %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) saveRecord(ctx context.Context, r *run, success bool) error {
	profile := r.snapshot.Profile
	record := &models.AnalysisRecord{
		ID:          r.recordID(),
		Ticker:      r.ticker.Code,
		Day:         r.day,
		Name:        profile.Name,
		Description: profile.Description,
		Industry:    profile.Industry,
		Link:        profile.Link,
		Success:     success,
		Timestamp:   s.now().UTC(),
	}
	if err := s.storage.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to save analysis record: %w", err)
	}
	return nil
}

func (s *Service) performance(r *run) *models.PerformanceMetrics {
	completed := s.now()
	perf := &models.PerformanceMetrics{
		Ticker:             r.ticker.Code,
		SessionID:          r.env.SessionID,
		StartedAt:          r.started.UTC(),
		CompletedAt:        completed.UTC(),
		TotalMs:            completed.Sub(r.started).Milliseconds(),
		Phases:             r.result.Phases,
		Status:             string(r.result.Status),
		Error:              r.result.Error(),
		TransportAttempts:  r.result.TransportAttempts,
		ValidationAttempts: r.result.ValidationAttempts,
	}
	if r.result.Response != nil {
		perf.ResponseTimeMs = r.result.Response.ResponseTime.Milliseconds()
	}
	return perf
}

func (s *Service) metadata(r *run) *models.AnalysisMetadata {
	meta := &models.AnalysisMetadata{
		SessionID:    r.env.SessionID,
		PromptLength: len(r.env.Prompt),
		Languages:    languages(r.result.Items),
		Streaming:    r.env.Streaming,
		GeneratedAt:  s.now().UTC(),
	}
	if resp := r.result.Response; resp != nil {
		meta.InvocationID = resp.InvocationID
		meta.Author = resp.Author
		meta.ResponseType = resp.ResponseType
		meta.ContentKind = resp.ContentKind
		meta.EventsCount = resp.EventsCount
		if usage := resp.UsageMetadata; usage != nil {
			meta.PromptTokens = usage.PromptTokenCount
			meta.ResponseTokens = usage.CandidatesTokenCount
			meta.TotalTokens = usage.TotalTokenCount
		}
	}
	return meta
}

// cost estimates the spend of the final call from its usage metadata.
func (s *Service) cost(r *run) *models.CostTracking {
	tracking := &models.CostTracking{
		InputCostPerMTok:   s.config.InputPerMTok,
		OutputCostPerMTok:  s.config.OutputPerMTok,
		ValidationAttempts: r.result.ValidationAttempts,
	}
	if r.result.Response == nil || r.result.Response.UsageMetadata == nil {
		return tracking
	}

	usage := r.result.Response.UsageMetadata
	tracking.PromptTokens = usage.PromptTokenCount
	tracking.ResponseTokens = usage.CandidatesTokenCount
	tracking.TotalTokens = usage.TotalTokenCount
	tracking.EstimatedCostUSD = (float64(usage.PromptTokenCount)*s.config.InputPerMTok +
		float64(usage.CandidatesTokenCount)*s.config.OutputPerMTok) / 1e6
	return tracking
}
