package models

import "time"

// PerformanceMetrics stores timing data for one analysis run.
// Persisted as the performance_metrics document of the run.
type PerformanceMetrics struct {
	Ticker             string           `json:"ticker"`
	SessionID          string           `json:"session_id"`
	StartedAt          time.Time        `json:"started_at"`
	CompletedAt        time.Time        `json:"completed_at"`
	TotalMs            int64            `json:"total_ms"`
	Phases             map[string]int64 `json:"phases,omitempty"` // phase name -> milliseconds
	Status             string           `json:"status"`           // "success" or "failed"
	Error              string           `json:"error,omitempty"`
	TransportAttempts  int              `json:"transport_attempts"`
	ValidationAttempts int              `json:"validation_attempts"`
	ResponseTimeMs     int64            `json:"response_time_ms,omitempty"`
}

// AnalysisMetadata describes the prompt and response of a run.
type AnalysisMetadata struct {
	SessionID      string    `json:"session_id"`
	InvocationID   string    `json:"invocation_id,omitempty"`
	Author         string    `json:"author,omitempty"`
	PromptLength   int       `json:"prompt_length"`
	ResponseType   string    `json:"response_type"` // adk_structured, adk_text or plain_text
	ContentKind    string    `json:"content_kind"`  // stream or body
	EventsCount    int       `json:"events_count"`
	Languages      []string  `json:"languages"`
	Streaming      bool      `json:"streaming"`
	GeneratedAt    time.Time `json:"generated_at"`
	PromptTokens   int32     `json:"prompt_tokens,omitempty"`
	ResponseTokens int32     `json:"response_tokens,omitempty"`
	TotalTokens    int32     `json:"total_tokens,omitempty"`
}

// CostTracking is a token-based estimate of the cost of a run.
type CostTracking struct {
	PromptTokens       int32   `json:"prompt_tokens"`
	ResponseTokens     int32   `json:"response_tokens"`
	TotalTokens        int32   `json:"total_tokens"`
	InputCostPerMTok   float64 `json:"input_cost_per_mtok"`
	OutputCostPerMTok  float64 `json:"output_cost_per_mtok"`
	EstimatedCostUSD   float64 `json:"estimated_cost_usd"`
	ValidationAttempts int     `json:"validation_attempts"` // remote calls billed for this run
}
