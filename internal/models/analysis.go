package models

import "time"

// DefaultLanguage is assigned to legacy single-object payloads that carry no language.
const DefaultLanguage = "en"

// Section field names of an AnalysisItem, in canonical order.
const (
	SectionOverall     = "overall_analysis"
	SectionTechnical   = "technical_analysis"
	SectionFundamental = "fundamental_analysis"
	SectionSentiment   = "sentiment_analysis"
	SectionRisk        = "risk_analysis"
	SectionInsights    = "investment_insights"
	SectionNarrative   = "investment_narrative"
)

// AnalysisSections lists the seven required list fields.
var AnalysisSections = []string{
	SectionOverall,
	SectionTechnical,
	SectionFundamental,
	SectionSentiment,
	SectionRisk,
	SectionInsights,
	SectionNarrative,
}

// AnalysisItem is one validated per-language analysis record.
// Every list holds at least one trimmed, non-empty string.
type AnalysisItem struct {
	Language            string   `json:"language" validate:"required,notblank"`
	OverallAnalysis     []string `json:"overall_analysis" validate:"required,min=1,dive,notblank"`
	TechnicalAnalysis   []string `json:"technical_analysis" validate:"required,min=1,dive,notblank"`
	FundamentalAnalysis []string `json:"fundamental_analysis" validate:"required,min=1,dive,notblank"`
	SentimentAnalysis   []string `json:"sentiment_analysis" validate:"required,min=1,dive,notblank"`
	RiskAnalysis        []string `json:"risk_analysis" validate:"required,min=1,dive,notblank"`
	InvestmentInsights  []string `json:"investment_insights" validate:"required,min=1,dive,notblank"`
	InvestmentNarrative []string `json:"investment_narrative" validate:"required,min=1,dive,notblank"`
	PromoSummary        string   `json:"promo_summary" validate:"required,notblank"`
	PromoTTSText        string   `json:"promo_tts_text" validate:"required,notblank"`
	PromoteFlag         bool     `json:"promote_flag"`
}

// Section returns the list stored under the given section field name.
func (a *AnalysisItem) Section(name string) []string {
	switch name {
	case SectionOverall:
		return a.OverallAnalysis
	case SectionTechnical:
		return a.TechnicalAnalysis
	case SectionFundamental:
		return a.FundamentalAnalysis
	case SectionSentiment:
		return a.SentimentAnalysis
	case SectionRisk:
		return a.RiskAnalysis
	case SectionInsights:
		return a.InvestmentInsights
	case SectionNarrative:
		return a.InvestmentNarrative
	}
	return nil
}

// SetSection stores values under the given section field name.
func (a *AnalysisItem) SetSection(name string, values []string) {
	switch name {
	case SectionOverall:
		a.OverallAnalysis = values
	case SectionTechnical:
		a.TechnicalAnalysis = values
	case SectionFundamental:
		a.FundamentalAnalysis = values
	case SectionSentiment:
		a.SentimentAnalysis = values
	case SectionRisk:
		a.RiskAnalysis = values
	case SectionInsights:
		a.InvestmentInsights = values
	case SectionNarrative:
		a.InvestmentNarrative = values
	}
}

// FindLanguage returns the item for the given language, or nil.
func FindLanguage(items []AnalysisItem, language string) *AnalysisItem {
	for i := range items {
		if items[i].Language == language {
			return &items[i]
		}
	}
	return nil
}

// AnalysisRecord is the header document stored under {ticker}-{day}.
type AnalysisRecord struct {
	ID          string    `json:"id"` // {ticker}-{day}
	Ticker      string    `json:"ticker" badgerhold:"index"`
	Day         string    `json:"day"` // YYYY-MM-DD
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Industry    string    `json:"industry"`
	Link        string    `json:"link"`
	Success     bool      `json:"success"`
	Timestamp   time.Time `json:"timestamp"`
}

// Data document names stored in an analysis sub-collection.
const (
	DataAnalysisOverview   = "analysis_overview"
	DataDailyPrices        = "daily_prices"
	DataWeeklyPrices       = "weekly_prices"
	DataMonthlyPrices      = "monthly_prices"
	DataDividends          = "dividend_data"
	DataSplits             = "splits_data"
	DataCompanyOverview    = "company_overview"
	DataIncomeStatement    = "income_statement_data"
	DataBalanceSheet       = "balance_sheet_data"
	DataEarningsEstimates  = "earnings_estimates"
	DataNews               = "news"
	DataPerformanceMetrics = "performance_metrics"
	DataAnalysisMetadata   = "analysis_metadata"
	DataCostTracking       = "cost_tracking"
)

// AnalysisDataDocument is one document of the per-analysis sub-collection.
// Payload holds the JSON encoding of the dataset.
type AnalysisDataDocument struct {
	ID        string    `json:"id"` // {record_id}/{name}
	RecordID  string    `json:"record_id" badgerhold:"index"`
	Name      string    `json:"name"`
	Payload   []byte    `json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnalysisOverview is the payload of the analysis_overview document.
type AnalysisOverview struct {
	AnalysisData       map[string]AnalysisItem `json:"analysis_data"` // keyed by language
	Success            bool                    `json:"success"`
	Error              string                  `json:"error,omitempty"`
	FailureClass       string                  `json:"failure_class,omitempty"`
	Day                string                  `json:"day"`
	ValidationAttempts int                     `json:"validation_attempts"`
}
