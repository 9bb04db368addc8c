package models

import "time"

// PricePoint is one OHLCV bar.
type PricePoint struct {
	Date          string  `json:"date"` // YYYY-MM-DD
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        int64   `json:"volume"`
}

// CompanyProfile holds the descriptive fields stored on the analysis header.
type CompanyProfile struct {
	Ticker      string `json:"ticker"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Industry    string `json:"industry"`
	Sector      string `json:"sector"`
	Exchange    string `json:"exchange"`
	Currency    string `json:"currency"`
	Link        string `json:"link"`
}

// MarketSnapshot is the market data gathered for one analysis run.
type MarketSnapshot struct {
	Profile       CompanyProfile         `json:"profile"`
	DailyPrices   []PricePoint           `json:"daily_prices"`
	WeeklyPrices  []PricePoint           `json:"weekly_prices"`
	MonthlyPrices []PricePoint           `json:"monthly_prices"`
	Datasets      map[string]interface{} `json:"datasets"` // raw supporting datasets keyed by data document name
	FetchedAt     time.Time              `json:"fetched_at"`
}

// PromotionMessage is published when an analysis is flagged for promotion.
type PromotionMessage struct {
	Title       string        `json:"title"`
	Subtitle    string        `json:"subtitle"`
	TTSText     string        `json:"ttsText"`
	CaptionText string        `json:"captionText"`
	SeriesData  []SeriesPoint `json:"seriesData"`
}

// SeriesPoint is one closing price in a promotion chart series.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}
