package eodhd

import "time"

// EODData is one bar of end-of-day prices.
type EODData struct {
	Date          time.Time `json:"-"`
	DateStr       string    `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
	Volume        int64     `json:"volume"`
}

func (d *EODData) dateRef() (string, *time.Time) { return d.DateStr, &d.Date }

// EODResponse is a slice of EODData.
type EODResponse []EODData

// DividendData is one dividend payment.
type DividendData struct {
	Date            time.Time `json:"-"`
	DateStr         string    `json:"date"`
	DeclarationDate string    `json:"declarationDate"`
	PaymentDate     string    `json:"paymentDate"`
	Value           float64   `json:"value"`
	UnadjustedValue float64   `json:"unadjustedValue"`
	Currency        string    `json:"currency"`
}

func (d *DividendData) dateRef() (string, *time.Time) { return d.DateStr, &d.Date }

// DividendsResponse is a slice of DividendData.
type DividendsResponse []DividendData

// SplitData is one stock split.
type SplitData struct {
	Date    time.Time `json:"-"`
	DateStr string    `json:"date"`
	Split   string    `json:"split"` // e.g. "4.000000/1.000000"
}

func (d *SplitData) dateRef() (string, *time.Time) { return d.DateStr, &d.Date }

// SplitsResponse is a slice of SplitData.
type SplitsResponse []SplitData

// NewsItem is one news article.
type NewsItem struct {
	Date      time.Time      `json:"-"`
	DateStr   string         `json:"date"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Link      string         `json:"link"`
	Symbols   []string       `json:"symbols"`
	Tags      []string       `json:"tags"`
	Sentiment *NewsSentiment `json:"sentiment,omitempty"`
}

func (d *NewsItem) dateRef() (string, *time.Time) { return d.DateStr, &d.Date }

// NewsSentiment is the provider's sentiment score for an article.
type NewsSentiment struct {
	Polarity float64 `json:"polarity"`
	Neg      float64 `json:"neg"`
	Neu      float64 `json:"neu"`
	Pos      float64 `json:"pos"`
}

// NewsResponse is a slice of NewsItem.
type NewsResponse []NewsItem

// FundamentalsResponse holds the fundamentals sections used in analyses.
type FundamentalsResponse struct {
	General        *GeneralInfo    `json:"General"`
	Highlights     *Highlights     `json:"Highlights"`
	Valuation      *Valuation      `json:"Valuation"`
	Technicals     *Technicals     `json:"Technicals"`
	AnalystRatings *AnalystRatings `json:"AnalystRatings"`
	Earnings       *Earnings       `json:"Earnings"`
	Financials     *Financials     `json:"Financials"`
}

// GeneralInfo is the company profile section.
type GeneralInfo struct {
	Code         string `json:"Code"`
	Type         string `json:"Type"`
	Name         string `json:"Name"`
	Exchange     string `json:"Exchange"`
	CurrencyCode string `json:"CurrencyCode"`
	CountryName  string `json:"CountryName"`
	Sector       string `json:"Sector"`
	Industry     string `json:"Industry"`
	Description  string `json:"Description"`
	WebURL       string `json:"WebURL"`
	LogoURL      string `json:"LogoURL"`
	IPODate      string `json:"IPODate"`
}

// Highlights are headline financial figures.
type Highlights struct {
	MarketCapitalization       float64 `json:"MarketCapitalization"`
	EBITDA                     float64 `json:"EBITDA"`
	PERatio                    float64 `json:"PERatio"`
	PEGRatio                   float64 `json:"PEGRatio"`
	WallStreetTargetPrice      float64 `json:"WallStreetTargetPrice"`
	BookValue                  float64 `json:"BookValue"`
	DividendYield              float64 `json:"DividendYield"`
	EarningsShare              float64 `json:"EarningsShare"`
	ProfitMargin               float64 `json:"ProfitMargin"`
	OperatingMarginTTM         float64 `json:"OperatingMarginTTM"`
	ReturnOnEquityTTM          float64 `json:"ReturnOnEquityTTM"`
	RevenueTTM                 float64 `json:"RevenueTTM"`
	QuarterlyRevenueGrowthYOY  float64 `json:"QuarterlyRevenueGrowthYOY"`
	QuarterlyEarningsGrowthYOY float64 `json:"QuarterlyEarningsGrowthYOY"`
}

// Valuation holds valuation ratios.
type Valuation struct {
	TrailingPE            float64 `json:"TrailingPE"`
	ForwardPE             float64 `json:"ForwardPE"`
	PriceSalesTTM         float64 `json:"PriceSalesTTM"`
	PriceBookMRQ          float64 `json:"PriceBookMRQ"`
	EnterpriseValue       float64 `json:"EnterpriseValue"`
	EnterpriseValueEbitda float64 `json:"EnterpriseValueEbitda"`
}

// Technicals holds the provider's technical summary.
type Technicals struct {
	Beta             float64 `json:"Beta"`
	FiftyTwoWeekHigh float64 `json:"52WeekHigh"`
	FiftyTwoWeekLow  float64 `json:"52WeekLow"`
	FiftyDayMA       float64 `json:"50DayMA"`
	TwoHundredDayMA  float64 `json:"200DayMA"`
	ShortRatio       float64 `json:"ShortRatio"`
}

// AnalystRatings is the consensus rating.
type AnalystRatings struct {
	Rating      float64 `json:"Rating"`
	TargetPrice float64 `json:"TargetPrice"`
	StrongBuy   int     `json:"StrongBuy"`
	Buy         int     `json:"Buy"`
	Hold        int     `json:"Hold"`
	Sell        int     `json:"Sell"`
	StrongSell  int     `json:"StrongSell"`
}

// Earnings holds reported and estimated earnings keyed by date.
type Earnings struct {
	History map[string]EarningsEntry `json:"History"`
	Trend   map[string]EarningsTrend `json:"Trend"`
}

// EarningsEntry is one reported quarter.
type EarningsEntry struct {
	ReportDate      string   `json:"reportDate"`
	Date            string   `json:"date"`
	EPSActual       *float64 `json:"epsActual"`
	EPSEstimate     *float64 `json:"epsEstimate"`
	SurprisePercent *float64 `json:"surprisePercent"`
}

// EarningsTrend is one estimate period.
type EarningsTrend struct {
	Date                string  `json:"date"`
	Period              string  `json:"period"`
	Growth              *string `json:"growth"`
	EarningsEstimateAvg *string `json:"earningsEstimateAvg"`
	RevenueEstimateAvg  *string `json:"revenueEstimateAvg"`
}

// Financials holds the statement sections.
type Financials struct {
	BalanceSheet    *FinancialStatement `json:"Balance_Sheet"`
	IncomeStatement *FinancialStatement `json:"Income_Statement"`
}

// FinancialStatement is a statement keyed by period end date.
type FinancialStatement struct {
	Currency  string                            `json:"currency_symbol"`
	Quarterly map[string]map[string]interface{} `json:"quarterly"`
	Yearly    map[string]map[string]interface{} `json:"yearly"`
}
