package eodhd

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/models"
	"github.com/MatusBehul/veloryn/internal/services/workers"
)

const (
	dailyLookback    = 1  // years
	historyLookback  = 5  // years, weekly/monthly bars and corporate actions
	newsLookback     = 30 // days
	statementPeriods = 8

	optionalFetchWorkers = 3
)

// Provider gathers market snapshots from EODHD.
type Provider struct {
	client    *Client
	logger    arbor.ILogger
	newsLimit int
}

// NewProvider creates a market data provider over client.
func NewProvider(client *Client, newsLimit int, logger arbor.ILogger) *Provider {
	if newsLimit <= 0 {
		newsLimit = 20
	}
	return &Provider{client: client, logger: logger, newsLimit: newsLimit}
}

// Snapshot fetches prices, corporate actions, fundamentals and news for ticker
// as of day. Daily prices are required; other datasets are best effort and
// are omitted when unavailable.
func (p *Provider) Snapshot(ctx context.Context, ticker string, day time.Time) (*models.MarketSnapshot, error) {
	parsed := common.ParseTicker(ticker)
	if parsed.IsZero() {
		return nil, fmt.Errorf("invalid ticker %q", ticker)
	}
	symbol := parsed.EODHDSymbol()
	to := day

	logger := p.logger.WithCorrelationId(symbol)

	daily, err := p.client.GetEOD(ctx, symbol,
		WithDateRange(to.AddDate(-dailyLookback, 0, 0), to), WithPeriod("d"), WithOrder("a"))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily prices for %s: %w", symbol, err)
	}
	if len(daily) == 0 {
		return nil, fmt.Errorf("no daily prices for %s", symbol)
	}

	snapshot := &models.MarketSnapshot{
		Profile: models.CompanyProfile{
			Ticker:   parsed.Code,
			Name:     parsed.Code,
			Exchange: parsed.Exchange,
		},
		DailyPrices: pricePoints(daily),
		Datasets:    make(map[string]interface{}),
		FetchedAt:   time.Now().UTC(),
	}

	historyFrom := to.AddDate(-historyLookback, 0, 0)

	// Optional datasets are fetched in parallel; the client limiter still
	// bounds the request rate.
	var mu sync.Mutex
	jobs := []workers.Job{
		{Name: "weekly prices", Run: func(ctx context.Context) error {
			weekly, err := p.client.GetEOD(ctx, symbol, WithDateRange(historyFrom, to), WithPeriod("w"), WithOrder("a"))
			if err != nil {
				return err
			}
			mu.Lock()
			snapshot.WeeklyPrices = pricePoints(weekly)
			mu.Unlock()
			return nil
		}},
		{Name: "monthly prices", Run: func(ctx context.Context) error {
			monthly, err := p.client.GetEOD(ctx, symbol, WithDateRange(historyFrom, to), WithPeriod("m"), WithOrder("a"))
			if err != nil {
				return err
			}
			mu.Lock()
			snapshot.MonthlyPrices = pricePoints(monthly)
			mu.Unlock()
			return nil
		}},
		{Name: "dividends", Run: func(ctx context.Context) error {
			dividends, err := p.client.GetDividends(ctx, symbol, WithDateRange(historyFrom, to))
			if err != nil {
				return err
			}
			mu.Lock()
			snapshot.Datasets[models.DataDividends] = dividends
			mu.Unlock()
			return nil
		}},
		{Name: "splits", Run: func(ctx context.Context) error {
			splits, err := p.client.GetSplits(ctx, symbol, WithDateRange(historyFrom, to))
			if err != nil {
				return err
			}
			mu.Lock()
			snapshot.Datasets[models.DataSplits] = splits
			mu.Unlock()
			return nil
		}},
		{Name: "news", Run: func(ctx context.Context) error {
			news, err := p.client.GetNews(ctx, []string{symbol},
				WithDateRange(to.AddDate(0, 0, -newsLookback), to), WithLimit(p.newsLimit))
			if err != nil {
				return err
			}
			mu.Lock()
			snapshot.Datasets[models.DataNews] = news
			mu.Unlock()
			return nil
		}},
		{Name: "fundamentals", Run: func(ctx context.Context) error {
			fundamentals, err := p.client.GetFundamentals(ctx, symbol)
			if err != nil {
				return err
			}
			mu.Lock()
			p.applyFundamentals(snapshot, fundamentals)
			mu.Unlock()
			return nil
		}},
	}

	pool := workers.NewPool(ctx, optionalFetchWorkers, logger)
	pool.Start()
	for _, job := range jobs {
		if err := pool.Submit(job); err != nil {
			break
		}
	}
	if err := pool.Wait(); err != nil {
		logger.Debug().Err(err).Msg("Optional datasets unavailable")
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	logger.Info().
		Int("daily_bars", len(snapshot.DailyPrices)).
		Int("datasets", len(snapshot.Datasets)).
		Int("unavailable", len(pool.Errors())).
		Msg("Market snapshot fetched")

	return snapshot, nil
}

func (p *Provider) applyFundamentals(snapshot *models.MarketSnapshot, f *FundamentalsResponse) {
	if g := f.General; g != nil {
		profile := &snapshot.Profile
		if g.Name != "" {
			profile.Name = g.Name
		}
		profile.Description = g.Description
		profile.Industry = g.Industry
		profile.Sector = g.Sector
		profile.Currency = g.CurrencyCode
		profile.Link = g.WebURL
	}

	snapshot.Datasets[models.DataCompanyOverview] = map[string]interface{}{
		"general":         f.General,
		"highlights":      f.Highlights,
		"valuation":       f.Valuation,
		"technicals":      f.Technicals,
		"analyst_ratings": f.AnalystRatings,
	}

	if f.Financials != nil {
		if f.Financials.IncomeStatement != nil {
			snapshot.Datasets[models.DataIncomeStatement] = recentPeriods(f.Financials.IncomeStatement.Quarterly, statementPeriods)
		}
		if f.Financials.BalanceSheet != nil {
			snapshot.Datasets[models.DataBalanceSheet] = recentPeriods(f.Financials.BalanceSheet.Quarterly, statementPeriods)
		}
	}

	if f.Earnings != nil {
		snapshot.Datasets[models.DataEarningsEstimates] = map[string]interface{}{
			"history": recentEntries(f.Earnings.History, statementPeriods),
			"trend":   f.Earnings.Trend,
		}
	}
}

func pricePoints(bars EODResponse) []models.PricePoint {
	points := make([]models.PricePoint, 0, len(bars))
	for _, bar := range bars {
		points = append(points, models.PricePoint{
			Date:          bar.DateStr,
			Open:          bar.Open,
			High:          bar.High,
			Low:           bar.Low,
			Close:         bar.Close,
			AdjustedClose: bar.AdjustedClose,
			Volume:        bar.Volume,
		})
	}
	return points
}

// newestKeys returns up to n keys of a date-keyed map, newest first.
// Keys are YYYY-MM-DD so lexical order is date order.
func newestKeys[V any](m map[string]V, n int) []string {
	keys := slices.Sorted(maps.Keys(m))
	slices.Reverse(keys)
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func recentPeriods(periods map[string]map[string]interface{}, n int) []map[string]interface{} {
	keys := newestKeys(periods, n)
	out := make([]map[string]interface{}, 0, len(keys))
	for _, k := range keys {
		out = append(out, periods[k])
	}
	return out
}

func recentEntries(entries map[string]EarningsEntry, n int) []EarningsEntry {
	keys := newestKeys(entries, n)
	out := make([]EarningsEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, entries[k])
	}
	return out
}
