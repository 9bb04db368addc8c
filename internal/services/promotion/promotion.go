// Package promotion builds the messages that request a promotional video for
// a completed analysis.
package promotion

import (
	"fmt"
	"strings"

	"github.com/MatusBehul/veloryn/internal/models"
)

// DefaultSeriesLength is the number of closes used when none is configured.
const DefaultSeriesLength = 30

// Candidate returns the item for language when it is flagged for promotion.
func Candidate(items []models.AnalysisItem, language string) *models.AnalysisItem {
	item := models.FindLanguage(items, language)
	if item == nil || !item.PromoteFlag {
		return nil
	}
	return item
}

// Build assembles the promotion message for item.
func Build(profile models.CompanyProfile, day string, item *models.AnalysisItem, prices []models.PricePoint, seriesLength int) *models.PromotionMessage {
	return &models.PromotionMessage{
		Title:       title(profile),
		Subtitle:    fmt.Sprintf("Daily analysis %s", day),
		TTSText:     strings.TrimSpace(item.PromoTTSText),
		CaptionText: strings.TrimSpace(item.PromoSummary),
		SeriesData:  LastCloses(prices, seriesLength),
	}
}

// LastCloses returns the closing prices of the newest n bars in date order.
// prices must be in ascending date order.
func LastCloses(prices []models.PricePoint, n int) []models.SeriesPoint {
	if n <= 0 {
		n = DefaultSeriesLength
	}
	if len(prices) > n {
		prices = prices[len(prices)-n:]
	}

	series := make([]models.SeriesPoint, len(prices))
	for i, p := range prices {
		series[i] = models.SeriesPoint{Date: p.Date, Value: p.Close}
	}
	return series
}

func title(profile models.CompanyProfile) string {
	ticker := strings.ToUpper(profile.Ticker)
	if profile.Name == "" || strings.EqualFold(profile.Name, ticker) {
		return ticker
	}
	return fmt.Sprintf("%s (%s)", profile.Name, ticker)
}
