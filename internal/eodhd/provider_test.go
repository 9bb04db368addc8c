package eodhd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/models"
)

func newTestServer(t *testing.T, routes map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_token"))

		key := r.URL.Path
		if period := r.URL.Query().Get("period"); period != "" {
			key += "?period=" + period
		}
		body, ok := routes[key]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if status, ok := body.(int); ok {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(body))
	}))
}

func newTestProvider(url string) *Provider {
	client := NewClient("test-key", WithBaseURL(url), WithRateLimit(100))
	return NewProvider(client, 5, arbor.NewNoOpLogger())
}

var testDay = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func TestProvider_Snapshot(t *testing.T) {
	server := newTestServer(t, map[string]interface{}{
		"/eod/AAPL.US?period=d": []map[string]interface{}{
			{"date": "2025-03-12", "open": 1, "high": 2, "low": 0.5, "close": 1.5, "adjusted_close": 1.5, "volume": 100},
			{"date": "2025-03-13", "open": 1.5, "high": 2.5, "low": 1, "close": 2, "adjusted_close": 2, "volume": 200},
		},
		"/eod/AAPL.US?period=w": []map[string]interface{}{{"date": "2025-03-10", "close": 2}},
		"/eod/AAPL.US?period=m": []map[string]interface{}{{"date": "2025-03-01", "close": 2}},
		"/div/AAPL.US":          []map[string]interface{}{{"date": "2025-02-10", "value": 0.25}},
		"/splits/AAPL.US":       []map[string]interface{}{},
		"/news":                 []map[string]interface{}{{"date": "2025-03-13T10:00:00+00:00", "title": "Apple ships"}},
		"/fundamentals/AAPL.US": map[string]interface{}{
			"General": map[string]interface{}{
				"Name": "Apple Inc", "Description": "Consumer electronics", "Industry": "Consumer Electronics",
				"Sector": "Technology", "CurrencyCode": "USD", "WebURL": "https://www.apple.com",
			},
			"Financials": map[string]interface{}{
				"Income_Statement": map[string]interface{}{
					"quarterly": map[string]interface{}{
						"2024-09-30": map[string]interface{}{"totalRevenue": "94930000000"},
						"2024-12-31": map[string]interface{}{"totalRevenue": "124300000000"},
					},
				},
			},
		},
	})
	defer server.Close()

	snapshot, err := newTestProvider(server.URL).Snapshot(context.Background(), "AAPL", testDay)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", snapshot.Profile.Ticker)
	assert.Equal(t, "Apple Inc", snapshot.Profile.Name)
	assert.Equal(t, "Consumer Electronics", snapshot.Profile.Industry)
	assert.Equal(t, "https://www.apple.com", snapshot.Profile.Link)

	require.Len(t, snapshot.DailyPrices, 2)
	assert.Equal(t, "2025-03-13", snapshot.DailyPrices[1].Date)
	assert.Equal(t, 2.0, snapshot.DailyPrices[1].Close)
	assert.Len(t, snapshot.WeeklyPrices, 1)
	assert.Len(t, snapshot.MonthlyPrices, 1)

	assert.Contains(t, snapshot.Datasets, models.DataDividends)
	assert.Contains(t, snapshot.Datasets, models.DataNews)
	assert.Contains(t, snapshot.Datasets, models.DataCompanyOverview)

	income := snapshot.Datasets[models.DataIncomeStatement].([]map[string]interface{})
	require.Len(t, income, 2)
	assert.Equal(t, "124300000000", income[0]["totalRevenue"])
}

func TestProvider_OptionalDatasetsMissing(t *testing.T) {
	server := newTestServer(t, map[string]interface{}{
		"/eod/AAPL.US?period=d": []map[string]interface{}{{"date": "2025-03-13", "close": 2}},
	})
	defer server.Close()

	snapshot, err := newTestProvider(server.URL).Snapshot(context.Background(), "US:AAPL", testDay)
	require.NoError(t, err)

	assert.Len(t, snapshot.DailyPrices, 1)
	assert.Empty(t, snapshot.Datasets)
	assert.Equal(t, "AAPL", snapshot.Profile.Name)
}

func TestProvider_DailyPricesRequired(t *testing.T) {
	server := newTestServer(t, map[string]interface{}{
		"/eod/AAPL.US?period=d": http.StatusInternalServerError,
	})
	defer server.Close()

	_, err := newTestProvider(server.URL).Snapshot(context.Background(), "AAPL", testDay)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.GetFundamentals(context.Background(), "AAPL.US")

	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 7*time.Second, rlErr.RetryAfter)
}
