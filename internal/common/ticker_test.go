package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTicker(t *testing.T) {
	originalDefault := DefaultExchange
	DefaultExchange = "US"
	defer func() { DefaultExchange = originalDefault }()

	tests := []struct {
		input        string
		wantExchange string
		wantCode     string
		wantString   string
		wantEODHD    string
	}{
		{"NASDAQ:AAPL", "NASDAQ", "AAPL", "NASDAQ:AAPL", "AAPL.US"},
		{"ASX:GNP", "ASX", "GNP", "ASX:GNP", "GNP.AU"},
		{"ASX.GNP", "ASX", "GNP", "ASX:GNP", "GNP.AU"},
		{"aapl", "US", "AAPL", "US:AAPL", "AAPL.US"},
		{"BRK.B", "US", "BRK.B", "US:BRK.B", "BRK.B.US"},
		{"  msft  ", "US", "MSFT", "US:MSFT", "MSFT.US"},
		{"EURONEXT:AIR", "EURONEXT", "AIR", "EURONEXT:AIR", "AIR.EURONEXT"},
		{"", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseTicker(tt.input)

			assert.Equal(t, tt.wantExchange, result.Exchange)
			assert.Equal(t, tt.wantCode, result.Code)
			assert.Equal(t, tt.wantString, result.String())
			assert.Equal(t, tt.wantEODHD, result.EODHDSymbol())
		})
	}
}

func TestTicker_DocumentKey(t *testing.T) {
	assert.Equal(t, "AAPL-2025-03-14", ParseTicker("NASDAQ:AAPL").DocumentKey("2025-03-14"))
	assert.True(t, ParseTicker("  ").IsZero())
}
