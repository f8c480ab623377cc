package crawler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransDecimal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
		want  string
	}{
		{"plain number", "12.5", true, "12.5"},
		{"thousands separators", "1,234,567", true, "1234567"},
		{"status flag suffix", "103.00X", true, "103"},
		{"surrounding spaces", " 42 ", true, "42"},
		{"double dash placeholder", "--", false, ""},
		{"empty string", "", false, ""},
		{"garbage", "n/a", false, ""},
		{"negative change", "-1.50", true, "-1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := transDecimal(tt.input)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.Equal(t, tt.want, got.Decimal.String())
			}
		})
	}
}

func TestListedMonthResponseDecoding(t *testing.T) {
	payload := `{
		"stat": "OK",
		"date": "20240301",
		"data": [
			["2024/03/01", "31,556,194", "21,745,610,046", "688.00", "692.00", "686.00", "689.00", "+3.00", "28,765"]
		]
	}`

	var response listedMonthResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &response))
	require.Len(t, response.Data, 1)
	assert.Equal(t, "2024/03/01", response.Data[0][0])
	assert.Equal(t, "OK", response.Stat)
}

func TestOTCDayResponseDecoding(t *testing.T) {
	payload := `{
		"reportDate": "2024/03/01",
		"aaData": [
			["3105", "153.5", "+2.0", "152.0", "155.0", "151.5", "1,234", "189,421,000", "x"]
		]
	}`

	var response otcDayResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &response))
	assert.Equal(t, "2024/03/01", response.ReportDate)
	require.Len(t, response.AaData, 1)
	assert.Equal(t, "3105", response.AaData[0][0])
}
