package analysis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_searcher_backend/models"
)

// closes builds a date-ordered series with one record per day starting at
// day 1, carrying the given closing prices.
func closes(values ...string) []models.StockData {
	series := make([]models.StockData, 0, len(values))
	for i, v := range values {
		data := models.StockData{Code: "2330", Date: day(i + 1)}
		if v != "" {
			data.ClosingPrice = nd(v)
		}
		series = append(series, data)
	}
	return series
}

func window(beginDay, endDay int) (time.Time, time.Time) {
	return day(beginDay), day(endDay)
}

func TestMovingAveragesShortSeries(t *testing.T) {
	series := closes("1", "2", "3", "4", "5", "6")
	begin, end := window(0, 7) // strictly inside, so all six days

	results := MovingAverages(series, "2330", begin, end)
	require.Len(t, results, 2) // only days 5 and 6 have a full 5-day window

	first := results[0]
	assert.Equal(t, day(5), first.Date)
	require.True(t, first.MA5.Valid)
	assert.Equal(t, "3", first.MA5.Decimal.String()) // (1+2+3+4+5)/5
	assert.False(t, first.MA10.Valid)
	assert.False(t, first.MA20.Valid)
	assert.False(t, first.MA60.Valid)

	second := results[1]
	assert.Equal(t, day(6), second.Date)
	require.True(t, second.MA5.Valid)
	assert.Equal(t, "4", second.MA5.Decimal.String()) // (2+3+4+5+6)/5
}

func TestMovingAveragesCarriesClosingPrice(t *testing.T) {
	series := closes("1", "2", "3", "4", "5")
	begin, end := window(0, 6)

	results := MovingAverages(series, "2330", begin, end)
	require.Len(t, results, 1)
	require.True(t, results[0].Price.Valid)
	assert.Equal(t, "5", results[0].Price.Decimal.String())
}

func TestMovingAveragesConstantSeries(t *testing.T) {
	values := make([]string, 10)
	for i := range values {
		values[i] = "10"
	}
	series := closes(values...)
	begin, end := window(0, 11)

	results := MovingAverages(series, "2330", begin, end)
	require.Len(t, results, 6)

	last := results[len(results)-1]
	assert.Equal(t, day(10), last.Date)
	require.True(t, last.MA5.Valid)
	require.True(t, last.MA10.Valid)
	assert.Equal(t, "10", last.MA5.Decimal.String())
	assert.Equal(t, "10", last.MA10.Decimal.String())
	assert.False(t, last.MA20.Valid)
}

func TestMovingAveragesNullCloseCountsAsZero(t *testing.T) {
	series := closes("10", "10", "10", "10", "")
	begin, end := window(0, 6)

	results := MovingAverages(series, "2330", begin, end)
	require.Len(t, results, 1)
	require.True(t, results[0].MA5.Valid)
	assert.Equal(t, "8", results[0].MA5.Decimal.String()) // 40/5
	assert.False(t, results[0].Price.Valid)
}

func TestMovingAveragesRoundsHalfUp(t *testing.T) {
	series := closes("1", "1", "1", "1", "1.0001")
	begin, end := window(0, 6)

	results := MovingAverages(series, "2330", begin, end)
	require.Len(t, results, 1)
	// 5.0001/5 = 1.00002, half-up at four decimals
	assert.Equal(t, "1", results[0].MA5.Decimal.String())
}

func TestMovingAveragesWindowIsExclusive(t *testing.T) {
	series := closes("1", "2", "3", "4", "5", "6", "7")
	begin, end := window(5, 7)

	results := MovingAverages(series, "2330", begin, end)
	require.Len(t, results, 1)
	assert.Equal(t, day(6), results[0].Date)
}

func TestMovingAveragesSortedAscending(t *testing.T) {
	series := closes("1", "2", "3", "4", "5", "6", "7", "8")
	begin, end := window(0, 9)

	results := MovingAverages(series, "2330", begin, end)
	require.True(t, len(results) > 1)
	for i := 1; i < len(results); i++ {
		assert.True(t, results[i-1].Date.Before(results[i].Date))
	}
}

func TestMovingAveragesEmptySeries(t *testing.T) {
	begin, end := window(0, 9)
	assert.Empty(t, MovingAverages(nil, "2330", begin, end))
}

func TestMovingAveragesLongSeriesFillsMA60(t *testing.T) {
	values := make([]string, 60)
	for i := range values {
		values[i] = "2"
	}
	series := make([]models.StockData, 0, 60)
	base := day(1)
	for i := range values {
		series = append(series, models.StockData{
			Code:         "2330",
			Date:         base.AddDate(0, 0, i),
			ClosingPrice: nd(values[i]),
		})
	}

	results := MovingAverages(series, "2330", base.AddDate(0, 0, 58), base.AddDate(0, 0, 60))
	require.Len(t, results, 1)
	last := results[0]
	require.True(t, last.MA60.Valid)
	assert.True(t, last.MA60.Decimal.Equal(decimal.RequireFromString("2")))
	require.True(t, last.MA20.Valid)
	require.True(t, last.MA10.Valid)
	require.True(t, last.MA5.Valid)
}
