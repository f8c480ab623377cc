package analysis

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stock_searcher_backend/models"
)

// maPeriods are the trailing windows computed for every date.
var maPeriods = []int{5, 10, 20, 60}

// MovingAverages slides one window per period over the date-ordered series
// and merges the partial results by date. The series must already carry the
// leading context days before begin; results are filtered to dates strictly
// inside (begin, end). A date whose window never reached its period simply
// leaves that MA null.
func MovingAverages(series []models.StockData, code string, begin, end time.Time) []models.StockMAResult {
	merged := make(map[time.Time]*models.StockMAResult, len(series))

	for _, period := range maPeriods {
		for i := period - 1; i < len(series); i++ {
			data := series[i]
			result, ok := merged[data.Date]
			if !ok {
				result = &models.StockMAResult{
					Code:  code,
					Date:  data.Date,
					Price: data.ClosingPrice,
				}
				merged[data.Date] = result
			}
			value := averageClose(series[i-period+1:i+1], period)
			contribute(result, period, value)
		}
	}

	results := make([]models.StockMAResult, 0, len(merged))
	for date, result := range merged {
		if date.After(begin) && date.Before(end) {
			results = append(results, *result)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Date.Before(results[j].Date)
	})
	return results
}

// averageClose sums the window's closing prices, null counting as zero, and
// divides by the period rounding half up.
func averageClose(window []models.StockData, period int) decimal.Decimal {
	sum := decimal.Zero
	for _, data := range window {
		if data.ClosingPrice.Valid {
			sum = sum.Add(data.ClosingPrice.Decimal)
		}
	}
	return sum.DivRound(decimal.NewFromInt(int64(period)), 4)
}

// contribute fills the period's field, keeping the first non-null value.
func contribute(result *models.StockMAResult, period int, value decimal.Decimal) {
	wrapped := decimal.NewNullDecimal(value)
	switch period {
	case 5:
		if !result.MA5.Valid {
			result.MA5 = wrapped
		}
	case 10:
		if !result.MA10.Valid {
			result.MA10 = wrapped
		}
	case 20:
		if !result.MA20.Valid {
			result.MA20 = wrapped
		}
	case 60:
		if !result.MA60.Valid {
			result.MA60 = wrapped
		}
	}
}
