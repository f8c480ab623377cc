// Package analysis computes range summaries, extrema and moving averages
// over date-ordered daily OHLC series. All functions are pure over an
// immutable snapshot and safe to run concurrently across symbols.
package analysis

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"stock_searcher_backend/models"
)

// ErrEmptySeries is returned when a calculation received no usable records.
// It is always surfaced: a caller confusing "no data" with "zero range"
// would misrank symbols.
var ErrEmptySeries = errors.New("analysis: empty series")

var hundred = decimal.NewFromInt(100)

// EffectiveHigh is the highest of open/high/low/close ignoring nulls. Feeds
// sometimes omit the explicit high, so every price field is considered.
func EffectiveHigh(data models.StockData) decimal.NullDecimal {
	return foldPrices(data, func(best, v decimal.Decimal) bool {
		return v.GreaterThan(best)
	})
}

// EffectiveLow is the lowest of open/high/low/close ignoring nulls.
func EffectiveLow(data models.StockData) decimal.NullDecimal {
	return foldPrices(data, func(best, v decimal.Decimal) bool {
		return v.LessThan(best)
	})
}

func foldPrices(data models.StockData, better func(best, v decimal.Decimal) bool) decimal.NullDecimal {
	var result decimal.NullDecimal
	for _, field := range []decimal.NullDecimal{
		data.HighestPrice, data.LowestPrice, data.OpeningPrice, data.ClosingPrice,
	} {
		if !field.Valid {
			continue
		}
		if !result.Valid || better(result.Decimal, field.Decimal) {
			result = field
		}
	}
	return result
}

// HighestPoint reduces the series to the date and value of its highest
// effective price. Records whose effective value is entirely null degrade to
// the other operand; ties keep the first occurrence in date order.
func HighestPoint(series []models.StockData) (time.Time, decimal.Decimal, error) {
	return extremum(series, EffectiveHigh, func(best, v decimal.Decimal) bool {
		return v.GreaterThan(best)
	})
}

// LowestPoint reduces the series to the date and value of its lowest
// effective price.
func LowestPoint(series []models.StockData) (time.Time, decimal.Decimal, error) {
	return extremum(series, EffectiveLow, func(best, v decimal.Decimal) bool {
		return v.LessThan(best)
	})
}

func extremum(
	series []models.StockData,
	effective func(models.StockData) decimal.NullDecimal,
	better func(best, v decimal.Decimal) bool,
) (time.Time, decimal.Decimal, error) {
	if len(series) == 0 {
		return time.Time{}, decimal.Zero, ErrEmptySeries
	}

	var bestDate time.Time
	var best decimal.NullDecimal
	for _, data := range series {
		value := effective(data)
		if !value.Valid {
			continue
		}
		if !best.Valid || better(best.Decimal, value.Decimal) {
			best = value
			bestDate = data.Date
		}
	}
	if !best.Valid {
		// every record was entirely null
		return time.Time{}, decimal.Zero, ErrEmptySeries
	}
	return bestDate, best.Decimal, nil
}

// LowestVolume reduces the series to the date and value of its smallest raw
// trade volume. A null volume compares as larger than any number and is
// never chosen, unless every volume is null, in which case the first
// element wins.
func LowestVolume(series []models.StockData) (time.Time, decimal.NullDecimal, error) {
	if len(series) == 0 {
		return time.Time{}, decimal.NullDecimal{}, ErrEmptySeries
	}

	bestDate := series[0].Date
	best := series[0].TradeVolume
	for _, data := range series[1:] {
		if !data.TradeVolume.Valid {
			continue
		}
		if !best.Valid || data.TradeVolume.Decimal.LessThan(best.Decimal) {
			best = data.TradeVolume
			bestDate = data.Date
		}
	}
	return bestDate, best, nil
}

// RangeSummary combines the three extremum reductions with the series
// bounds into a StockBumpy. The display name comes from the company
// directory and is supplied by the caller.
func RangeSummary(series []models.StockData, code, name string) (*models.StockBumpy, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}

	highestDate, highestPrice, err := HighestPoint(series)
	if err != nil {
		return nil, err
	}
	lowestDate, lowestPrice, err := LowestPoint(series)
	if err != nil {
		return nil, err
	}
	volumeDate, volume, err := LowestVolume(series)
	if err != nil {
		return nil, err
	}

	bumpy := &models.StockBumpy{
		Code:                  code,
		Name:                  name,
		BeginDate:             series[0].Date,
		EndDate:               series[len(series)-1].Date,
		HighestDate:           highestDate,
		HighestPrice:          highestPrice,
		LowestDate:            lowestDate,
		LowestPrice:           lowestPrice,
		LowestTradeVolumeDate: volumeDate,
		LowestTradeVolume:     volume,
	}

	if !lowestPrice.IsZero() {
		bumpy.CalcResult = highestPrice.Sub(lowestPrice).
			Div(lowestPrice).
			Mul(hundred).
			RoundFloor(4)
	}

	log.Printf("range summary %s: highest %s @ %s, lowest %s @ %s, result %s",
		code,
		bumpy.HighestPrice, bumpy.HighestDate.Format("2006-01-02"),
		bumpy.LowestPrice, bumpy.LowestDate.Format("2006-01-02"),
		bumpy.CalcResult,
	)

	return bumpy, nil
}

// RangeSummaryWithTimeout runs RangeSummary under a hard deadline. A timeout
// or internal error yields nil, meaning "could not compute", never
// "confirmed no data".
func RangeSummaryWithTimeout(ctx context.Context, timeout time.Duration, series []models.StockData, code, name string) *models.StockBumpy {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *models.StockBumpy, 1)
	go func() {
		bumpy, err := RangeSummary(series, code, name)
		if err != nil {
			log.Printf("range summary failed for %s: %v", code, err)
			done <- nil
			return
		}
		done <- bumpy
	}()

	select {
	case bumpy := <-done:
		return bumpy
	case <-ctx.Done():
		log.Printf("range summary for %s aborted: %v", code, ctx.Err())
		return nil
	}
}

// SelectMATarget resolves the configured comparison target against a MA
// result, falling back to the next shorter period when the requested one is
// still null. Unknown targets return -1 so the comparison always passes.
func SelectMATarget(result models.StockMAResult, target string) decimal.Decimal {
	chainFor := map[string][]decimal.NullDecimal{
		"MA5":  {result.MA5},
		"MA10": {result.MA10, result.MA5},
		"MA20": {result.MA20, result.MA10, result.MA5},
		"MA60": {result.MA60, result.MA20, result.MA10, result.MA5},
	}

	chain, ok := chainFor[target]
	if !ok {
		return decimal.NewFromInt(-1)
	}
	for _, ma := range chain {
		if ma.Valid {
			return ma.Decimal
		}
	}
	return decimal.Zero
}
