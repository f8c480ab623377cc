package analysis

import (
	"github.com/shopspring/decimal"

	"stock_searcher_backend/models"
	"stock_searcher_backend/services/candlestick"
)

// PreFilterLastObservation checks the last record of a candidate series
// against the query's terminal constraints and discards the whole series
// when any check fails. This avoids paying for a full range summary on
// symbols that cannot possibly pass.
func PreFilterLastObservation(series []models.StockData, param models.CodeParam) []models.StockData {
	if len(series) == 0 {
		return nil
	}
	last := series[len(series)-1]

	if !priceWithinBand(last, param) {
		return nil
	}
	if !patternAllowed(last, param.CandlestickTypes) {
		return nil
	}
	if !clearsLowDistance(last, param) {
		return nil
	}
	return series
}

// priceWithinBand checks the closing price against [low, high]; a
// non-positive upper bound disables it.
func priceWithinBand(last models.StockData, param models.CodeParam) bool {
	if !last.ClosingPrice.Valid {
		return false
	}
	close := last.ClosingPrice.Decimal
	if close.LessThan(param.PriceLowLimit) {
		return false
	}
	if param.PriceHighLimit.IsPositive() && close.GreaterThan(param.PriceHighLimit) {
		return false
	}
	return true
}

// patternAllowed checks membership in the allowed-pattern set; an empty set
// allows everything. An indeterminate record cannot prove membership.
func patternAllowed(last models.StockData, allowed []models.CandlestickType) bool {
	if len(allowed) == 0 {
		return true
	}
	detected, err := candlestick.Detect(last)
	if err != nil {
		return false
	}
	for _, t := range allowed {
		if t == detected {
			return true
		}
	}
	return false
}

// clearsLowDistance requires both (open-low)/low and (close-low)/low, in
// percent, to reach their configured limits.
func clearsLowDistance(last models.StockData, param models.CodeParam) bool {
	if !last.OpeningPrice.Valid || !last.ClosingPrice.Valid || !last.LowestPrice.Valid {
		return false
	}
	low := last.LowestPrice.Decimal
	if low.IsZero() {
		return false
	}

	openCalc := percentAboveLow(last.OpeningPrice.Decimal, low)
	closeCalc := percentAboveLow(last.ClosingPrice.Decimal, low)
	return openCalc.GreaterThanOrEqual(param.LastOpenCalcLimit) &&
		closeCalc.GreaterThanOrEqual(param.LastCloseCalcLimit)
}

func percentAboveLow(price, low decimal.Decimal) decimal.Decimal {
	return price.Sub(low).Div(low).Mul(hundred).RoundFloor(4)
}
