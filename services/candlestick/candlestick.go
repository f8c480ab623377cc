// Package candlestick classifies a single daily OHLC record into one of the
// twenty named K-line silhouettes.
package candlestick

import (
	"errors"

	"github.com/shopspring/decimal"

	"stock_searcher_backend/models"
)

// ErrIndeterminate is returned when the record cannot be classified: a field
// is missing, or the shadow ratio has a zero-length body as divisor.
var ErrIndeterminate = errors.New("candlestick: indeterminate record")

// Ratio limits separating the three body tiers.
var (
	hammerLimit   = decimal.RequireFromString("1.2")
	cylinderLimit = decimal.RequireFromString("0.2")
)

// color is the sign of open minus close. An "up" body (open above close,
// a price decline) classifies into the Bearish family and a "down" body
// into the Bullish family; this matches the venue's display convention and
// is kept exactly, see DESIGN.md.
type color int

const (
	colorFlat color = iota
	colorUp
	colorDown
)

// tier buckets the shadow-to-body ratio of a non-flat candle.
type tier int

const (
	tierLine tier = iota
	tierShadow
	tierHammer
)

// shadowCmp compares upper against lower shadow length.
type shadowCmp int

const (
	shadowsEqual shadowCmp = iota
	upperLonger
	lowerLonger
)

// bodyTable is the exhaustive classification of non-flat candles,
// keyed by (color, ratio tier, shadow comparison).
var bodyTable = map[color]map[tier]map[shadowCmp]models.CandlestickType{
	colorDown: {
		tierHammer: {
			shadowsEqual: models.BullishHammer,
			upperLonger:  models.BullishUpperHammer,
			lowerLonger:  models.BullishLowerHammer,
		},
		tierShadow: {
			shadowsEqual: models.BullishHighWave,
			upperLonger:  models.BullishUpperShadow,
			lowerLonger:  models.BullishLowerShadow,
		},
		tierLine: {
			shadowsEqual: models.BullishLine,
			upperLonger:  models.BullishLine,
			lowerLonger:  models.BullishLine,
		},
	},
	colorUp: {
		tierHammer: {
			shadowsEqual: models.BearishHammer,
			upperLonger:  models.BearishUpperHammer,
			lowerLonger:  models.BearishLowerHammer,
		},
		tierShadow: {
			shadowsEqual: models.BearishHighWave,
			upperLonger:  models.BearishUpperShadow,
			lowerLonger:  models.BearishLowerShadow,
		},
		tierLine: {
			shadowsEqual: models.BearishLine,
			upperLonger:  models.BearishLine,
			lowerLonger:  models.BearishLine,
		},
	},
}

// Detect classifies one OHLC record. On any indeterminate input the type is
// models.UnknownType together with ErrIndeterminate; callers treat that as
// "unknown", never as a failure.
func Detect(data models.StockData) (models.CandlestickType, error) {
	if !data.OpeningPrice.Valid || !data.ClosingPrice.Valid ||
		!data.HighestPrice.Valid || !data.LowestPrice.Valid {
		return models.UnknownType, ErrIndeterminate
	}

	open := data.OpeningPrice.Decimal
	close := data.ClosingPrice.Decimal
	high := data.HighestPrice.Decimal
	low := data.LowestPrice.Decimal

	body := open.Sub(close)
	upperShadow := high.Sub(decimal.Max(open, close))
	lowerShadow := decimal.Min(open, close).Sub(low)

	switch bodyColor(body) {
	case colorFlat:
		return flatCharge(upperShadow, lowerShadow), nil
	default:
		return bodyCharge(bodyColor(body), body.Abs(), upperShadow, lowerShadow)
	}
}

func bodyColor(body decimal.Decimal) color {
	switch body.Sign() {
	case 0:
		return colorFlat
	case 1:
		return colorUp
	default:
		return colorDown
	}
}

// flatCharge classifies zero-body candles purely by their shadows.
func flatCharge(upperShadow, lowerShadow decimal.Decimal) models.CandlestickType {
	upperZero := upperShadow.IsZero()
	lowerZero := lowerShadow.IsZero()

	switch {
	case upperZero && lowerZero:
		return models.DashLine
	case upperZero:
		return models.TLine
	case lowerZero:
		return models.InvertedTLine
	}

	switch compareShadows(upperShadow, lowerShadow) {
	case upperLonger:
		return models.CrossLineUp
	case lowerLonger:
		return models.CrossLineDown
	default:
		return models.CrossLine
	}
}

// bodyCharge classifies non-flat candles through the decision table.
func bodyCharge(c color, bodyLine, upperShadow, lowerShadow decimal.Decimal) (models.CandlestickType, error) {
	if bodyLine.IsZero() {
		return models.UnknownType, ErrIndeterminate
	}

	ratio := decimal.Max(upperShadow, lowerShadow).
		Div(bodyLine).
		RoundFloor(4)

	t := tierLine
	if ratio.GreaterThan(hammerLimit) {
		t = tierHammer
	} else if ratio.GreaterThan(cylinderLimit) {
		t = tierShadow
	}

	return bodyTable[c][t][compareShadows(upperShadow, lowerShadow)], nil
}

func compareShadows(upperShadow, lowerShadow decimal.Decimal) shadowCmp {
	switch upperShadow.Cmp(lowerShadow) {
	case 1:
		return upperLonger
	case -1:
		return lowerLonger
	default:
		return shadowsEqual
	}
}
