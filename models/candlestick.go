package models

// CandlestickType names the daily K-line silhouette of one OHLC record.
type CandlestickType string

const (
	BullishLine        CandlestickType = "BullishLine"
	BullishHighWave    CandlestickType = "BullishHighWave"
	BullishUpperShadow CandlestickType = "BullishUpperShadow"
	BullishLowerShadow CandlestickType = "BullishLowerShadow"
	BullishHammer      CandlestickType = "BullishHammer"
	BullishUpperHammer CandlestickType = "BullishUpperHammer"
	BullishLowerHammer CandlestickType = "BullishLowerHammer"

	BearishLine        CandlestickType = "BearishLine"
	BearishHighWave    CandlestickType = "BearishHighWave"
	BearishUpperShadow CandlestickType = "BearishUpperShadow"
	BearishLowerShadow CandlestickType = "BearishLowerShadow"
	BearishHammer      CandlestickType = "BearishHammer"
	BearishUpperHammer CandlestickType = "BearishUpperHammer"
	BearishLowerHammer CandlestickType = "BearishLowerHammer"

	CrossLine     CandlestickType = "CrossLine"
	CrossLineUp   CandlestickType = "CrossLineUp"
	CrossLineDown CandlestickType = "CrossLineDown"
	DashLine      CandlestickType = "DashLine"
	TLine         CandlestickType = "TLine"
	InvertedTLine CandlestickType = "InvertedTLine"

	UnknownType CandlestickType = "UnknownType"
)

// candlestickNames maps each type to its display name.
var candlestickNames = map[CandlestickType]string{
	BullishLine:        "大陽線",
	BullishHighWave:    "上下影線陽線",
	BullishUpperShadow: "上影線陽線",
	BullishLowerShadow: "下影線陽線",
	BullishHammer:      "陽線錘",
	BullishUpperHammer: "上陽線錘",
	BullishLowerHammer: "下陽線錘",
	BearishLine:        "大陰線",
	BearishHighWave:    "上下影線陰線",
	BearishUpperShadow: "上影線陰線",
	BearishLowerShadow: "下影線陰線",
	BearishHammer:      "陰線錘",
	BearishUpperHammer: "上陰線錘",
	BearishLowerHammer: "下陰線錘",
	CrossLine:          "十字線",
	CrossLineUp:        "十字線上影線較長",
	CrossLineDown:      "十字線下影線較長",
	DashLine:           "一字線",
	TLine:              "T字線",
	InvertedTLine:      "倒T字線",
	UnknownType:        "未定義型態",
}

// DisplayName returns the human-readable name of the candlestick type.
func (t CandlestickType) DisplayName() string {
	if name, ok := candlestickNames[t]; ok {
		return name
	}
	return candlestickNames[UnknownType]
}
