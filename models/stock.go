package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CompanyStatus represents one venue-qualified symbol in the company directory.
// Venue membership never changes once persisted.
type CompanyStatus struct {
	Code       string    `gorm:"primaryKey;size:16" json:"code"`
	Name       string    `json:"name"`
	IsOTC      bool      `json:"isOTC"`
	UpdateDate time.Time `json:"updateDate"`
}

// StockData is one daily OHLC record. Price and volume fields are nullable
// decimals because upstream feeds report "--" or partial rows on no-trade
// days. A record is uniquely identified by (code, date).
type StockData struct {
	Code         string              `gorm:"primaryKey;size:16" json:"code"`
	Date         time.Time           `gorm:"primaryKey" json:"date"`
	TradeVolume  decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"tradeVolume"`
	TradeValue   decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"tradeValue"`
	OpeningPrice decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"openingPrice"`
	HighestPrice decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"highestPrice"`
	LowestPrice  decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"lowestPrice"`
	ClosingPrice decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"closingPrice"`
	Change       decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"change"`
	Transactions decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"transactions"`
	IsOTC        bool                `json:"isOTC"`
	UpdateDate   time.Time           `json:"updateDate"`
}

// StockMAResult holds the merged moving averages for one (code, date).
// Each MA stays null until the trailing window has enough observations.
type StockMAResult struct {
	Code  string              `gorm:"primaryKey;size:16" json:"code"`
	Date  time.Time           `gorm:"primaryKey" json:"date"`
	MA5   decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"ma5"`
	MA10  decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"ma10"`
	MA20  decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"ma20"`
	MA60  decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"ma60"`
	Price decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"price"`
}

// StockBumpy is the range summary used as a volatility ranking signal.
// CalcResult = (highest - lowest) / lowest * 100, floored to 4 decimals.
type StockBumpy struct {
	Code                  string              `json:"code"`
	Name                  string              `json:"name"`
	BeginDate             time.Time           `json:"beginDate"`
	EndDate               time.Time           `json:"endDate"`
	HighestDate           time.Time           `json:"highestDate"`
	HighestPrice          decimal.Decimal     `json:"highestPrice"`
	LowestDate            time.Time           `json:"lowestDate"`
	LowestPrice           decimal.Decimal     `json:"lowestPrice"`
	LowestTradeVolumeDate time.Time           `json:"lowestTradeVolumeDate"`
	LowestTradeVolume     decimal.NullDecimal `json:"lowestTradeVolume"`
	CalcResult            decimal.Decimal     `json:"calcResult"`
	LastStockMA           *StockMAResult      `json:"lastStockMA,omitempty"`
}

// CodeParam carries the query conditions for the stock endpoints.
type CodeParam struct {
	Code      string `json:"code"`
	BeginDate string `json:"beginDate"`
	EndDate   string `json:"endDate"`

	BumpyHighLimit   decimal.Decimal `json:"bumpyHighLimit"`
	BumpyLowLimit    decimal.Decimal `json:"bumpyLowLimit"`
	TradeVolumeLimit decimal.Decimal `json:"tradeVolumeLimit"`

	PriceLowLimit  decimal.Decimal `json:"priceLowLimit"`
	PriceHighLimit decimal.Decimal `json:"priceHighLimit"`

	// KlineCnt narrows the series to the last N records before EndDate.
	KlineCnt int `json:"klineCnt"`

	LastOpenCalcLimit  decimal.Decimal `json:"lastOpenCalcLimit"`
	LastCloseCalcLimit decimal.Decimal `json:"lastCloseCalcLimit"`

	// MA5, MA10, MA20 or MA60; the closing price must not be below it.
	ClosingPriceCompareTarget string `json:"closingPriceCompareTarget"`

	// Allowed candlestick patterns for the last record; empty means any.
	CandlestickTypes []CandlestickType `json:"candlestickTypes"`
}

// CodeList is a user-named set of symbols stored in MongoDB.
type CodeList struct {
	Name  string          `bson:"_id" json:"name"`
	User  string          `bson:"user" json:"user"`
	Codes []CompanyStatus `bson:"codes" json:"codes"`
}

// MigrateStockModels runs database migrations for stock-related models
func MigrateStockModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&CompanyStatus{},
		&StockData{},
		&StockMAResult{},
	)
}
