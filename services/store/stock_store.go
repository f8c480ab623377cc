// Package store wraps the persistence backends. It holds no business logic:
// the crawler and the query endpoints decide what to read and write.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stock_searcher_backend/models"
)

// StockStore persists OHLC records, the company directory and the MA cache
// through gorm. Records are keyed (code, date); a re-fetch of the same key
// overwrites the stored row.
type StockStore struct {
	db *gorm.DB
}

// NewStockStore creates a stock store over an initialized database.
func NewStockStore(db *gorm.DB) *StockStore {
	return &StockStore{db: db}
}

// SaveAll upserts a batch of daily records on their (code, date) key.
func (s *StockStore) SaveAll(records []models.StockData) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}, {Name: "date"}},
		UpdateAll: true,
	}).Create(&records).Error
}

// FindRange returns the records for one symbol inside [begin, end], ordered
// by date ascending.
func (s *StockStore) FindRange(code string, begin, end time.Time) ([]models.StockData, error) {
	var records []models.StockData
	err := s.db.
		Where("code = ? AND date BETWEEN ? AND ?", code, begin, end).
		Order("date ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("find range for %s: %w", code, err)
	}
	return records, nil
}

// LatestRecord returns the most recent record for one symbol. The second
// return value is false when the symbol has no records at all.
func (s *StockStore) LatestRecord(code string) (models.StockData, bool, error) {
	var record models.StockData
	err := s.db.Where("code = ?", code).Order("date DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StockData{}, false, nil
	}
	if err != nil {
		return models.StockData{}, false, fmt.Errorf("latest record for %s: %w", code, err)
	}
	return record, true, nil
}

// EarliestDate returns the oldest persisted date for one symbol.
func (s *StockStore) EarliestDate(code string) (time.Time, bool, error) {
	var record models.StockData
	err := s.db.Where("code = ?", code).Order("date ASC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("earliest date for %s: %w", code, err)
	}
	return record.Date, true, nil
}

// LatestOTCRecord returns the most recent OTC record across all symbols.
// The OTC upstream is day-granular and multi-symbol, so one date covers the
// whole venue.
func (s *StockStore) LatestOTCRecord() (models.StockData, bool, error) {
	var record models.StockData
	err := s.db.Where("is_otc = ?", true).Order("date DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StockData{}, false, nil
	}
	if err != nil {
		return models.StockData{}, false, fmt.Errorf("latest otc record: %w", err)
	}
	return record, true, nil
}

// OTCDayStatus reports whether any OTC record exists for the given day and
// when it was last refreshed.
func (s *StockStore) OTCDayStatus(day time.Time) (bool, time.Time, error) {
	var record models.StockData
	err := s.db.Where("is_otc = ? AND date = ?", true, day).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("otc day status %s: %w", day.Format("2006-01-02"), err)
	}
	return true, record.UpdateDate, nil
}

// SaveCompanies upserts the company directory.
func (s *StockStore) SaveCompanies(companies []models.CompanyStatus) error {
	if len(companies) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		UpdateAll: true,
	}).Create(&companies).Error
}

// Companies returns the directory, optionally restricted to one venue.
func (s *StockStore) Companies(venue models.Venue) ([]models.CompanyStatus, error) {
	var companies []models.CompanyStatus
	query := s.db.Model(&models.CompanyStatus{})
	switch venue {
	case models.VenueListed:
		query = query.Where("is_otc = ?", false)
	case models.VenueOTC:
		query = query.Where("is_otc = ?", true)
	}
	if err := query.Order("code ASC").Find(&companies).Error; err != nil {
		return nil, fmt.Errorf("load companies: %w", err)
	}
	return companies, nil
}

// FindCompany returns one directory entry by code.
func (s *StockStore) FindCompany(code string) (models.CompanyStatus, bool, error) {
	var company models.CompanyStatus
	err := s.db.Where("code = ?", code).First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CompanyStatus{}, false, nil
	}
	if err != nil {
		return models.CompanyStatus{}, false, fmt.Errorf("find company %s: %w", code, err)
	}
	return company, true, nil
}

// SearchCompanies matches code or name against a keyword substring.
func (s *StockStore) SearchCompanies(keyword string) ([]models.CompanyStatus, error) {
	var companies []models.CompanyStatus
	pattern := "%" + keyword + "%"
	err := s.db.
		Where("code LIKE ? OR name LIKE ?", pattern, pattern).
		Order("code ASC").
		Find(&companies).Error
	if err != nil {
		return nil, fmt.Errorf("search companies %q: %w", keyword, err)
	}
	return companies, nil
}

// CompaniesRefreshedOn reports whether the directory was already refreshed
// on the given day.
func (s *StockStore) CompaniesRefreshedOn(day time.Time) (bool, error) {
	var count int64
	err := s.db.Model(&models.CompanyStatus{}).
		Where("update_date >= ?", day).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("companies refreshed on: %w", err)
	}
	return count > 0, nil
}

// SaveMAResults caches computed moving averages.
func (s *StockStore) SaveMAResults(results []models.StockMAResult) error {
	if len(results) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}, {Name: "date"}},
		UpdateAll: true,
	}).Create(&results).Error
}

// FindMAResults reads cached moving averages inside [begin, end].
func (s *StockStore) FindMAResults(code string, begin, end time.Time) ([]models.StockMAResult, error) {
	var results []models.StockMAResult
	err := s.db.
		Where("code = ? AND date BETWEEN ? AND ?", code, begin, end).
		Order("date ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("find ma results for %s: %w", code, err)
	}
	return results, nil
}
