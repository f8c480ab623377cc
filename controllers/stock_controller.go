package controllers

import (
	"context"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stock_searcher_backend/models"
	"stock_searcher_backend/services/analysis"
	"stock_searcher_backend/services/dateutil"
	"stock_searcher_backend/services/store"
	"stock_searcher_backend/services/telemetry"
)

// StockController serves the stock query and screening endpoints.
type StockController struct {
	store            *store.StockStore
	codeLists        *store.CodeListStore
	events           telemetry.Publisher
	analyticsTimeout time.Duration
}

// NewStockController creates a new stock controller
func NewStockController(stockStore *store.StockStore, codeLists *store.CodeListStore, events telemetry.Publisher, analyticsTimeout time.Duration) *StockController {
	return &StockController{
		store:            stockStore,
		codeLists:        codeLists,
		events:           events,
		analyticsTimeout: analyticsTimeout,
	}
}

// FindStockInfo returns the daily records for one symbol inside the window.
// POST /stocks/findStockInfo
func (sc *StockController) FindStockInfo(c *gin.Context) {
	var param models.CodeParam
	if err := c.ShouldBindJSON(&param); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	series, err := sc.series(param)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, series)
}

// GetRangeOfHighAndLowPoint computes the range summary for one symbol.
// POST /stocks/getRangeOfHighAndLowPoint
func (sc *StockController) GetRangeOfHighAndLowPoint(c *gin.Context) {
	var param models.CodeParam
	if err := c.ShouldBindJSON(&param); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	bumpy, err := sc.rangeOfHighAndLowPoint(param)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A filtered-out or uncomputable symbol yields a null body, not an error.
	c.JSON(http.StatusOK, bumpy)
}

// GetAllRangeOfHighAndLowPoint screens a set of symbols and ranks the
// surviving range summaries by percent range, highest first.
// POST /stocks/getAllRangeOfHighAndLowPoint
func (sc *StockController) GetAllRangeOfHighAndLowPoint(c *gin.Context) {
	var param models.CodeParam
	if err := c.ShouldBindJSON(&param); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	companies, err := sc.resolveCandidates(c, param.Code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []models.StockBumpy
	)
	for _, company := range companies {
		sub := param
		sub.Code = company.Code

		wg.Add(1)
		go func(sub models.CodeParam) {
			defer wg.Done()
			bumpy, err := sc.rangeOfHighAndLowPoint(sub)
			if err != nil || bumpy == nil {
				if err != nil {
					sc.events.Publish(telemetry.Event{
						Time:    time.Now(),
						Kind:    telemetry.KindCompute,
						Code:    sub.Code,
						Message: err.Error(),
					})
				}
				return
			}
			mu.Lock()
			results = append(results, *bumpy)
			mu.Unlock()
		}(sub)
	}
	wg.Wait()

	filtered := results[:0]
	for _, bumpy := range results {
		if !param.BumpyHighLimit.IsZero() && bumpy.CalcResult.GreaterThanOrEqual(param.BumpyHighLimit) {
			continue
		}
		if bumpy.CalcResult.LessThan(param.BumpyLowLimit) {
			continue
		}
		filtered = append(filtered, bumpy)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CalcResult.GreaterThan(filtered[j].CalcResult)
	})

	c.JSON(http.StatusOK, filtered)
}

// GetStockMa returns the merged moving averages for one symbol.
// POST /stocks/getStockMa
func (sc *StockController) GetStockMa(c *gin.Context) {
	var param models.CodeParam
	if err := c.ShouldBindJSON(&param); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	begin, err := dateutil.ParseISO(param.BeginDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid beginDate"})
		return
	}
	end, err := dateutil.ParseISO(param.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid endDate"})
		return
	}

	results, err := sc.movingAverages(param.Code, begin, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute moving averages"})
		return
	}

	c.JSON(http.StatusOK, results)
}

// FindCompaniesByKeyWord searches the company directory.
// POST /stocks/findCompaniesByKeyWord
func (sc *StockController) FindCompaniesByKeyWord(c *gin.Context) {
	var body struct {
		Keyword string `json:"keyword"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	keyword := strings.TrimSpace(body.Keyword)
	if len(keyword) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Keyword must be at least 2 characters"})
		return
	}

	companies, err := sc.store.SearchCompanies(keyword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search companies"})
		return
	}

	c.JSON(http.StatusOK, companies)
}

// SaveCodeList stores a named symbol list.
// POST /stocks/saveCodeList
func (sc *StockController) SaveCodeList(c *gin.Context) {
	var list models.CodeList
	if err := c.ShouldBindJSON(&list); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if list.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code list name is required"})
		return
	}

	if err := sc.codeLists.Save(c.Request.Context(), list); err != nil {
		if err == store.ErrCodeListDisabled {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Code list storage is not configured"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save code list"})
		return
	}

	c.JSON(http.StatusOK, list)
}

// GetCodeList returns a named symbol list.
// GET /stocks/codeList/:name
func (sc *StockController) GetCodeList(c *gin.Context) {
	name := c.Param("name")

	list, found, err := sc.codeLists.Get(c.Request.Context(), name)
	if err != nil {
		if err == store.ErrCodeListDisabled {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Code list storage is not configured"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load code list"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Code list not found"})
		return
	}

	c.JSON(http.StatusOK, list)
}

// series reads the stored records for the param's window, keeping only days
// strictly before today. Today's row may still be partial while the venue is
// mid-crawl.
func (sc *StockController) series(param models.CodeParam) ([]models.StockData, error) {
	begin, err := dateutil.ParseISO(param.BeginDate)
	if err != nil {
		return nil, err
	}
	end, err := dateutil.ParseISO(param.EndDate)
	if err != nil {
		return nil, err
	}

	records, err := sc.store.FindRange(param.Code, begin, end)
	if err != nil {
		return nil, err
	}
	return beforeToday(records), nil
}

func beforeToday(records []models.StockData) []models.StockData {
	today := dateutil.DayOf(time.Now())
	kept := records[:0]
	for _, record := range records {
		if record.Date.Before(today) {
			kept = append(kept, record)
		}
	}
	return kept
}

// rangeOfHighAndLowPoint runs the full single-symbol pipeline: optional
// klineCnt window, last-observation pre-filter, range summary under the
// analytics deadline, volume floor and the closing-price-vs-MA check. A nil
// result with nil error means the symbol was filtered out or uncomputable.
func (sc *StockController) rangeOfHighAndLowPoint(param models.CodeParam) (*models.StockBumpy, error) {
	if param.KlineCnt > 0 {
		end, err := dateutil.ParseISO(param.EndDate)
		if err != nil {
			return nil, err
		}
		param.BeginDate = end.AddDate(0, 0, -3*param.KlineCnt).Format(dateutil.ISODate)
	}

	series, err := sc.series(param)
	if err != nil {
		return nil, err
	}
	if param.KlineCnt > 0 && len(series) > param.KlineCnt {
		series = series[len(series)-param.KlineCnt:]
	}

	series = analysis.PreFilterLastObservation(series, param)
	if len(series) == 0 {
		return nil, nil
	}

	name := param.Code
	if company, found, err := sc.store.FindCompany(param.Code); err == nil && found {
		name = company.Name
	}

	bumpy := analysis.RangeSummaryWithTimeout(context.Background(), sc.analyticsTimeout, series, param.Code, name)
	if bumpy == nil {
		return nil, nil
	}

	volume := decimal.Zero
	if bumpy.LowestTradeVolume.Valid {
		volume = bumpy.LowestTradeVolume.Decimal
	}
	if volume.LessThan(param.TradeVolumeLimit) {
		return nil, nil
	}

	maResults, err := sc.movingAverages(param.Code, bumpy.EndDate, bumpy.EndDate)
	if err != nil {
		return nil, err
	}
	if len(maResults) == 0 {
		return nil, nil
	}
	last := maResults[len(maResults)-1]

	target := analysis.SelectMATarget(last, param.ClosingPriceCompareTarget)
	price := decimal.Zero
	if last.Price.Valid {
		price = last.Price.Decimal
	}
	if price.LessThan(target) {
		return nil, nil
	}

	bumpy.LastStockMA = &last
	return bumpy, nil
}

// movingAverages computes the merged MA rows strictly inside
// (begin-1, end+1), widening the raw fetch by five months of leading
// context so the 60-day window has data to work with. Computed rows are
// cached and reused when the cache already covers every trading day in the
// window.
func (sc *StockController) movingAverages(code string, begin, end time.Time) ([]models.StockMAResult, error) {
	beginEx := begin.AddDate(0, 0, -1)
	endEx := end.AddDate(0, 0, 1)

	series, err := sc.store.FindRange(code, beginEx.AddDate(0, -5, 0), end)
	if err != nil {
		return nil, err
	}
	series = beforeToday(series)

	expected := 0
	for _, record := range series {
		if record.Date.After(beginEx) && record.Date.Before(endEx) {
			expected++
		}
	}
	if expected == 0 {
		return nil, nil
	}

	if cached, err := sc.store.FindMAResults(code, begin, end); err == nil {
		cached = beforeTodayMA(cached)
		if len(cached) == expected {
			return cached, nil
		}
	}

	results := analysis.MovingAverages(series, code, beginEx, endEx)
	if err := sc.store.SaveMAResults(results); err != nil {
		log.Printf("failed to cache MA results for %s: %v", code, err)
	}
	return results, nil
}

func beforeTodayMA(results []models.StockMAResult) []models.StockMAResult {
	today := dateutil.DayOf(time.Now())
	kept := results[:0]
	for _, result := range results {
		if result.Date.Before(today) {
			kept = append(kept, result)
		}
	}
	return kept
}

// resolveCandidates maps the screening param's code field to a company set:
// the literal venues "all", "listed" and "tpex", or the name of a stored
// code list.
func (sc *StockController) resolveCandidates(c *gin.Context, code string) ([]models.CompanyStatus, error) {
	switch strings.ToLower(code) {
	case "all":
		return sc.store.Companies("")
	case "listed":
		return sc.store.Companies(models.VenueListed)
	case "tpex":
		return sc.store.Companies(models.VenueOTC)
	}

	list, found, err := sc.codeLists.Get(c.Request.Context(), code)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return list.Codes, nil
}
