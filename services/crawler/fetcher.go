// Package crawler discovers stale (symbol, period) combinations, schedules
// fetch jobs against the two upstream venues and persists the results.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"stock_searcher_backend/models"
	"stock_searcher_backend/services/dateutil"
)

const (
	// One symbol-month per call.
	listedStockURL = "https://www.twse.com.tw/en/exchangeReport/STOCK_DAY?response=json&date=%s&stockNo=%s"
	// One day across all OTC symbols per call.
	otcDayURL = "https://www.tpex.org.tw/web/stock/aftertrading/otc_quotes_no1430/stk_wn1430_result.php?l=en-us&d=%s&se=EW"
	// Company directories.
	listedCompanyURL = "https://openapi.twse.com.tw/v1/exchangeReport/TWTB4U"
	otcCompanyURL    = "https://www.tpex.org.tw/openapi/v1/tpex_mainboard_quotes"
)

// listedMonthResponse is the JSON shape of the listed venue endpoint.
// Row layout: [date, volume, turnover, open, high, low, close, change, transactions].
type listedMonthResponse struct {
	Stat string     `json:"stat"`
	Date string     `json:"date"`
	Data [][]string `json:"data"`
}

// otcDayResponse is the JSON shape of the OTC venue endpoint.
// Row layout: [symbol, close, change, open, high, low, volume, turnover].
type otcDayResponse struct {
	ReportDate string     `json:"reportDate"`
	AaData     [][]string `json:"aaData"`
}

type companyEntry struct {
	Code string `json:"Code"`
	Name string `json:"Name"`
}

// Client fetches upstream payloads and translates rows into OHLC records.
// A shared limiter caps the request rate of the decoding stage regardless
// of which consumer dispatches the call.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a fetch client with a bounded request rate.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// FetchListedMonth fetches one symbol-month from the listed venue. A period
// with no trading data yields zero rows, not an error.
func (c *Client) FetchListedMonth(ctx context.Context, code string, ym dateutil.YearMonth) ([]models.StockData, error) {
	url := fmt.Sprintf(listedStockURL, ym.FirstDay().Format(dateutil.CompactDate), code)

	var response listedMonthResponse
	if err := c.getJSON(ctx, url, &response); err != nil {
		return nil, err
	}
	if len(response.Data) == 0 {
		return nil, nil
	}

	now := time.Now()
	records := make([]models.StockData, 0, len(response.Data))
	for _, row := range response.Data {
		if len(row) < 9 {
			continue
		}
		date, err := dateutil.ParseSlash(row[0])
		if err != nil {
			log.Printf("skip listed row with bad date %q: %v", row[0], err)
			continue
		}
		records = append(records, models.StockData{
			Code:         code,
			Date:         date,
			TradeVolume:  transDecimal(row[1]),
			TradeValue:   transDecimal(row[2]),
			OpeningPrice: transDecimal(row[3]),
			HighestPrice: transDecimal(row[4]),
			LowestPrice:  transDecimal(row[5]),
			ClosingPrice: transDecimal(row[6]),
			Change:       transDecimal(row[7]),
			Transactions: transDecimal(row[8]),
			IsOTC:        false,
			UpdateDate:   now,
		})
	}
	return records, nil
}

// FetchOTCDay fetches every OTC symbol for one calendar day. Six-character
// codes are warrants and are skipped.
func (c *Client) FetchOTCDay(ctx context.Context, day time.Time) ([]models.StockData, error) {
	url := fmt.Sprintf(otcDayURL, day.Format(dateutil.SlashDate))

	var response otcDayResponse
	if err := c.getJSON(ctx, url, &response); err != nil {
		return nil, err
	}
	if len(response.AaData) == 0 {
		return nil, nil
	}

	date, err := dateutil.ParseSlash(response.ReportDate)
	if err != nil {
		return nil, fmt.Errorf("otc report date %q: %w", response.ReportDate, err)
	}

	now := time.Now()
	records := make([]models.StockData, 0, len(response.AaData))
	for _, row := range response.AaData {
		if len(row) < 8 || len(row[0]) == 6 {
			continue
		}
		records = append(records, models.StockData{
			Code:         row[0],
			Date:         date,
			ClosingPrice: transDecimal(row[1]),
			Change:       transDecimal(row[2]),
			OpeningPrice: transDecimal(row[3]),
			HighestPrice: transDecimal(row[4]),
			LowestPrice:  transDecimal(row[5]),
			TradeVolume:  transDecimal(row[6]),
			TradeValue:   transDecimal(row[7]),
			IsOTC:        true,
			UpdateDate:   now,
		})
	}
	return records, nil
}

// FetchCompanies fetches and merges both venue directories. OTC entries
// with six-character codes are skipped.
func (c *Client) FetchCompanies(ctx context.Context) ([]models.CompanyStatus, error) {
	var listed []companyEntry
	if err := c.getJSON(ctx, listedCompanyURL, &listed); err != nil {
		return nil, fmt.Errorf("fetch listed companies: %w", err)
	}
	var otc []companyEntry
	if err := c.getJSON(ctx, otcCompanyURL, &otc); err != nil {
		return nil, fmt.Errorf("fetch otc companies: %w", err)
	}

	now := time.Now()
	companies := make([]models.CompanyStatus, 0, len(listed)+len(otc))
	for _, entry := range listed {
		companies = append(companies, models.CompanyStatus{
			Code:       entry.Code,
			Name:       entry.Name,
			IsOTC:      false,
			UpdateDate: now,
		})
	}
	for _, entry := range otc {
		if len(entry.Code) == 6 {
			continue
		}
		companies = append(companies, models.CompanyStatus{
			Code:       entry.Code,
			Name:       entry.Name,
			IsOTC:      true,
			UpdateDate: now,
		})
	}
	return companies, nil
}

func (c *Client) getJSON(ctx context.Context, url string, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// transDecimal parses an upstream numeric string. Thousands separators and
// the "X" status flag are stripped; the "--" placeholder and anything
// unparsable map to null rather than failing the row.
func transDecimal(s string) decimal.NullDecimal {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "X", "")
	s = strings.TrimSpace(s)
	if s == "" || s == "--" {
		return decimal.NullDecimal{}
	}
	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(value)
}
