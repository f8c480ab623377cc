package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_searcher_backend/models"
	"stock_searcher_backend/services/dateutil"
	"stock_searcher_backend/services/telemetry"
)

type fakeStore struct {
	mu        sync.Mutex
	saved     [][]models.StockData
	companies []models.CompanyStatus
	refreshed bool

	latest    map[string]models.StockData
	earliest  map[string]time.Time
	latestOTC *models.StockData

	saveErr error
}

func (f *fakeStore) SaveAll(records []models.StockData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, records)
	return nil
}

func (f *fakeStore) SaveCompanies(companies []models.CompanyStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.companies = companies
	return nil
}

func (f *fakeStore) Companies(venue models.Venue) ([]models.CompanyStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []models.CompanyStatus
	for _, company := range f.companies {
		switch venue {
		case models.VenueListed:
			if company.IsOTC {
				continue
			}
		case models.VenueOTC:
			if !company.IsOTC {
				continue
			}
		}
		matched = append(matched, company)
	}
	return matched, nil
}

func (f *fakeStore) CompaniesRefreshedOn(day time.Time) (bool, error) {
	return f.refreshed, nil
}

func (f *fakeStore) LatestRecord(code string) (models.StockData, bool, error) {
	record, ok := f.latest[code]
	return record, ok, nil
}

func (f *fakeStore) EarliestDate(code string) (time.Time, bool, error) {
	date, ok := f.earliest[code]
	return date, ok, nil
}

func (f *fakeStore) LatestOTCRecord() (models.StockData, bool, error) {
	if f.latestOTC == nil {
		return models.StockData{}, false, nil
	}
	return *f.latestOTC, true, nil
}

func (f *fakeStore) OTCDayStatus(day time.Time) (bool, time.Time, error) {
	return false, time.Time{}, nil
}

func (f *fakeStore) savedBatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeFetcher struct {
	mu       sync.Mutex
	listed   func(code string, ym dateutil.YearMonth) ([]models.StockData, error)
	otc      func(day time.Time) ([]models.StockData, error)
	calls    int
	catalogs []models.CompanyStatus
}

func (f *fakeFetcher) FetchListedMonth(ctx context.Context, code string, ym dateutil.YearMonth) ([]models.StockData, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.listed == nil {
		return nil, nil
	}
	return f.listed(code, ym)
}

func (f *fakeFetcher) FetchOTCDay(ctx context.Context, day time.Time) ([]models.StockData, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.otc == nil {
		return nil, nil
	}
	return f.otc(day)
}

func (f *fakeFetcher) FetchCompanies(ctx context.Context) ([]models.CompanyStatus, error) {
	return f.catalogs, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *eventRecorder) Publish(event telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) kinds() []telemetry.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]telemetry.Kind, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func testConfig() Config {
	return Config{
		CrawlBegin:         time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		CutoffHour:         15,
		ListedDelay:        time.Millisecond,
		OTCDelay:           time.Millisecond,
		ConsumerTick:       time.Millisecond,
		EmptyRunLimit:      2,
		EmptyResultRetries: 11,
		MaxJobRetries:      5,
		Cooldown:           time.Minute,
	}
}

func newTestScheduler(store *fakeStore, fetcher *fakeFetcher, cfg Config) (*CrawlScheduler, *eventRecorder) {
	events := &eventRecorder{}
	return NewCrawlScheduler(cfg, store, fetcher, events), events
}

func sample(code string, d time.Time) models.StockData {
	return models.StockData{Code: code, Date: d, IsOTC: false, UpdateDate: time.Now()}
}

func TestConsumeTickPersistsFetchedRows(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{
		listed: func(code string, ym dateutil.YearMonth) ([]models.StockData, error) {
			return []models.StockData{sample(code, ym.FirstDay())}, nil
		},
	}
	s, events := newTestScheduler(store, fetcher, testConfig())
	s.listed.queue.Replace([]models.FetchJob{
		{Code: "2330", Venue: models.VenueListed, PeriodKey: "2024-01"},
	})

	cooldown := s.consumeTick(s.listed)

	assert.False(t, cooldown)
	assert.Equal(t, 1, store.savedBatches())
	assert.Equal(t, 0, s.listed.queue.Len())
	assert.Equal(t, []telemetry.Kind{telemetry.KindDispatched, telemetry.KindSucceeded}, events.kinds())
}

func TestConsumeTickRetriesTransportFailures(t *testing.T) {
	store := &fakeStore{}
	failures := 2
	fetcher := &fakeFetcher{}
	fetcher.listed = func(code string, ym dateutil.YearMonth) ([]models.StockData, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("connection reset")
		}
		return []models.StockData{sample(code, ym.FirstDay())}, nil
	}
	s, events := newTestScheduler(store, fetcher, testConfig())
	s.listed.queue.Replace([]models.FetchJob{
		{Code: "2330", Venue: models.VenueListed, PeriodKey: "2024-01"},
	})

	// two failing ticks, each requeues the job at the front
	s.consumeTick(s.listed)
	s.consumeTick(s.listed)
	assert.Equal(t, 1, s.listed.queue.Len())
	assert.Equal(t, 0, store.savedBatches())

	s.consumeTick(s.listed)
	assert.Equal(t, 0, s.listed.queue.Len())
	assert.Equal(t, 1, store.savedBatches())

	kinds := events.kinds()
	require.Len(t, kinds, 6)
	assert.Equal(t, telemetry.KindFailed, kinds[1])
	assert.Equal(t, telemetry.KindFailed, kinds[3])
	assert.Equal(t, telemetry.KindSucceeded, kinds[5])
}

func TestConsumeTickDropsJobAfterRetryBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxJobRetries = 1
	store := &fakeStore{}
	fetcher := &fakeFetcher{
		listed: func(code string, ym dateutil.YearMonth) ([]models.StockData, error) {
			return nil, errors.New("connection reset")
		},
	}
	s, events := newTestScheduler(store, fetcher, cfg)
	s.listed.queue.Replace([]models.FetchJob{
		{Code: "2330", Venue: models.VenueListed, PeriodKey: "2024-01"},
	})

	s.consumeTick(s.listed) // attempt 1, requeued
	s.consumeTick(s.listed) // attempt 2, over budget

	assert.Equal(t, 0, s.listed.queue.Len())
	kinds := events.kinds()
	assert.Contains(t, kinds, telemetry.KindDropped)
	assert.Equal(t, 0, store.savedBatches())
}

func TestConsumeTickSkipsEmptyPeriods(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{}
	fetcher.listed = func(code string, ym dateutil.YearMonth) ([]models.StockData, error) {
		if ym.String() == "2024-01" {
			// period before the symbol was listed
			return nil, nil
		}
		return []models.StockData{sample(code, ym.FirstDay())}, nil
	}
	s, events := newTestScheduler(store, fetcher, testConfig())
	s.listed.queue.Replace([]models.FetchJob{
		{Code: "2330", Venue: models.VenueListed, PeriodKey: "2024-01"},
		{Code: "2330", Venue: models.VenueListed, PeriodKey: "2024-02"},
	})

	// one tick advances past the empty period and lands the next job
	s.consumeTick(s.listed)

	assert.Equal(t, 0, s.listed.queue.Len())
	assert.Equal(t, 1, store.savedBatches())
	kinds := events.kinds()
	assert.Contains(t, kinds, telemetry.KindNoData)
	assert.Equal(t, telemetry.KindSucceeded, kinds[len(kinds)-1])
}

func TestConsumeTickRetriesPersistenceFailures(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("db down")}
	fetcher := &fakeFetcher{
		listed: func(code string, ym dateutil.YearMonth) ([]models.StockData, error) {
			return []models.StockData{sample(code, ym.FirstDay())}, nil
		},
	}
	s, events := newTestScheduler(store, fetcher, testConfig())
	s.listed.queue.Replace([]models.FetchJob{
		{Code: "2330", Venue: models.VenueListed, PeriodKey: "2024-01"},
	})

	s.consumeTick(s.listed)

	assert.Equal(t, 1, s.listed.queue.Len())
	assert.Contains(t, events.kinds(), telemetry.KindFailed)
}

func TestConsumeTickEmptyRunCounter(t *testing.T) {
	cfg := testConfig()
	cfg.EmptyRunLimit = 2
	s, _ := newTestScheduler(&fakeStore{}, &fakeFetcher{}, cfg)

	assert.False(t, s.consumeTick(s.listed))
	assert.False(t, s.consumeTick(s.listed))
	assert.True(t, s.consumeTick(s.listed))
}

func TestWorthCrawling(t *testing.T) {
	now := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	day := func(d int) time.Time {
		return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name       string
		latestDate time.Time
		updateDate time.Time
		want       bool
	}{
		{"latest record is today", day(15), day(15), false},
		{"refreshed today before cutoff", day(14), now, false},
		{"refreshed yesterday and month incomplete", day(10), day(14), true},
		{"refreshed yesterday and month complete", time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), day(14), false},
		{"stale since last week", day(8), day(8), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, worthCrawling(tt.latestDate, tt.updateDate, now, 15))
		})
	}
}

func TestWorthCrawlingAfterCutoff(t *testing.T) {
	now := time.Date(2024, time.March, 15, 16, 0, 0, 0, time.UTC)
	latest := time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC)
	// refreshed earlier today but the market has closed since
	assert.True(t, worthCrawling(latest, now.Add(-6*time.Hour), now, 15))
}

func TestRefreshListedQueuesBackfillForNewSymbol(t *testing.T) {
	cfg := testConfig()
	// first day of the month two months back, so exactly three months
	// separate the begin date from now
	cfg.CrawlBegin = dateutil.YearMonthOf(time.Now()).FirstDay().AddDate(0, -2, 0)

	store := &fakeStore{
		refreshed: true,
		companies: []models.CompanyStatus{{Code: "2330", IsOTC: false}},
	}
	s, _ := newTestScheduler(store, &fakeFetcher{}, cfg)

	s.RefreshListed()

	require.Equal(t, 3, s.listed.queue.Len())
	job, ok := s.listed.queue.Pop()
	require.True(t, ok)
	assert.Equal(t, dateutil.YearMonthOf(cfg.CrawlBegin).String(), job.PeriodKey)
	assert.Equal(t, models.VenueListed, job.Venue)
}

func TestRefreshListedSkipsFreshSymbol(t *testing.T) {
	cfg := testConfig()
	now := time.Now()

	store := &fakeStore{
		refreshed: true,
		companies: []models.CompanyStatus{{Code: "2330", IsOTC: false}},
		latest: map[string]models.StockData{
			"2330": {Code: "2330", Date: dateutil.DayOf(now), UpdateDate: now},
		},
		earliest: map[string]time.Time{"2330": cfg.CrawlBegin},
	}
	s, _ := newTestScheduler(store, &fakeFetcher{}, cfg)

	s.RefreshListed()

	assert.Equal(t, 0, s.listed.queue.Len())
}

func TestRefreshListedFetchesCompaniesWhenStale(t *testing.T) {
	cfg := testConfig()
	cfg.CrawlBegin = dateutil.DayOf(time.Now())

	fetcher := &fakeFetcher{
		catalogs: []models.CompanyStatus{{Code: "2330", Name: "台積電"}},
	}
	store := &fakeStore{refreshed: false}
	s, _ := newTestScheduler(store, fetcher, cfg)

	s.RefreshListed()

	companies, err := store.Companies(models.VenueListed)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "2330", companies[0].Code)
}

func TestRefreshOTCQueuesMissingDays(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	latest := sample("3105", dateutil.DayOf(now).AddDate(0, 0, -3))
	latest.IsOTC = true

	store := &fakeStore{latestOTC: &latest}
	s, _ := newTestScheduler(store, &fakeFetcher{}, cfg)

	s.RefreshOTC()

	// latest-1 through yesterday
	require.Equal(t, 4, s.otc.queue.Len())
	job, ok := s.otc.queue.Pop()
	require.True(t, ok)
	assert.Equal(t, models.VenueOTC, job.Venue)
	assert.Equal(t, latest.Date.AddDate(0, 0, -1).Format(dateutil.ISODate), job.PeriodKey)
	assert.Empty(t, job.Code)
}

func TestQueueStatusCoversBothVenues(t *testing.T) {
	s, _ := newTestScheduler(&fakeStore{}, &fakeFetcher{}, testConfig())
	s.listed.queue.Replace([]models.FetchJob{
		{Code: "2330", Venue: models.VenueListed, PeriodKey: "2024-01"},
	})

	status := s.QueueStatus()
	assert.Equal(t, 1, status["listed"])
	assert.Equal(t, 0, status["otc"])
}
