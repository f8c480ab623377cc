package crawler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"golang.org/x/time/rate"

	"stock_searcher_backend/models"
	"stock_searcher_backend/services/dateutil"
	"stock_searcher_backend/services/telemetry"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	SaveAll(records []models.StockData) error
	SaveCompanies(companies []models.CompanyStatus) error
	Companies(venue models.Venue) ([]models.CompanyStatus, error)
	CompaniesRefreshedOn(day time.Time) (bool, error)
	LatestRecord(code string) (models.StockData, bool, error)
	EarliestDate(code string) (time.Time, bool, error)
	LatestOTCRecord() (models.StockData, bool, error)
	OTCDayStatus(day time.Time) (bool, time.Time, error)
}

// FetchClient performs one upstream call per job.
type FetchClient interface {
	FetchListedMonth(ctx context.Context, code string, ym dateutil.YearMonth) ([]models.StockData, error)
	FetchOTCDay(ctx context.Context, day time.Time) ([]models.StockData, error)
	FetchCompanies(ctx context.Context) ([]models.CompanyStatus, error)
}

// Config carries the scheduler tuning knobs.
type Config struct {
	CrawlBegin         time.Time
	CutoffHour         int
	ListedDelay        time.Duration
	OTCDelay           time.Duration
	ConsumerTick       time.Duration
	EmptyRunLimit      int
	EmptyResultRetries int
	MaxJobRetries      int
	Cooldown           time.Duration
}

// venueState is the per-venue crawl state. Exactly one consumer goroutine
// drains the queue; the refresh pass only ever swaps the queue contents.
type venueState struct {
	venue      models.Venue
	queue      *JobQueue
	limiter    *rate.Limiter
	emptyRuns  int
	refreshing atomic.Bool
}

// CrawlScheduler owns the two venue queues, the periodic refresh passes and
// the consumer loops.
type CrawlScheduler struct {
	cfg     Config
	store   Store
	fetcher FetchClient
	events  telemetry.Publisher
	cron    *gocron.Scheduler

	listed *venueState
	otc    *venueState

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewCrawlScheduler creates a scheduler; Start launches its loops.
func NewCrawlScheduler(cfg Config, store Store, fetcher FetchClient, events telemetry.Publisher) *CrawlScheduler {
	return &CrawlScheduler{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		events:  events,
		cron:    gocron.NewScheduler(time.Local),
		listed: &venueState{
			venue:   models.VenueListed,
			queue:   NewJobQueue(),
			limiter: rate.NewLimiter(rate.Every(cfg.ListedDelay), 1),
		},
		otc: &venueState{
			venue:   models.VenueOTC,
			queue:   NewJobQueue(),
			limiter: rate.NewLimiter(rate.Every(cfg.OTCDelay), 1),
		},
	}
}

// Start launches the refresh schedule and one consumer per venue. The
// refresh passes also run once immediately.
func (s *CrawlScheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	if _, err := s.cron.Every(1).Day().At("02:00").Do(s.RefreshListed); err != nil {
		return fmt.Errorf("register listed refresh: %w", err)
	}
	if _, err := s.cron.Every(1).Day().At("02:00").Do(s.RefreshOTC); err != nil {
		return fmt.Errorf("register otc refresh: %w", err)
	}
	s.cron.StartAsync()

	go s.RefreshListed()
	go s.RefreshOTC()
	go s.consumerLoop(s.listed)
	go s.consumerLoop(s.otc)

	log.Println("Crawl scheduler started")
	return nil
}

// Stop halts the refresh schedule and both consumers.
func (s *CrawlScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cron.Stop()
	close(s.stopChan)
	s.running = false
	log.Println("Crawl scheduler stopped")
}

// QueueStatus reports the queued job count per venue.
func (s *CrawlScheduler) QueueStatus() map[string]int {
	return map[string]int{
		string(models.VenueListed): s.listed.queue.Len(),
		string(models.VenueOTC):    s.otc.queue.Len(),
	}
}

// RefreshListed recomputes the listed venue's job list: for every listed
// symbol, months from its latest persisted date to now, plus backfill
// months when history starts after the configured begin date. Never
// overlaps with its own previous run.
func (s *CrawlScheduler) RefreshListed() {
	if !s.listed.refreshing.CompareAndSwap(false, true) {
		return
	}
	defer s.listed.refreshing.Store(false)

	ctx := context.Background()
	now := time.Now()
	if err := s.ensureCompanies(ctx, now); err != nil {
		log.Printf("company directory refresh failed: %v", err)
	}

	companies, err := s.store.Companies(models.VenueListed)
	if err != nil {
		log.Printf("listed refresh aborted: %v", err)
		return
	}

	var jobs []models.FetchJob
	for _, company := range companies {
		latest, found, err := s.store.LatestRecord(company.Code)
		if err != nil {
			log.Printf("latest record for %s: %v", company.Code, err)
			continue
		}

		if !found {
			jobs = appendMonthJobs(jobs, company.Code, s.cfg.CrawlBegin, now)
			continue
		}

		if worthCrawling(latest.Date, latest.UpdateDate, now, s.cfg.CutoffHour) {
			jobs = appendMonthJobs(jobs, company.Code, latest.Date, now)
		}

		earliest, found, err := s.store.EarliestDate(company.Code)
		if err != nil {
			log.Printf("earliest date for %s: %v", company.Code, err)
			continue
		}
		if found && earliest.After(s.cfg.CrawlBegin) {
			jobs = appendMonthJobs(jobs, company.Code, s.cfg.CrawlBegin, earliest)
		}
	}

	s.listed.queue.Replace(jobs)
	log.Printf("listed refresh queued %d jobs at %s", s.listed.queue.Len(), dateutil.SystemDateTime())
}

// RefreshOTC recomputes the OTC venue's job list: every day from one day
// before the latest persisted OTC date through yesterday, skipping days
// already refreshed today before the cutoff hour.
func (s *CrawlScheduler) RefreshOTC() {
	if !s.otc.refreshing.CompareAndSwap(false, true) {
		return
	}
	defer s.otc.refreshing.Store(false)

	now := time.Now()
	begin := s.cfg.CrawlBegin
	if latest, found, err := s.store.LatestOTCRecord(); err != nil {
		log.Printf("otc refresh aborted: %v", err)
		return
	} else if found {
		begin = latest.Date.AddDate(0, 0, -1)
	}

	yesterday := dateutil.DayOf(now).AddDate(0, 0, -1)
	var jobs []models.FetchJob
	for _, day := range dateutil.DaysBetween(begin, yesterday) {
		exists, updated, err := s.store.OTCDayStatus(day)
		if err != nil {
			log.Printf("otc day status %s: %v", day.Format(dateutil.ISODate), err)
			continue
		}
		if exists && dateutil.SameDay(updated, now) && now.Hour() < s.cfg.CutoffHour {
			continue
		}
		jobs = append(jobs, models.FetchJob{
			Venue:     models.VenueOTC,
			PeriodKey: day.Format(dateutil.ISODate),
		})
	}

	s.otc.queue.Replace(jobs)
	log.Printf("otc refresh queued %d jobs at %s", s.otc.queue.Len(), dateutil.SystemDateTime())
}

// ensureCompanies refreshes the company directory once per day.
func (s *CrawlScheduler) ensureCompanies(ctx context.Context, now time.Time) error {
	refreshed, err := s.store.CompaniesRefreshedOn(dateutil.DayOf(now))
	if err != nil {
		return err
	}
	if refreshed {
		return nil
	}

	log.Println("need update companies list")
	companies, err := s.fetcher.FetchCompanies(ctx)
	if err != nil {
		return err
	}
	return s.store.SaveCompanies(companies)
}

// worthCrawling decides whether a listed symbol still needs a crawl today.
// A symbol whose latest record is today needs nothing; one refreshed today
// before the cutoff hour is waiting for market close; one refreshed
// yesterday only matters when its last date lags its month end.
func worthCrawling(latestDate, updateDate, now time.Time, cutoffHour int) bool {
	if dateutil.SameDay(latestDate, now) {
		return false
	}
	if dateutil.SameDay(updateDate, now) && now.Hour() < cutoffHour {
		return false
	}
	if dateutil.SameDay(updateDate, now.AddDate(0, 0, -1)) {
		monthEnd := dateutil.YearMonthOf(latestDate).LastDay()
		return latestDate.Before(monthEnd)
	}
	return true
}

func appendMonthJobs(jobs []models.FetchJob, code string, begin, end time.Time) []models.FetchJob {
	for _, ym := range dateutil.MonthsBetween(begin, end) {
		jobs = append(jobs, models.FetchJob{
			Code:      code,
			Venue:     models.VenueListed,
			PeriodKey: ym.String(),
		})
	}
	return jobs
}

// consumerLoop is the single consumer for one venue. Upstream is never hit
// in parallel for the same venue; the loop ticks, drains one job per
// successful tick and backs off into a cooldown after a run of empty ticks.
func (s *CrawlScheduler) consumerLoop(vs *venueState) {
	ticker := time.NewTicker(s.cfg.ConsumerTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if s.consumeTick(vs) {
				s.events.Publish(telemetry.Event{
					Venue:   string(vs.venue),
					Kind:    telemetry.KindCooldown,
					Message: fmt.Sprintf("queue idle for %d ticks, cooling down", vs.emptyRuns),
				})
				select {
				case <-s.stopChan:
					return
				case <-time.After(s.cfg.Cooldown):
				}
				vs.emptyRuns = 0
			}
		}
	}
}

// consumeTick processes at most one successful job. Returns true when the
// empty-run counter crossed the cooldown threshold.
func (s *CrawlScheduler) consumeTick(vs *venueState) (cooldown bool) {
	if vs.queue.Len() == 0 {
		vs.emptyRuns++
		return vs.emptyRuns > s.cfg.EmptyRunLimit
	}
	vs.emptyRuns = 0

	ctx := context.Background()
	for attempts := 0; attempts <= s.cfg.EmptyResultRetries; attempts++ {
		job, ok := vs.queue.Pop()
		if !ok {
			s.events.Publish(telemetry.Event{
				Venue: string(vs.venue),
				Kind:  telemetry.KindDrained,
			})
			return false
		}

		if err := vs.limiter.Wait(ctx); err != nil {
			vs.queue.Requeue(job)
			return false
		}

		s.events.Publish(telemetry.Event{
			Venue:  string(vs.venue),
			Kind:   telemetry.KindDispatched,
			Code:   job.Code,
			Period: job.PeriodKey,
		})

		rows, err := s.fetch(ctx, job)
		if err != nil {
			s.retryOrDrop(vs, job, err)
			return false
		}

		if len(rows) == 0 {
			// No data exists for this period, expected for pre-listing
			// dates. Terminal for this job: try the next one.
			s.events.Publish(telemetry.Event{
				Venue:  string(vs.venue),
				Kind:   telemetry.KindNoData,
				Code:   job.Code,
				Period: job.PeriodKey,
			})
			continue
		}

		if err := s.store.SaveAll(rows); err != nil {
			// Persistence failures retry like transport failures.
			s.retryOrDrop(vs, job, err)
			return false
		}

		s.events.Publish(telemetry.Event{
			Venue:  string(vs.venue),
			Kind:   telemetry.KindSucceeded,
			Code:   job.Code,
			Period: job.PeriodKey,
			Count:  len(rows),
		})
		return false
	}
	return false
}

// retryOrDrop requeues a failed job unchanged for the next tick, or drops
// it with an event once its retry budget is spent.
func (s *CrawlScheduler) retryOrDrop(vs *venueState, job models.FetchJob, cause error) {
	job.Attempts++
	if job.Attempts > s.cfg.MaxJobRetries {
		s.events.Publish(telemetry.Event{
			Venue:   string(vs.venue),
			Kind:    telemetry.KindDropped,
			Code:    job.Code,
			Period:  job.PeriodKey,
			Message: fmt.Sprintf("retry budget exhausted: %v", cause),
		})
		return
	}

	vs.queue.Requeue(job)
	s.events.Publish(telemetry.Event{
		Venue:   string(vs.venue),
		Kind:    telemetry.KindFailed,
		Code:    job.Code,
		Period:  job.PeriodKey,
		Message: cause.Error(),
	})
}

func (s *CrawlScheduler) fetch(ctx context.Context, job models.FetchJob) ([]models.StockData, error) {
	switch job.Venue {
	case models.VenueListed:
		ym, err := dateutil.ParseYearMonth(job.PeriodKey)
		if err != nil {
			return nil, err
		}
		return s.fetcher.FetchListedMonth(ctx, job.Code, ym)
	case models.VenueOTC:
		day, err := dateutil.ParseISO(job.PeriodKey)
		if err != nil {
			return nil, err
		}
		return s.fetcher.FetchOTCDay(ctx, day)
	default:
		return nil, fmt.Errorf("unknown venue %q", job.Venue)
	}
}
