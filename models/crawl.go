package models

import "fmt"

// Venue identifies which upstream market a fetch job targets.
type Venue string

const (
	VenueListed Venue = "listed"
	VenueOTC    Venue = "otc"
)

// FetchJob describes one upstream call: a (symbol, month) pair for the
// listed venue, or a single calendar day for the OTC venue (the OTC
// endpoint returns all symbols for one day, so Code stays empty there).
type FetchJob struct {
	Code      string `json:"code"`
	Venue     Venue  `json:"venue"`
	PeriodKey string `json:"periodKey"`
	Attempts  int    `json:"attempts"`
}

// Key identifies the job for queue deduplication. Attempts is excluded so a
// requeued job never coexists with a fresh copy of itself.
func (j FetchJob) Key() string {
	return fmt.Sprintf("%s|%s|%s", j.Venue, j.Code, j.PeriodKey)
}
