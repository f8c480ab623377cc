// Package dateutil provides the calendar helpers shared by the crawler and
// the query endpoints: year-month enumeration, month-day enumeration and the
// date formats used by the upstream endpoints.
package dateutil

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ISODate is the storage and API date layout.
	ISODate = "2006-01-02"
	// CompactDate is the layout the listed upstream endpoint expects.
	CompactDate = "20060102"
	// SlashDate is the layout upstream responses carry.
	SlashDate = "2006/01/02"
)

// YearMonth is a calendar month without a day component.
type YearMonth struct {
	Year  int
	Month time.Month
}

// YearMonthOf returns the YearMonth containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses "2006-01" into a YearMonth.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("parse year-month %q: %w", s, err)
	}
	return YearMonthOf(t), nil
}

// String formats the month as "2006-01".
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// FirstDay returns the first calendar day of the month in UTC.
func (ym YearMonth) FirstDay() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns the last calendar day of the month in UTC.
func (ym YearMonth) LastDay() time.Time {
	return ym.FirstDay().AddDate(0, 1, -1)
}

// Next returns the following month.
func (ym YearMonth) Next() YearMonth {
	return YearMonthOf(ym.FirstDay().AddDate(0, 1, 0))
}

// After reports whether ym is strictly after other.
func (ym YearMonth) After(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year > other.Year
	}
	return ym.Month > other.Month
}

// MonthsBetween enumerates every month from beginDate's month through
// endDate's month inclusive. Returns nil when begin is after end.
func MonthsBetween(beginDate, endDate time.Time) []YearMonth {
	var months []YearMonth
	current := YearMonthOf(beginDate)
	last := YearMonthOf(endDate)
	for !current.After(last) {
		months = append(months, current)
		current = current.Next()
	}
	return months
}

// DaysBetween enumerates every calendar day from begin through end inclusive.
func DaysBetween(begin, end time.Time) []time.Time {
	var days []time.Time
	for d := DayOf(begin); !d.After(DayOf(end)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DayOf truncates t to midnight UTC.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// IsCurrentMonth reports whether t falls in the running month.
func IsCurrentMonth(t time.Time) bool {
	now := time.Now()
	return t.Year() == now.Year() && t.Month() == now.Month()
}

// ParseISO parses a "2006-01-02" date string.
func ParseISO(s string) (time.Time, error) {
	t, err := time.Parse(ISODate, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// ParseSlash parses a "2006/01/02" date string as upstream responses use.
func ParseSlash(s string) (time.Time, error) {
	return ParseISO(strings.ReplaceAll(s, "/", "-"))
}

// SystemDateTime formats the current time for log lines.
func SystemDateTime() string {
	return time.Now().Format("2006-01-02 15:04:05")
}
