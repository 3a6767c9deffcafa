package core

import "time"

// Period is a symbolic date range understood by the assistant tools.
type Period string

const (
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	PeriodWeek      Period = "week"
	PeriodMonth     Period = "month"
	PeriodYear      Period = "year"
)

// Resolve maps a period to a concrete inclusive [from, to] date range in
// YYYY-MM-DD form, relative to the given reference date.
//
// "week" is a rolling 7-day window, not a calendar week. Unrecognized
// periods fall back to today's range; this is documented behavior, not an
// error condition.
func (p Period) Resolve(now time.Time) (from, to string) {
	today := now.Format(DateLayout)
	switch p {
	case PeriodToday:
		return today, today
	case PeriodYesterday:
		d := now.AddDate(0, 0, -1).Format(DateLayout)
		return d, d
	case PeriodWeek:
		return now.AddDate(0, 0, -7).Format(DateLayout), today
	case PeriodMonth:
		return MonthStart(now), today
	case PeriodYear:
		first := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		return first.Format(DateLayout), today
	default:
		return today, today
	}
}

// MonthStart returns the first day of now's month in YYYY-MM-DD form.
func MonthStart(now time.Time) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.Format(DateLayout)
}
