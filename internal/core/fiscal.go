package core

import "time"

// FiscalCalendar derives fiscal year and period labels from a date.
// A fiscal year is named after the calendar year in which it starts.
type FiscalCalendar struct {
	StartMonth int // 1-12
}

// CalendarYear is the fiscal calendar used by Japanese sole proprietors.
var CalendarYear = FiscalCalendar{StartMonth: 1}

func (c FiscalCalendar) start() int {
	if c.StartMonth < 1 || c.StartMonth > 12 {
		return 1
	}
	return c.StartMonth
}

// FiscalYear returns the fiscal year containing d.
func (c FiscalCalendar) FiscalYear(d Date) int {
	if d.Month() >= time.Month(c.start()) {
		return d.Year()
	}
	return d.Year() - 1
}

// FiscalPeriod returns the 1-based month index of d within its fiscal year.
func (c FiscalCalendar) FiscalPeriod(d Date) int {
	return (int(d.Month())-c.start()+12)%12 + 1
}

// Range returns the half-open interval [from, to) covered by fiscal year fy.
func (c FiscalCalendar) Range(fy int) (from, to Date) {
	from = NewDate(fy, c.start(), 1)
	to = Date{Time: from.AddDate(1, 0, 0)}
	return from, to
}

// Stamp fills FiscalYear and FiscalPeriod from the transaction date.
func (c FiscalCalendar) Stamp(t *Transaction) {
	t.FiscalYear = c.FiscalYear(t.Date)
	t.FiscalPeriod = c.FiscalPeriod(t.Date)
}
