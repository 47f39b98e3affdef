package recurrence

import (
	"fmt"
	"time"
)

// maxPeriods stops rules whose periods never produce a day, such as
// BYMONTHDAY=31 with an interval that only lands on short months.
const maxPeriods = 5000

// Series expands r from start into calendar days at UTC midnight. The first
// day is start itself unless BYDAY excludes it. The rule must be bounded and
// may produce at most limit days.
func Series(r Rule, start time.Time, limit int) ([]time.Time, error) {
	if !r.Bounded() {
		return nil, fmt.Errorf("rule needs COUNT or UNTIL")
	}
	start = day(start)
	var until time.Time
	if r.Until != nil {
		until = day(*r.Until)
		if until.Before(start) {
			return nil, fmt.Errorf("UNTIL is before the first day")
		}
	}

	var out []time.Time
	for p := 0; p < maxPeriods; p++ {
		for _, d := range r.period(start, p) {
			if d.Before(start) {
				continue
			}
			if r.Until != nil && d.After(until) {
				return out, nil
			}
			if len(out) == limit {
				return nil, fmt.Errorf("rule produces more than %d dates", limit)
			}
			out = append(out, d)
			if r.Count > 0 && len(out) == r.Count {
				return out, nil
			}
		}
	}
	return out, nil
}

// period returns the candidate days of the p-th period, in order.
func (r Rule) period(start time.Time, p int) []time.Time {
	n := p * r.Interval
	switch r.Freq {
	case Daily:
		return []time.Time{start.AddDate(0, 0, n)}

	case Weekly:
		if len(r.ByDay) == 0 {
			return []time.Time{start.AddDate(0, 0, 7*n)}
		}
		monday := start.AddDate(0, 0, -mondayOffset(start.Weekday())+7*n)
		days := make([]time.Time, 0, len(r.ByDay))
		for _, wd := range r.ByDay {
			days = append(days, monday.AddDate(0, 0, mondayOffset(wd)))
		}
		return days

	case Monthly:
		dom := r.ByMonthDay
		if dom == 0 {
			dom = start.Day()
		}
		first := time.Date(start.Year(), start.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
		if dom > daysInMonth(first.Year(), first.Month()) {
			return nil
		}
		return []time.Time{first.AddDate(0, 0, dom-1)}

	case Yearly:
		year := start.Year() + n
		if dom := start.Day(); dom > daysInMonth(year, start.Month()) {
			return nil
		}
		return []time.Time{time.Date(year, start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)}
	}
	return nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mondayOffset(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
