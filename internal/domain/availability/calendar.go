package availability

import (
	"time"
)

// weeklyWindows yields the concrete occurrences of a weekly window that can
// touch [start, end) in loc.
func weeklyWindows(day time.Weekday, from, to Clock, start, end time.Time, loc *time.Location) [][2]time.Time {
	var out [][2]time.Time
	ls, le := start.In(loc), end.In(loc)
	// start one day early so a window is never missed at a calendar edge
	d := time.Date(ls.Year(), ls.Month(), ls.Day()-1, 0, 0, 0, 0, loc)
	for !d.After(le) {
		if d.Weekday() == day {
			out = append(out, [2]time.Time{from.On(d), to.On(d)})
		}
		d = time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc)
	}
	return out
}

// BreakHit returns the break that [start, end) intersects, if any.
func BreakHit(breaks []Break, start, end time.Time, loc *time.Location) (Break, bool) {
	for _, b := range breaks {
		for _, w := range weeklyWindows(b.DayOfWeek, b.StartTime, b.EndTime, start, end, loc) {
			if w[0].Before(end) && start.Before(w[1]) {
				return b, true
			}
		}
	}
	return Break{}, false
}

// HoursCover reports whether a single active working-hours window contains
// [start, end).
func HoursCover(hours []WorkingHours, start, end time.Time, loc *time.Location) bool {
	for _, h := range hours {
		if !h.Active {
			continue
		}
		for _, w := range weeklyWindows(h.DayOfWeek, h.StartTime, h.EndTime, start, end, loc) {
			if !w[0].After(start) && !w[1].Before(end) {
				return true
			}
		}
	}
	return false
}
