package occurrence

import "time"

// civil returns the wall-clock date of t as midnight UTC, so date arithmetic is free of
// daylight-saving shifts.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func civilDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b. Both must be civil dates.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// daysIn returns the number of days in the month.
func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// clampDay limits day to the last valid day of the month.
func clampDay(y int, m time.Month, day int) int {
	if last := daysIn(y, m); day > last {
		return last
	}
	return day
}

// addMonths moves a year/month pair by n months.
func addMonths(y int, m time.Month, n int) (int, time.Month) {
	total := y*12 + int(m-1) + n
	return total / 12, time.Month(total%12 + 1)
}

// nthWeekday returns the day of month of the nth weekday wd, counting from the first day
// of the month, or from the last day when n is -1. It returns false when the month has
// no such day (a fifth Monday in a four-Monday month).
func nthWeekday(y int, m time.Month, wd time.Weekday, n int) (int, bool) {
	last := daysIn(y, m)
	if n < 0 {
		lastWd := civilDate(y, m, last).Weekday()
		return last - (int(lastWd)-int(wd)+7)%7, true
	}

	first := civilDate(y, m, 1).Weekday()
	day := 1 + (int(wd)-int(first)+7)%7 + (n-1)*7
	if day > last {
		return 0, false
	}
	return day, true
}
