package occurrence

import (
	"iter"
	"slices"
	"time"

	"orgcal/internal/recurrence"
)

// maxIdlePeriods stops a monthly weekday sequence after this many consecutive months
// without a matching day.
const maxIdlePeriods = 120

// candidateDays yields the limit calendar days that follow after, in order.
func candidateDays(after time.Time, limit int) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for i := 1; i <= limit; i++ {
			if !yield(after.AddDate(0, 0, i)) {
				return
			}
		}
	}
}

// nextWeeklyDate finds the first day after cursor whose weekday is selected and whose
// week, counted in whole weeks from anchor, is an active one. The scan never looks
// further than 7*interval days, which always covers the next active week.
func nextWeeklyDate(anchor, cursor time.Time, interval int, days []time.Weekday) (time.Time, bool) {
	for day := range candidateDays(cursor, 7*interval) {
		if !slices.Contains(days, day.Weekday()) {
			continue
		}
		if (daysBetween(anchor, day)/7)%interval == 0 {
			return day, true
		}
	}
	return time.Time{}, false
}

// dates returns the civil dates of all instances after from (itself a civil date),
// in ascending order. Sequences are unbounded; the caller applies end conditions.
func dates(from time.Time, cfg recurrence.Config) iter.Seq[time.Time] {
	interval := cfg.EffectiveInterval()

	switch cfg.Frequency {
	case recurrence.FrequencyDaily:
		return daily(from, interval)
	case recurrence.FrequencyWeekly:
		return weekly(from, interval, cfg.DaysOfWeek)
	case recurrence.FrequencyMonthly:
		return monthly(from, interval, cfg)
	case recurrence.FrequencyYearly:
		return yearly(from, interval, cfg)
	}
	return func(func(time.Time) bool) {}
}

func daily(from time.Time, interval int) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for k := 1; ; k++ {
			if !yield(from.AddDate(0, 0, k*interval)) {
				return
			}
		}
	}
}

func weekly(from time.Time, interval int, days []time.Weekday) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		cursor := from
		for {
			next, ok := nextWeeklyDate(from, cursor, interval, days)
			if !ok || !yield(next) {
				return
			}
			cursor = next
		}
	}
}

func monthly(from time.Time, interval int, cfg recurrence.Config) iter.Seq[time.Time] {
	byWeekday := cfg.EffectiveMonthlyType() == recurrence.MonthlyByWeekday
	day := cfg.DayOfMonth
	if day < 1 {
		day = from.Day()
	}

	return func(yield func(time.Time) bool) {
		idle := 0
		for k := 1; idle < maxIdlePeriods; k++ {
			y, m := addMonths(from.Year(), from.Month(), k*interval)

			d := clampDay(y, m, day)
			if byWeekday {
				var ok bool
				if d, ok = nthWeekday(y, m, cfg.DayOfWeekForMonth, cfg.WeekOfMonth); !ok {
					idle++
					continue
				}
			}

			idle = 0
			if !yield(civilDate(y, m, d)) {
				return
			}
		}
	}
}

func yearly(from time.Time, interval int, cfg recurrence.Config) iter.Seq[time.Time] {
	month := time.Month(cfg.MonthOfYear)
	if month < time.January || month > time.December {
		month = from.Month()
	}
	day := cfg.DayOfMonth
	if day < 1 {
		day = from.Day()
	}

	return func(yield func(time.Time) bool) {
		for k := 1; ; k++ {
			y := from.Year() + k*interval
			if !yield(civilDate(y, month, clampDay(y, month, day))) {
				return
			}
		}
	}
}
