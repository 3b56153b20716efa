package recurrence

import (
	"fmt"
	"strings"
	"time"
)

var ordinalNames = map[int]string{
	1:        "first",
	2:        "second",
	3:        "third",
	4:        "fourth",
	5:        "fifth",
	LastWeek: "last",
}

// Describe renders a short English summary, e.g. "Every 2 weeks on Mon, Wed, 10 times".
func Describe(cfg Config) string {
	interval := cfg.EffectiveInterval()

	var b strings.Builder
	switch cfg.Frequency {
	case FrequencyDaily:
		b.WriteString(every(interval, "Daily", "day"))
	case FrequencyWeekly:
		b.WriteString(every(interval, "Weekly", "week"))
		if len(cfg.DaysOfWeek) > 0 {
			names := make([]string, 0, len(cfg.DaysOfWeek))
			for _, d := range sortedWeekdays(cfg.DaysOfWeek) {
				if validWeekday(d) {
					names = append(names, d.String()[:3])
				}
			}
			b.WriteString(" on " + strings.Join(names, ", "))
		}
	case FrequencyMonthly:
		b.WriteString(every(interval, "Monthly", "month"))
		if cfg.EffectiveMonthlyType() == MonthlyByWeekday {
			if name, ok := ordinalNames[cfg.WeekOfMonth]; ok && validWeekday(cfg.DayOfWeekForMonth) {
				fmt.Fprintf(&b, " on the %s %s", name, cfg.DayOfWeekForMonth)
			}
		} else if cfg.DayOfMonth > 0 {
			fmt.Fprintf(&b, " on day %d", cfg.DayOfMonth)
		}
	case FrequencyYearly:
		b.WriteString(every(interval, "Annually", "year"))
		switch {
		case cfg.MonthOfYear >= 1 && cfg.MonthOfYear <= 12 && cfg.DayOfMonth > 0:
			fmt.Fprintf(&b, " on %s %d", time.Month(cfg.MonthOfYear), cfg.DayOfMonth)
		case cfg.MonthOfYear >= 1 && cfg.MonthOfYear <= 12:
			fmt.Fprintf(&b, " in %s", time.Month(cfg.MonthOfYear))
		}
	default:
		return "Does not repeat"
	}

	switch cfg.EffectiveEndType() {
	case EndOn:
		if !cfg.EndDate.IsZero() {
			b.WriteString(", until " + cfg.EndDate.Format("Jan 2, 2006"))
		}
	case EndAfter:
		switch {
		case cfg.Occurrences == 1:
			b.WriteString(", once")
		case cfg.Occurrences > 1:
			fmt.Fprintf(&b, ", %d times", cfg.Occurrences)
		}
	}

	return b.String()
}

func every(interval int, single, unit string) string {
	if interval <= 1 {
		return single
	}
	return fmt.Sprintf("Every %d %ss", interval, unit)
}
