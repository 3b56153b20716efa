package recurrence

import (
	"strconv"
	"strings"
	"time"
)

// UntilLayout is the compact timestamp layout used by the UNTIL token.
const UntilLayout = "20060102T150405Z"

var weekdayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

var frequencyTokens = map[Frequency]string{
	FrequencyDaily:   "DAILY",
	FrequencyWeekly:  "WEEKLY",
	FrequencyMonthly: "MONTHLY",
	FrequencyYearly:  "YEARLY",
}

// Encode renders cfg as a rule string. It returns false for non-repeating configs.
//
// Tokens are emitted in a fixed order: FREQ, INTERVAL (only when above one), BYDAY,
// BYMONTHDAY, BYMONTH, then UNTIL or COUNT. A monthly weekday pattern is written as an
// ordinal BYDAY value ("BYDAY=-1FR") instead of BYMONTHDAY. Zero DayOfMonth and
// MonthOfYear fall back to the start date.
func Encode(cfg Config, start time.Time) (string, bool) {
	freq, ok := frequencyTokens[cfg.Frequency]
	if !ok {
		return "", false
	}

	parts := []string{"FREQ=" + freq}
	if cfg.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(cfg.Interval))
	}

	switch cfg.Frequency {
	case FrequencyWeekly:
		if days := encodeWeekdays(cfg.DaysOfWeek); days != "" {
			parts = append(parts, "BYDAY="+days)
		}
	case FrequencyMonthly:
		if cfg.EffectiveMonthlyType() == MonthlyByWeekday {
			if cfg.WeekOfMonth != 0 && validWeekday(cfg.DayOfWeekForMonth) {
				parts = append(parts, "BYDAY="+strconv.Itoa(cfg.WeekOfMonth)+weekdayCodes[cfg.DayOfWeekForMonth])
			}
		} else {
			parts = append(parts, "BYMONTHDAY="+strconv.Itoa(dayOrStart(cfg.DayOfMonth, start)))
		}
	case FrequencyYearly:
		parts = append(parts,
			"BYMONTHDAY="+strconv.Itoa(dayOrStart(cfg.DayOfMonth, start)),
			"BYMONTH="+strconv.Itoa(monthOrStart(cfg.MonthOfYear, start)),
		)
	}

	switch cfg.EffectiveEndType() {
	case EndOn:
		if !cfg.EndDate.IsZero() {
			parts = append(parts, "UNTIL="+formatUntil(cfg.EndDate))
		}
	case EndAfter:
		if cfg.Occurrences > 0 {
			parts = append(parts, "COUNT="+strconv.Itoa(cfg.Occurrences))
		}
	}

	return strings.Join(parts, ";"), true
}

// Decode parses a rule string. It never fails: unknown keys are ignored, malformed BYDAY
// codes are dropped and an empty rule yields None. An unknown FREQ leaves Frequency empty.
func Decode(rule string) Config {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(rule, "RRULE:")
	if rule == "" {
		return None()
	}

	cfg := Config{Interval: 1, EndType: EndNever}
	var byDay []string

	for _, token := range strings.Split(rule, ";") {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "FREQ":
			cfg.Frequency = parseFrequency(value)
		case "INTERVAL":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				cfg.Interval = n
			}
		case "BYDAY":
			byDay = strings.Split(value, ",")
		case "BYMONTHDAY":
			if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= 31 {
				cfg.DayOfMonth = n
			}
		case "BYMONTH":
			if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= 12 {
				cfg.MonthOfYear = n
			}
		case "UNTIL":
			if t, ok := parseUntil(value); ok {
				cfg.EndType = EndOn
				cfg.EndDate = t
				cfg.Occurrences = 0
			}
		case "COUNT":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				cfg.EndType = EndAfter
				cfg.Occurrences = n
				cfg.EndDate = time.Time{}
			}
		}
	}

	applyByDay(&cfg, byDay)

	if cfg.Frequency == FrequencyMonthly && cfg.MonthlyType == "" {
		cfg.MonthlyType = MonthlyByDayOfMonth
	}

	return cfg
}

func applyByDay(cfg *Config, codes []string) {
	for _, raw := range codes {
		ordinal, day, ok := parseWeekdayCode(raw)
		if !ok {
			continue
		}

		switch cfg.Frequency {
		case FrequencyWeekly:
			if ordinal == 0 && !cfg.HasWeekday(day) {
				cfg.DaysOfWeek = append(cfg.DaysOfWeek, day)
			}
		case FrequencyMonthly:
			if ordinal != 0 && cfg.MonthlyType != MonthlyByWeekday {
				cfg.MonthlyType = MonthlyByWeekday
				cfg.WeekOfMonth = ordinal
				cfg.DayOfWeekForMonth = day
			}
		}
	}
	cfg.DaysOfWeek = sortedWeekdays(cfg.DaysOfWeek)
}

// parseWeekdayCode accepts "MO" or an ordinal form such as "2TU" / "-1FR".
func parseWeekdayCode(raw string) (int, time.Weekday, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if len(raw) < 2 {
		return 0, 0, false
	}

	code := raw[len(raw)-2:]
	day := -1
	for i, c := range weekdayCodes {
		if c == code {
			day = i
			break
		}
	}
	if day < 0 {
		return 0, 0, false
	}

	prefix := raw[:len(raw)-2]
	if prefix == "" {
		return 0, time.Weekday(day), true
	}

	ordinal, err := strconv.Atoi(prefix)
	if err != nil || ordinal == 0 || ordinal > 5 || ordinal < LastWeek {
		return 0, 0, false
	}
	return ordinal, time.Weekday(day), true
}

func parseFrequency(value string) Frequency {
	value = strings.ToUpper(value)
	for freq, token := range frequencyTokens {
		if token == value {
			return freq
		}
	}
	return ""
}

func encodeWeekdays(days []time.Weekday) string {
	var seen [7]bool
	for _, d := range days {
		if validWeekday(d) {
			seen[d] = true
		}
	}

	codes := make([]string, 0, len(days))
	for i, ok := range seen {
		if ok {
			codes = append(codes, weekdayCodes[i])
		}
	}
	return strings.Join(codes, ",")
}

// formatUntil normalises the end date to the last second of its calendar day. The wall
// clock date is kept as is, so the value does not shift with the caller's time zone.
func formatUntil(t time.Time) string {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC).Format(UntilLayout)
}

func parseUntil(value string) (time.Time, bool) {
	for _, layout := range []string{UntilLayout, "20060102T150405", "20060102"} {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 23, 59, 59, 0, time.UTC), true
	}
	return time.Time{}, false
}

func dayOrStart(day int, start time.Time) int {
	if day >= 1 && day <= 31 {
		return day
	}
	return start.Day()
}

func monthOrStart(month int, start time.Time) int {
	if month >= 1 && month <= 12 {
		return month
	}
	return int(start.Month())
}
