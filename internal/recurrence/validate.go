package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid recurrence config")

// FieldError names the offending field of an invalid config.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidConfig }

func invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the config before any occurrences are generated.
// DayOfMonth and MonthOfYear may be zero, meaning "same as the series start".
func (c Config) Validate() error {
	switch c.Frequency {
	case FrequencyNone:
		return nil
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		return invalid("frequency", "unknown frequency %q", c.Frequency)
	}

	if c.Interval < 1 {
		return invalid("interval", "must be at least 1, got %d", c.Interval)
	}

	switch c.Frequency {
	case FrequencyWeekly:
		if len(c.DaysOfWeek) == 0 {
			return invalid("days_of_week", "at least one weekday is required")
		}
		for _, d := range c.DaysOfWeek {
			if !validWeekday(d) {
				return invalid("days_of_week", "weekday %d out of range 0-6", d)
			}
		}
	case FrequencyMonthly:
		switch c.EffectiveMonthlyType() {
		case MonthlyByDayOfMonth:
			if err := validateDayOfMonth(c.DayOfMonth); err != nil {
				return err
			}
		case MonthlyByWeekday:
			if c.WeekOfMonth != LastWeek && (c.WeekOfMonth < 1 || c.WeekOfMonth > 5) {
				return invalid("week_of_month", "must be 1-5 or -1 for last, got %d", c.WeekOfMonth)
			}
			if !validWeekday(c.DayOfWeekForMonth) {
				return invalid("day_of_week_for_month", "weekday %d out of range 0-6", c.DayOfWeekForMonth)
			}
		default:
			return invalid("monthly_type", "unknown monthly type %q", c.MonthlyType)
		}
	case FrequencyYearly:
		if c.MonthOfYear < 0 || c.MonthOfYear > 12 {
			return invalid("month_of_year", "must be 1-12, got %d", c.MonthOfYear)
		}
		if err := validateDayOfMonth(c.DayOfMonth); err != nil {
			return err
		}
	}

	switch c.EffectiveEndType() {
	case EndNever:
	case EndOn:
		if c.EndDate.IsZero() {
			return invalid("end_date", "required when end_type is %q", EndOn)
		}
	case EndAfter:
		if c.Occurrences < 1 {
			return invalid("occurrences", "must be at least 1 when end_type is %q", EndAfter)
		}
	default:
		return invalid("end_type", "unknown end type %q", c.EndType)
	}

	return nil
}

func validateDayOfMonth(day int) error {
	if day < 0 || day > 31 {
		return invalid("day_of_month", "must be 1-31, got %d", day)
	}
	return nil
}

func validWeekday(d time.Weekday) bool {
	return d >= time.Sunday && d <= time.Saturday
}
