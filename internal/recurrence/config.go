// Package recurrence converts between structured recurrence settings and compact
// RFC 5545 style rule strings ("FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;COUNT=10").
package recurrence

import (
	"slices"
	"time"
)

// Frequency is the repeat unit of a series.
type Frequency string

const (
	FrequencyNone    Frequency = "none"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// MonthlyType selects how a monthly series picks its day.
type MonthlyType string

const (
	MonthlyByDayOfMonth MonthlyType = "day_of_month"
	MonthlyByWeekday    MonthlyType = "weekday"
)

// EndType selects the end condition of a series.
type EndType string

const (
	EndNever EndType = "never"
	EndOn    EndType = "on"
	EndAfter EndType = "after"
)

// LastWeek is the WeekOfMonth value meaning "last such weekday of the month".
const LastWeek = -1

// Config describes how an event repeats. Only fields relevant to Frequency and EndType
// carry meaning; Normalize clears the rest.
type Config struct {
	Frequency         Frequency      `json:"frequency" yaml:"frequency" validate:"omitempty,oneof=none daily weekly monthly yearly"`
	Interval          int            `json:"interval,omitempty" yaml:"interval,omitempty" validate:"gte=0"`
	DaysOfWeek        []time.Weekday `json:"days_of_week,omitempty" yaml:"days_of_week,omitempty" validate:"dive,gte=0,lte=6"`
	DayOfMonth        int            `json:"day_of_month,omitempty" yaml:"day_of_month,omitempty" validate:"gte=0,lte=31"`
	MonthOfYear       int            `json:"month_of_year,omitempty" yaml:"month_of_year,omitempty" validate:"gte=0,lte=12"`
	MonthlyType       MonthlyType    `json:"monthly_type,omitempty" yaml:"monthly_type,omitempty" validate:"omitempty,oneof=day_of_month weekday"`
	WeekOfMonth       int            `json:"week_of_month,omitempty" yaml:"week_of_month,omitempty"`
	DayOfWeekForMonth time.Weekday   `json:"day_of_week_for_month,omitempty" yaml:"day_of_week_for_month,omitempty"`
	EndType           EndType        `json:"end_type,omitempty" yaml:"end_type,omitempty" validate:"omitempty,oneof=never on after"`
	EndDate           time.Time      `json:"end_date,omitzero" yaml:"end_date,omitempty"`
	Occurrences       int            `json:"occurrences,omitempty" yaml:"occurrences,omitempty" validate:"gte=0"`
}

// None returns the canonical non-repeating config.
func None() Config {
	return Config{Frequency: FrequencyNone, Interval: 1, EndType: EndNever}
}

// IsRecurring reports whether the config produces more than one occurrence.
func (c Config) IsRecurring() bool {
	switch c.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// EffectiveInterval returns Interval, treating values below one as one.
func (c Config) EffectiveInterval() int {
	if c.Interval < 1 {
		return 1
	}
	return c.Interval
}

// EffectiveEndType returns EndType, treating an empty value as EndNever.
func (c Config) EffectiveEndType() EndType {
	if c.EndType == "" {
		return EndNever
	}
	return c.EndType
}

// EffectiveMonthlyType returns MonthlyType, defaulting to MonthlyByDayOfMonth.
func (c Config) EffectiveMonthlyType() MonthlyType {
	if c.MonthlyType == "" {
		return MonthlyByDayOfMonth
	}
	return c.MonthlyType
}

// Normalize returns a copy holding only the fields meaningful for the frequency and end
// condition. Weekdays are deduplicated and sorted Sunday first.
func (c Config) Normalize() Config {
	if !c.IsRecurring() {
		return None()
	}

	out := Config{
		Frequency: c.Frequency,
		Interval:  c.EffectiveInterval(),
		EndType:   c.EffectiveEndType(),
	}

	switch c.Frequency {
	case FrequencyWeekly:
		out.DaysOfWeek = sortedWeekdays(c.DaysOfWeek)
	case FrequencyMonthly:
		out.MonthlyType = c.EffectiveMonthlyType()
		if out.MonthlyType == MonthlyByWeekday {
			out.WeekOfMonth = c.WeekOfMonth
			out.DayOfWeekForMonth = c.DayOfWeekForMonth
		} else {
			out.DayOfMonth = c.DayOfMonth
		}
	case FrequencyYearly:
		out.DayOfMonth = c.DayOfMonth
		out.MonthOfYear = c.MonthOfYear
	}

	switch out.EndType {
	case EndOn:
		out.EndDate = c.EndDate
	case EndAfter:
		out.Occurrences = c.Occurrences
	}

	return out
}

// HasWeekday reports whether d is one of the configured weekly days.
func (c Config) HasWeekday(d time.Weekday) bool {
	return slices.Contains(c.DaysOfWeek, d)
}

func sortedWeekdays(days []time.Weekday) []time.Weekday {
	if len(days) == 0 {
		return nil
	}
	out := slices.Clone(days)
	slices.Sort(out)
	return slices.Compact(out)
}
