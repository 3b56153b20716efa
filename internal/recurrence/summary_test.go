package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"none", None(), "Does not repeat"},
		{"daily", Config{Frequency: FrequencyDaily, Interval: 1}, "Daily"},
		{"every 3 days", Config{Frequency: FrequencyDaily, Interval: 3}, "Every 3 days"},
		{
			"biweekly with count",
			Config{
				Frequency: FrequencyWeekly, Interval: 2,
				DaysOfWeek: []time.Weekday{time.Wednesday, time.Monday},
				EndType:    EndAfter, Occurrences: 10,
			},
			"Every 2 weeks on Mon, Wed, 10 times",
		},
		{
			"monthly last friday",
			Config{
				Frequency: FrequencyMonthly, Interval: 1,
				MonthlyType: MonthlyByWeekday, WeekOfMonth: LastWeek, DayOfWeekForMonth: time.Friday,
			},
			"Monthly on the last Friday",
		},
		{
			"monthly day until",
			Config{
				Frequency: FrequencyMonthly, Interval: 2, DayOfMonth: 15,
				EndType: EndOn, EndDate: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
			},
			"Every 2 months on day 15, until Dec 31, 2026",
		},
		{
			"yearly once",
			Config{
				Frequency: FrequencyYearly, Interval: 1, MonthOfYear: 3, DayOfMonth: 8,
				EndType: EndAfter, Occurrences: 1,
			},
			"Annually on March 8, once",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.cfg))
		})
	}
}
