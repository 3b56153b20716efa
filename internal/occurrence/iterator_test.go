package occurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCandidateDays(t *testing.T) {
	from := civilDate(2026, 1, 30)

	var got []time.Time
	for d := range candidateDays(from, 3) {
		got = append(got, d)
	}
	assert.Equal(t, []time.Time{civilDate(2026, 1, 31), civilDate(2026, 2, 1), civilDate(2026, 2, 2)}, got)

	count := 0
	for range candidateDays(from, 10) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestNextWeeklyDate(t *testing.T) {
	monday := civilDate(2026, 1, 5)

	tests := []struct {
		name     string
		cursor   time.Time
		interval int
		days     []time.Weekday
		want     time.Time
		wantOK   bool
	}{
		{"same week", monday, 2, []time.Weekday{time.Monday, time.Wednesday}, civilDate(2026, 1, 7), true},
		{"skips off week", civilDate(2026, 1, 7), 2, []time.Weekday{time.Monday, time.Wednesday}, civilDate(2026, 1, 19), true},
		{"furthest match sits on the scan limit", monday, 3, []time.Weekday{time.Monday}, civilDate(2026, 1, 26), true},
		{"weeks count from the anchor not the calendar", monday, 2, []time.Weekday{time.Sunday}, civilDate(2026, 1, 11), true},
		{"no days never matches", monday, 1, nil, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nextWeeklyDate(monday, tt.cursor, tt.interval, tt.days)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNthWeekday(t *testing.T) {
	tests := []struct {
		name   string
		year   int
		month  time.Month
		wd     time.Weekday
		n      int
		want   int
		wantOK bool
	}{
		{"first monday", 2026, time.June, time.Monday, 1, 1, true},
		{"second tuesday", 2026, time.September, time.Tuesday, 2, 8, true},
		{"fifth monday exists", 2026, time.March, time.Monday, 5, 30, true},
		{"fifth monday missing", 2026, time.April, time.Monday, 5, 0, false},
		{"last friday", 2026, time.January, time.Friday, -1, 30, true},
		{"last sunday on final day", 2026, time.May, time.Sunday, -1, 31, true},
		{"last day of leap february", 2028, time.February, time.Tuesday, -1, 29, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nthWeekday(tt.year, tt.month, tt.wd, tt.n)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClampDay(t *testing.T) {
	assert.Equal(t, 28, clampDay(2026, time.February, 31))
	assert.Equal(t, 29, clampDay(2024, time.February, 30))
	assert.Equal(t, 30, clampDay(2026, time.April, 31))
	assert.Equal(t, 15, clampDay(2026, time.April, 15))
}

func TestAddMonths(t *testing.T) {
	y, m := addMonths(2026, time.November, 3)
	assert.Equal(t, 2027, y)
	assert.Equal(t, time.February, m)

	y, m = addMonths(2026, time.January, 24)
	assert.Equal(t, 2028, y)
	assert.Equal(t, time.January, m)
}
