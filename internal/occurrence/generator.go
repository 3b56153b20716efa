// Package occurrence expands a recurrence config into concrete event instances.
package occurrence

import (
	"errors"
	"time"

	"orgcal/internal/recurrence"
)

// ErrInvalidRange is returned when the template does not end after it starts.
var ErrInvalidRange = errors.New("occurrence end must be after start")

// Occurrence is one concrete instance of a series.
type Occurrence struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Result is the outcome of Expand.
type Result struct {
	Occurrences []Occurrence
	// Truncated is set when maxInstances stopped the series before its end condition.
	Truncated bool
}

// Generate returns the instances of a series after its first occurrence.
// See Expand for the stopping rules.
func Generate(seriesStart, seriesEnd time.Time, cfg recurrence.Config, maxInstances int) ([]Occurrence, error) {
	res, err := Expand(seriesStart, seriesEnd, cfg, maxInstances)
	return res.Occurrences, err
}

// Expand generates the instances that follow the template [seriesStart, seriesEnd).
// The template itself is occurrence zero and is never returned. Instances keep the
// template's wall-clock time and duration, ascend strictly and stop at the first of:
// maxInstances, the end date (compared by calendar day), Occurrences-1 instances, or one
// year after seriesStart when the series never ends. A maxInstances of zero or less
// allows no instances, so any series that would produce one comes back truncated.
//
// Invalid configs are rejected before anything is generated.
func Expand(seriesStart, seriesEnd time.Time, cfg recurrence.Config, maxInstances int) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if !seriesEnd.After(seriesStart) {
		return Result{}, ErrInvalidRange
	}
	if !cfg.IsRecurring() {
		return Result{}, nil
	}
	duration := seriesEnd.Sub(seriesStart)
	horizon := seriesStart.AddDate(1, 0, 0)
	endType := cfg.EffectiveEndType()
	endDate := civil(cfg.EndDate)

	var res Result
	for date := range dates(civil(seriesStart), cfg) {
		switch endType {
		case recurrence.EndAfter:
			if len(res.Occurrences) >= cfg.Occurrences-1 {
				return res, nil
			}
		case recurrence.EndOn:
			if date.After(endDate) {
				return res, nil
			}
		}

		start := atClock(date, seriesStart)
		if endType == recurrence.EndNever && start.After(horizon) {
			return res, nil
		}

		if len(res.Occurrences) >= maxInstances {
			res.Truncated = true
			return res, nil
		}
		res.Occurrences = append(res.Occurrences, Occurrence{Start: start, End: start.Add(duration)})
	}

	return res, nil
}

// atClock places the civil date at the wall-clock time and location of tmpl.
func atClock(date, tmpl time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		tmpl.Hour(), tmpl.Minute(), tmpl.Second(), tmpl.Nanosecond(), tmpl.Location())
}
