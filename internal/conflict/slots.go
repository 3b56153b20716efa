package conflict

import (
	"time"

	"orgcal/internal/model"
)

// Slot is a candidate booking window within a day.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// Slots walks window in step increments and reports, for each start, whether a booking of
// the given duration would fit without a conflict. Slots starting before notBefore are
// reported unavailable; pass a zero time to disable that check.
func Slots(policy Policy, window model.Interval, step, duration time.Duration, existing []model.Event, notBefore time.Time) []Slot {
	if step <= 0 {
		step = 30 * time.Minute
	}
	if duration <= 0 {
		duration = step
	}

	var slots []Slot
	for cursor := window.Start; !cursor.Add(duration).After(window.End); cursor = cursor.Add(step) {
		candidate := model.Interval{Start: cursor, End: cursor.Add(duration)}
		busy := Check(policy, candidate, existing, 0).Conflict
		past := !notBefore.IsZero() && cursor.Before(notBefore)

		slots = append(slots, Slot{
			Start:     candidate.Start,
			End:       candidate.End,
			Available: !busy && !past,
		})
	}
	return slots
}

// Available returns only the open slots.
func Available(slots []Slot) []Slot {
	var out []Slot
	for _, s := range slots {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

// FirstAvailable returns the earliest open slot at or after t.
func FirstAvailable(slots []Slot, t time.Time) (Slot, bool) {
	for _, s := range slots {
		if s.Available && !s.Start.Before(t) {
			return s, true
		}
	}
	return Slot{}, false
}
