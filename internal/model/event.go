package model

import "time"

// Event is a persisted room reservation. Occurrences of a recurring series are stored as
// separate rows sharing SeriesID; the parent row carries the encoded recurrence rule.
type Event struct {
	ID             int64     `json:"id"`
	UID            string    `json:"uid"`
	SeriesID       string    `json:"series_id,omitempty"`
	RecurrenceRule string    `json:"recurrence_rule,omitempty"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	RoomID         int64     `json:"room_id"`
	OwnerID        int64     `json:"owner_id"`
	OwnerName      string    `json:"owner_name"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Interval returns the event's time range.
func (e *Event) Interval() Interval {
	return Interval{Start: e.Start, End: e.End}
}

// Duration returns the event length.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// IsParent reports whether the event heads its series.
func (e *Event) IsParent() bool {
	return e.SeriesID != "" && e.SeriesID == e.UID
}

// IsRecurring reports whether the event belongs to a series.
func (e *Event) IsRecurring() bool {
	return e.SeriesID != ""
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two intervals intersect. Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether t falls inside the interval.
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Valid reports whether End is strictly after Start.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Clip returns the part of i that lies within bounds, and false when nothing remains.
func (i Interval) Clip(bounds Interval) (Interval, bool) {
	if !i.Overlaps(bounds) {
		return Interval{}, false
	}
	out := i
	if out.Start.Before(bounds.Start) {
		out.Start = bounds.Start
	}
	if out.End.After(bounds.End) {
		out.End = bounds.End
	}
	return out, true
}
