// Package layout places a day's events into side-by-side columns for calendar rendering.
package layout

import (
	"cmp"
	"slices"
	"time"
)

// Event is one interval to place on the calendar.
type Event struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (e Event) overlaps(o Event) bool {
	return e.Start.Before(o.End) && o.Start.Before(e.End)
}

// Window is the displayed hour range and its vertical scale.
type Window struct {
	Start       time.Time
	PxPerMinute float64
	MinHeight   float64
}

// PositionedEvent is an event with its computed geometry. Width and Left are percentages of
// the day column; Top and Height are pixels.
type PositionedEvent struct {
	Event
	Column           int     `json:"column"`
	TotalColumns     int     `json:"total_columns"`
	Width            float64 `json:"width"`
	Left             float64 `json:"left"`
	TopOffsetMinutes float64 `json:"top_offset_minutes"`
	HeightMinutes    float64 `json:"height_minutes"`
	Top              float64 `json:"top"`
	Height           float64 `json:"height"`
}

// Pack lays out events. The result is ordered by start, then longer events first, then ID,
// and depends only on the set of events passed in.
func Pack(events []Event, w Window) []PositionedEvent {
	return place(computeOverlapWidths(assignColumns(events)), w)
}

// assignColumns gives each event the first column whose latest event has ended by the
// time it starts, opening a new column when none has.
func assignColumns(events []Event) []PositionedEvent {
	sorted := slices.Clone(events)
	slices.SortFunc(sorted, func(a, b Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		// longer first
		if c := b.End.Compare(a.End); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var columnEnds []time.Time
	out := make([]PositionedEvent, len(sorted))
	for i, e := range sorted {
		col := slices.IndexFunc(columnEnds, func(end time.Time) bool {
			return !end.After(e.Start)
		})
		if col < 0 {
			col = len(columnEnds)
			columnEnds = append(columnEnds, e.End)
		} else {
			columnEnds[col] = e.End
		}
		out[i] = PositionedEvent{Event: e, Column: col}
	}
	return out
}

// computeOverlapWidths sizes each event by the number of distinct columns holding an event
// that overlaps it, itself included. Disjoint clusters on the same day therefore do not
// shrink each other.
func computeOverlapWidths(placed []PositionedEvent) []PositionedEvent {
	out := make([]PositionedEvent, len(placed))
	for i, p := range placed {
		columns := map[int]struct{}{p.Column: {}}
		for _, other := range placed {
			if other.overlaps(p.Event) {
				columns[other.Column] = struct{}{}
			}
		}

		p.TotalColumns = len(columns)
		p.Width = 100 / float64(p.TotalColumns)
		p.Left = float64(p.Column) * p.Width
		out[i] = p
	}
	return out
}

func place(placed []PositionedEvent, w Window) []PositionedEvent {
	out := make([]PositionedEvent, len(placed))
	for i, p := range placed {
		p.TopOffsetMinutes = p.Start.Sub(w.Start).Minutes()
		p.HeightMinutes = p.End.Sub(p.Start).Minutes()
		p.Top = p.TopOffsetMinutes * w.PxPerMinute
		p.Height = max(p.HeightMinutes*w.PxPerMinute, w.MinHeight)
		out[i] = p
	}
	return out
}
