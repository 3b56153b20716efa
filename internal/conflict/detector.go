// Package conflict decides whether a booking collides with existing reservations in a room.
package conflict

import (
	"errors"
	"fmt"

	"orgcal/internal/model"
)

// ErrConflict matches every *Error via errors.Is.
var ErrConflict = errors.New("room conflict")

// Policy is the booking policy of one room.
type Policy struct {
	RoomID        int64 `json:"room_id"`
	AllowsOverlap bool  `json:"allows_overlap"`
}

// PolicyFor builds the policy of a room.
func PolicyFor(room *model.Room) Policy {
	return Policy{RoomID: room.ID, AllowsOverlap: room.AllowsOverlap}
}

// Result reports the first reservation that collides with a candidate.
type Result struct {
	Conflict bool         `json:"conflict"`
	With     *model.Event `json:"with,omitempty"`
}

// Check tests candidate against existing reservations of the policy's room. Intervals are
// half-open, so back-to-back bookings never collide. Only pending, approved and published
// reservations block, and the reservation with excludeID (when non-zero) is skipped.
func Check(policy Policy, candidate model.Interval, existing []model.Event, excludeID int64) Result {
	return CheckFunc(policy, candidate, existing, ExcludeID(excludeID))
}

// CheckFunc is Check with an arbitrary exclusion predicate.
func CheckFunc(policy Policy, candidate model.Interval, existing []model.Event, exclude func(*model.Event) bool) Result {
	if policy.AllowsOverlap {
		return Result{}
	}

	for i := range existing {
		e := &existing[i]
		if !blocks(policy, e, exclude) {
			continue
		}
		if candidate.Overlaps(e.Interval()) {
			return Result{Conflict: true, With: e}
		}
	}
	return Result{}
}

// CheckSeries checks every candidate in order and returns the first collision as an *Error.
// Candidates are compared with the existing reservations and with the candidates before
// them, so a series whose occurrences overlap each other is rejected too. Callers pass
// only rows that will block the room.
func CheckSeries(policy Policy, candidates []model.Event, existing []model.Event, exclude func(*model.Event) bool) error {
	if policy.AllowsOverlap {
		return nil
	}

	active := make([]model.Event, 0, len(existing))
	for i := range existing {
		if blocks(policy, &existing[i], exclude) {
			active = append(active, existing[i])
		}
	}

	for idx := range candidates {
		c := candidates[idx].Interval()
		if res := CheckFunc(policy, c, active, nil); res.Conflict {
			return &Error{Index: idx, Candidate: c, With: *res.With}
		}
		for j := range idx {
			if c.Overlaps(candidates[j].Interval()) {
				return &Error{Index: idx, Candidate: c, With: candidates[j]}
			}
		}
	}
	return nil
}

// ExcludeID skips the reservation with the given id. Zero excludes nothing.
func ExcludeID(id int64) func(*model.Event) bool {
	return func(e *model.Event) bool {
		return id != 0 && e.ID == id
	}
}

// ExcludeSeries skips every reservation of a series.
func ExcludeSeries(seriesID string) func(*model.Event) bool {
	return func(e *model.Event) bool {
		return seriesID != "" && e.SeriesID == seriesID
	}
}

func blocks(policy Policy, e *model.Event, exclude func(*model.Event) bool) bool {
	if e.RoomID != policy.RoomID || !e.Status.Blocks() {
		return false
	}
	return exclude == nil || !exclude(e)
}

// Error is returned when a write would double-book a room.
type Error struct {
	// Index of the colliding occurrence within the submitted series.
	Index     int
	Candidate model.Interval
	With      model.Event
}

func (e *Error) Error() string {
	owner := e.With.OwnerName
	if owner == "" {
		owner = "another user"
	}
	return fmt.Sprintf("room is booked from %s to %s by %q (%s)",
		e.With.Start.Format("2006-01-02 15:04"), e.With.End.Format("15:04"), e.With.Title, owner)
}

func (e *Error) Is(target error) bool {
	return target == ErrConflict
}
