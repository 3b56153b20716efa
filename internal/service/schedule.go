package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"orgcal/internal/conflict"
	"orgcal/internal/layout"
	"orgcal/internal/metrics"
	"orgcal/internal/model"
	"orgcal/internal/occurrence"
	"orgcal/internal/recurrence"
)

// visibleStatuses are shown on the day view.
var visibleStatuses = []model.Status{
	model.StatusDraft, model.StatusPendingReview, model.StatusApproved, model.StatusPublished,
}

// CheckAvailability reports whether interval is free in a room, ignoring the reservation
// with excludeID.
func (s *EventService) CheckAvailability(ctx context.Context, roomID int64, interval model.Interval, excludeID int64) (conflict.Result, error) {
	if !interval.Valid() {
		return conflict.Result{}, fmt.Errorf("%w: end must be after start", ErrInvalidRequest)
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return conflict.Result{}, err
	}

	existing, err := s.store.ListRoomEvents(ctx, room.ID, interval.Start, interval.End, model.BlockingStatuses()...)
	if err != nil {
		return conflict.Result{}, err
	}
	res := conflict.Check(conflict.PolicyFor(room), interval, existing, excludeID)
	if res.Conflict {
		metrics.IncConflict("availability")
	}
	return res, nil
}

// DayLayout returns the room's events on day packed into side-by-side columns. Events are
// clipped to the configured day window before packing.
func (s *EventService) DayLayout(ctx context.Context, roomID int64, day time.Time) ([]layout.PositionedEvent, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	window := s.cfg.DayWindow(day)

	stored, err := s.store.ListRoomEvents(ctx, room.ID, window.Start, window.End, visibleStatuses...)
	if err != nil {
		return nil, err
	}

	items := make([]layout.Event, 0, len(stored))
	for _, e := range stored {
		clipped, ok := e.Interval().Clip(window)
		if !ok {
			continue
		}
		items = append(items, layout.Event{
			ID:    strconv.FormatInt(e.ID, 10),
			Title: e.Title,
			Start: clipped.Start,
			End:   clipped.End,
		})
	}

	started := time.Now()
	placed := layout.Pack(items, layout.Window{
		Start:       window.Start,
		PxPerMinute: s.cfg.Scheduling.PxPerMinute,
		MinHeight:   s.cfg.Scheduling.MinEventHeight,
	})
	metrics.ObserveLayout(time.Since(started))
	return placed, nil
}

// FreeSlots lists open booking slots of the given length in a room on day. Slots that
// start in the past are omitted.
func (s *EventService) FreeSlots(ctx context.Context, roomID int64, day time.Time, duration time.Duration) ([]conflict.Slot, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	window := s.cfg.DayWindow(day)

	existing, err := s.store.ListRoomEvents(ctx, room.ID, window.Start, window.End, model.BlockingStatuses()...)
	if err != nil {
		return nil, err
	}

	slots := conflict.Slots(conflict.PolicyFor(room), window, s.cfg.SlotStep(), duration, existing, s.now())
	return conflict.Available(slots), nil
}

// PreviewResult is a dry run of a recurrence config.
type PreviewResult struct {
	Rule        string                  `json:"recurrence_rule,omitempty"`
	Summary     string                  `json:"summary"`
	Occurrences []occurrence.Occurrence `json:"occurrences"`
	Truncated   bool                    `json:"truncated"`
}

// Preview expands a series without storing anything. The first entry is the template
// occurrence itself. A limit of zero uses the configured instance limit.
func (s *EventService) Preview(start, end time.Time, cfg recurrence.Config, limit int) (*PreviewResult, error) {
	rc, err := prepareRecurrence(cfg)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.Scheduling.MaxInstances {
		limit = s.cfg.Scheduling.MaxInstances
	}

	loc := s.cfg.Location()
	start, end = start.In(loc), end.In(loc)

	res, err := occurrence.Expand(start, end, rc, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	rule, _ := recurrence.Encode(rc, start)

	all := make([]occurrence.Occurrence, 0, len(res.Occurrences)+1)
	all = append(all, occurrence.Occurrence{Start: start, End: end})
	all = append(all, res.Occurrences...)

	return &PreviewResult{
		Rule:        rule,
		Summary:     recurrence.Describe(rc),
		Occurrences: all,
		Truncated:   res.Truncated,
	}, nil
}

// ListRooms returns rooms, optionally only active ones.
func (s *EventService) ListRooms(ctx context.Context, activeOnly bool) ([]model.Room, error) {
	return s.store.ListRooms(ctx, activeOnly)
}

// GetRoom returns a room by id.
func (s *EventService) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	return s.store.GetRoom(ctx, id)
}

// GetEvent returns one stored occurrence.
func (s *EventService) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// Series returns every occurrence of a series in start order.
func (s *EventService) Series(ctx context.Context, seriesID string) ([]model.Event, error) {
	return s.store.ListSeries(ctx, seriesID)
}

// RoomEvents returns a room's reservations intersecting [from, to), excluding rejected
// and cancelled ones.
func (s *EventService) RoomEvents(ctx context.Context, roomID int64, from, to time.Time) ([]model.Event, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: to must be after from", ErrInvalidRequest)
	}
	return s.store.ListRoomEvents(ctx, roomID, from, to, visibleStatuses...)
}
