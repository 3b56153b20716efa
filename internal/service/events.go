package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"orgcal/internal/conflict"
	"orgcal/internal/events"
	"orgcal/internal/metrics"
	"orgcal/internal/model"
	"orgcal/internal/occurrence"
	"orgcal/internal/recurrence"
)

// CreateEventRequest describes a new event and how it repeats.
type CreateEventRequest struct {
	Title       string
	Description string
	RoomID      int64
	OwnerID     int64
	OwnerName   string
	Start       time.Time
	End         time.Time
	Recurrence  recurrence.Config
	// Status defaults to the configured initial status.
	Status model.Status
}

// CreateResult is the stored series. Events[0] is the parent row.
type CreateResult struct {
	SeriesID string        `json:"series_id,omitempty"`
	Rule     string        `json:"recurrence_rule,omitempty"`
	Summary  string        `json:"summary"`
	Events   []model.Event `json:"events"`
}

// EventPatch lists the fields to change; nil fields are kept.
type EventPatch struct {
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
}

func (p EventPatch) changesTime() bool {
	return p.Start != nil || p.End != nil
}

type seriesPayload struct {
	SeriesID string `json:"series_id,omitempty"`
	EventID  int64  `json:"event_id"`
	RoomID   int64  `json:"room_id"`
	Count    int    `json:"count"`
	Rule     string `json:"recurrence_rule,omitempty"`
	Scope    Scope  `json:"scope,omitempty"`
	Status   string `json:"status,omitempty"`
}

// CreateEvent expands the request into occurrence rows and stores them atomically.
// The template occurrence and every generated instance are checked for conflicts; a
// collision anywhere rejects the whole series with a *conflict.Error.
func (s *EventService) CreateEvent(ctx context.Context, req CreateEventRequest) (*CreateResult, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if !req.End.After(req.Start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidRequest)
	}
	status := req.Status
	if status == "" {
		status = model.Status(s.cfg.Scheduling.DefaultStatus)
	}
	if _, err := model.ParseStatus(string(status)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	rc, err := prepareRecurrence(req.Recurrence)
	if err != nil {
		return nil, err
	}

	room, err := s.activeRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	loc := s.cfg.Location()
	start, end := req.Start.In(loc), req.End.In(loc)

	res, err := occurrence.Expand(start, end, rc, s.cfg.Scheduling.MaxInstances)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if res.Truncated {
		metrics.IncGenerationTruncated()
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyOccurrences, s.cfg.Scheduling.MaxInstances)
	}

	rule, recurring := recurrence.Encode(rc, start)
	parent := model.Event{
		UID:         s.newUID(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		RoomID:      room.ID,
		OwnerID:     req.OwnerID,
		OwnerName:   req.OwnerName,
		Start:       start,
		End:         end,
		Status:      status,
	}
	if recurring {
		parent.SeriesID = parent.UID
		parent.RecurrenceRule = rule
	}

	rows := make([]model.Event, 0, len(res.Occurrences)+1)
	rows = append(rows, parent)
	for _, o := range res.Occurrences {
		child := parent
		child.UID = s.newUID()
		child.RecurrenceRule = ""
		child.Start, child.End = o.Start, o.End
		rows = append(rows, child)
	}

	policy := conflict.PolicyFor(room)
	var created []model.Event
	err = s.withRoomLock(ctx, room.ID, func() error {
		if err := s.checkRows(ctx, policy, rows, nil); err != nil {
			return err
		}
		var err error
		created, err = s.store.CreateSeries(ctx, policy, rows)
		return err
	})
	if err != nil {
		if errors.Is(err, conflict.ErrConflict) {
			metrics.IncConflict("create")
		}
		return nil, err
	}

	metrics.IncSeriesCreated(string(rc.Frequency))
	metrics.AddOccurrencesGenerated(len(res.Occurrences))

	s.logger.Info().
		Int64("room_id", room.ID).
		Str("series_id", parent.SeriesID).
		Str("rule", rule).
		Int("count", len(created)).
		Msg("event created")

	s.publish(events.SeriesCreated, seriesPayload{
		SeriesID: parent.SeriesID,
		EventID:  created[0].ID,
		RoomID:   room.ID,
		Count:    len(created),
		Rule:     rule,
	})

	return &CreateResult{
		SeriesID: parent.SeriesID,
		Rule:     rule,
		Summary:  recurrence.Describe(rc),
		Events:   created,
	}, nil
}

// prepareRecurrence fills omitted fields (no frequency means no repetition, interval
// defaults to one), validates and normalises the config.
func prepareRecurrence(cfg recurrence.Config) (recurrence.Config, error) {
	if cfg.Frequency == "" {
		cfg.Frequency = recurrence.FrequencyNone
	}
	if cfg.Interval == 0 {
		cfg.Interval = 1
	}
	if err := cfg.Validate(); err != nil {
		return recurrence.Config{}, err
	}
	return cfg.Normalize(), nil
}

// scopeRows returns the rows an operation on ev with the given scope touches.
func (s *EventService) scopeRows(ctx context.Context, ev *model.Event, scope Scope) ([]model.Event, error) {
	if scope == ScopeSeries && ev.IsRecurring() {
		return s.store.ListSeries(ctx, ev.SeriesID)
	}
	return []model.Event{*ev}, nil
}

// UpdateEvent edits one occurrence or its whole series. In series scope a new start moves
// every occurrence to the new clock time and a new end sets every occurrence's length;
// moving a series to another day is rejected because the stored rule would no longer
// describe it. Time changes are re-checked for conflicts, ignoring the edited rows.
func (s *EventService) UpdateEvent(ctx context.Context, id int64, scope Scope, patch EventPatch) ([]model.Event, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}

	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	room, err := s.store.GetRoom(ctx, ev.RoomID)
	if err != nil {
		return nil, err
	}
	rows, err := s.scopeRows(ctx, ev, scope)
	if err != nil {
		return nil, err
	}

	loc := s.cfg.Location()
	if len(rows) == 1 {
		rows[0], err = applyPatch(rows[0], patch, loc)
	} else {
		rows, err = shiftSeries(*ev, rows, patch, loc)
	}
	if err != nil {
		return nil, err
	}

	policy := conflict.PolicyFor(room)
	save := func() error { return s.store.UpdateEvents(ctx, policy, rows) }
	if patch.changesTime() {
		err = s.withRoomLock(ctx, room.ID, func() error {
			if err := s.checkRows(ctx, policy, rows, excludeRows(rows)); err != nil {
				return err
			}
			return save()
		})
	} else {
		err = save()
	}
	if err != nil {
		if errors.Is(err, conflict.ErrConflict) {
			metrics.IncConflict("update")
		}
		return nil, err
	}

	s.publish(events.EventUpdated, seriesPayload{
		SeriesID: ev.SeriesID,
		EventID:  ev.ID,
		RoomID:   room.ID,
		Count:    len(rows),
		Scope:    scope,
	})
	return rows, nil
}

func applyPatch(row model.Event, patch EventPatch, loc *time.Location) (model.Event, error) {
	if patch.Title != nil {
		row.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		row.Description = *patch.Description
	}
	duration := row.Duration()
	if patch.Start != nil {
		row.Start = patch.Start.In(loc)
		row.End = row.Start.Add(duration)
	}
	if patch.End != nil {
		row.End = patch.End.In(loc)
	}
	if !row.End.After(row.Start) {
		return row, fmt.Errorf("%w: end must be after start", ErrInvalidRequest)
	}
	return row, nil
}

func shiftSeries(anchor model.Event, rows []model.Event, patch EventPatch, loc *time.Location) ([]model.Event, error) {
	// Apply the patch to the anchor to learn the new clock time and length.
	target, err := applyPatch(anchor, patch, loc)
	if err != nil {
		return nil, err
	}
	if patch.Start != nil {
		from, to := anchor.Start.In(loc), target.Start
		if from.YearDay() != to.YearDay() || from.Year() != to.Year() {
			return nil, fmt.Errorf("%w: a series can only be moved within the same day", ErrInvalidRequest)
		}
	}
	duration := target.Duration()

	out := make([]model.Event, len(rows))
	for i, row := range rows {
		row.Title = target.Title
		row.Description = target.Description
		if patch.changesTime() {
			day := row.Start.In(loc)
			row.Start = time.Date(day.Year(), day.Month(), day.Day(),
				target.Start.Hour(), target.Start.Minute(), target.Start.Second(), 0, loc)
			row.End = row.Start.Add(duration)
		}
		out[i] = row
	}
	return out, nil
}

func excludeRows(rows []model.Event) func(*model.Event) bool {
	ids := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		ids[r.ID] = struct{}{}
	}
	return func(e *model.Event) bool {
		_, ok := ids[e.ID]
		return ok
	}
}

// UpdateStatus moves the event, or every occurrence of its series, to status. Rows already
// in that status are left alone; any other row the workflow forbids fails the whole call.
// Moving into a blocking status re-checks the rows for conflicts.
func (s *EventService) UpdateStatus(ctx context.Context, id int64, scope Scope, status model.Status) ([]model.Event, error) {
	if _, err := model.ParseStatus(string(status)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	room, err := s.store.GetRoom(ctx, ev.RoomID)
	if err != nil {
		return nil, err
	}
	rows, err := s.scopeRows(ctx, ev, scope)
	if err != nil {
		return nil, err
	}

	changed := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		if row.Status == status {
			continue
		}
		if !row.Status.CanTransition(status) {
			return nil, fmt.Errorf("%w: event %d from %s to %s", ErrInvalidTransition, row.ID, row.Status, status)
		}
		row.Status = status
		changed = append(changed, row)
	}
	if len(changed) == 0 {
		return rows, nil
	}

	policy := conflict.PolicyFor(room)
	err = s.withRoomLock(ctx, room.ID, func() error {
		if err := s.checkRows(ctx, policy, changed, excludeRows(changed)); err != nil {
			return err
		}
		return s.store.UpdateEvents(ctx, policy, changed)
	})
	if err != nil {
		if errors.Is(err, conflict.ErrConflict) {
			metrics.IncConflict("status")
		}
		return nil, err
	}

	s.publish(events.StatusChanged, seriesPayload{
		SeriesID: ev.SeriesID,
		EventID:  ev.ID,
		RoomID:   room.ID,
		Count:    len(changed),
		Scope:    scope,
		Status:   string(status),
	})
	return changed, nil
}

// DeleteEvent removes one occurrence or its whole series and returns the number of rows
// deleted. Deleting the parent row alone leaves the other occurrences in place.
func (s *EventService) DeleteEvent(ctx context.Context, id int64, scope Scope) (int64, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return 0, err
	}

	var (
		n         int64
		eventType = events.EventDeleted
	)
	if scope == ScopeSeries && ev.IsRecurring() {
		eventType = events.SeriesDeleted
		n, err = s.store.DeleteSeries(ctx, ev.SeriesID)
	} else {
		scope = ScopeSingle
		n, err = 1, s.store.DeleteEvent(ctx, id)
	}
	if err != nil {
		return 0, err
	}

	metrics.AddEventsDeleted(string(scope), n)
	s.logger.Info().Int64("event_id", id).Str("scope", string(scope)).Int64("deleted", n).Msg("event deleted")
	s.publish(eventType, seriesPayload{
		SeriesID: ev.SeriesID,
		EventID:  ev.ID,
		RoomID:   ev.RoomID,
		Count:    int(n),
		Scope:    scope,
	})
	return n, nil
}
