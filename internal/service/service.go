// Package service implements the event workflow on top of the store: creating recurring
// series, editing and deleting occurrences, and answering availability questions.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orgcal/internal/config"
	"orgcal/internal/conflict"
	"orgcal/internal/db"
	"orgcal/internal/lock"
	"orgcal/internal/model"
)

var (
	// ErrNotFound is returned when an event, series or room does not exist.
	ErrNotFound = db.ErrNotFound
	// ErrInvalidRequest wraps input that fails validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTooManyOccurrences is returned when a series would exceed the instance limit.
	ErrTooManyOccurrences = errors.New("series exceeds the occurrence limit")
	// ErrInvalidTransition is returned when the status workflow forbids a change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrRoomInactive is returned when booking a deactivated room.
	ErrRoomInactive = errors.New("room is not active")
)

// Store is the persistence collaborator of EventService.
type Store interface {
	GetRoom(ctx context.Context, id int64) (*model.Room, error)
	ListRooms(ctx context.Context, activeOnly bool) ([]model.Room, error)
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	ListSeries(ctx context.Context, seriesID string) ([]model.Event, error)
	ListRoomEvents(ctx context.Context, roomID int64, from, to time.Time, statuses ...model.Status) ([]model.Event, error)
	CreateSeries(ctx context.Context, policy conflict.Policy, rows []model.Event) ([]model.Event, error)
	UpdateEvents(ctx context.Context, policy conflict.Policy, rows []model.Event) error
	DeleteEvent(ctx context.Context, id int64) error
	DeleteSeries(ctx context.Context, seriesID string) (int64, error)
}

// EventPublisher receives change notifications.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Scope selects whether an edit applies to one occurrence or its whole series.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeSeries Scope = "series"
)

// ParseScope validates a scope string. Empty means single.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeSingle:
		return ScopeSingle, nil
	case ScopeSeries:
		return ScopeSeries, nil
	}
	return "", fmt.Errorf("%w: unknown scope %q", ErrInvalidRequest, s)
}

// EventService coordinates recurrence expansion, conflict checks and persistence.
type EventService struct {
	store  Store
	locker lock.Locker
	bus    EventPublisher
	cfg    *config.Config
	logger zerolog.Logger

	now    func() time.Time
	newUID func() string
}

func NewEventService(store Store, locker lock.Locker, bus EventPublisher, cfg *config.Config, logger zerolog.Logger) *EventService {
	return &EventService{
		store:  store,
		locker: locker,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With().Str("component", "event_service").Logger(),
		now:    time.Now,
		newUID: uuid.NewString,
	}
}

// withRoomLock runs fn while holding the room's booking lock.
func (s *EventService) withRoomLock(ctx context.Context, roomID int64, fn func() error) error {
	release, err := s.locker.Acquire(ctx, lock.RoomKey(roomID))
	if err != nil {
		return fmt.Errorf("lock room %d: %w", roomID, err)
	}
	defer release()
	return fn()
}

func (s *EventService) publish(eventType string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("publish failed")
	}
}

func (s *EventService) activeRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, fmt.Errorf("room %d: %w", roomID, ErrRoomInactive)
	}
	return room, nil
}

// checkRows runs the conflict detector over the blocking rows against the room's current
// reservations, skipping reservations for which exclude returns true.
func (s *EventService) checkRows(ctx context.Context, policy conflict.Policy, rows []model.Event, exclude func(*model.Event) bool) error {
	if policy.AllowsOverlap {
		return nil
	}

	var (
		candidates []model.Event
		index      []int
		span       model.Interval
	)
	for i, e := range rows {
		if !e.Status.Blocks() {
			continue
		}
		if len(candidates) == 0 || e.Start.Before(span.Start) {
			span.Start = e.Start
		}
		if len(candidates) == 0 || e.End.After(span.End) {
			span.End = e.End
		}
		candidates = append(candidates, e)
		index = append(index, i)
	}
	if len(candidates) == 0 {
		return nil
	}

	existing, err := s.store.ListRoomEvents(ctx, policy.RoomID, span.Start, span.End, model.BlockingStatuses()...)
	if err != nil {
		return err
	}

	err = conflict.CheckSeries(policy, candidates, existing, exclude)
	var cerr *conflict.Error
	if errors.As(err, &cerr) {
		cerr.Index = index[cerr.Index]
	}
	return err
}
