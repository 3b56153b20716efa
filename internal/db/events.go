package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"orgcal/internal/conflict"
	"orgcal/internal/model"
)

const eventColumns = `id, uid, series_id, recurrence_rule, title, description, room_id, owner_id, owner_name,
    start_time, end_time, status, created_at, updated_at`

func scanEvent(s interface{ Scan(...any) error }) (model.Event, error) {
	var (
		e                          model.Event
		seriesID, rule, desc, name sql.NullString
		status                     string
	)
	err := s.Scan(&e.ID, &e.UID, &seriesID, &rule, &e.Title, &desc, &e.RoomID, &e.OwnerID, &name,
		&e.Start, &e.End, &status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return model.Event{}, err
	}
	e.SeriesID = seriesID.String
	e.RecurrenceRule = rule.String
	e.Description = desc.String
	e.OwnerName = name.String
	e.Status = model.Status(status)
	return e, nil
}

func queryEvents(ctx context.Context, q querier, query string, args ...any) ([]model.Event, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func listRoomEvents(ctx context.Context, q querier, roomID int64, from, to time.Time, statuses []model.Status) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE room_id = ? AND start_time < ? AND end_time > ?`
	args := []any{roomID, utc(to), utc(from)}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(`, ?`, len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY start_time, id`
	return queryEvents(ctx, q, query, args...)
}

// ListRoomEvents returns events of a room that intersect [from, to), optionally limited to
// the given statuses.
func (db *DB) ListRoomEvents(ctx context.Context, roomID int64, from, to time.Time, statuses ...model.Status) ([]model.Event, error) {
	events, err := listRoomEvents(ctx, db, roomID, from, to, statuses)
	if err != nil {
		return nil, fmt.Errorf("list room %d events: %w", roomID, err)
	}
	return events, nil
}

// GetEvent returns an event by id.
func (db *DB) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	return &e, nil
}

// ListSeries returns every stored occurrence of a series in start order.
func (db *DB) ListSeries(ctx context.Context, seriesID string) ([]model.Event, error) {
	events, err := queryEvents(ctx, db,
		`SELECT `+eventColumns+` FROM events WHERE series_id = ? ORDER BY start_time, id`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list series %s: %w", seriesID, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("series %s: %w", seriesID, ErrNotFound)
	}
	return events, nil
}

// CreateSeries inserts rows in one transaction. The room's blocking reservations are
// re-read inside the transaction, and a collision aborts the whole insert with a
// *conflict.Error whose Index points into rows.
func (db *DB) CreateSeries(ctx context.Context, policy conflict.Policy, rows []model.Event) ([]model.Event, error) {
	if len(rows) == 0 {
		return nil, errors.New("create series: no rows")
	}
	out := slices.Clone(rows)

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := recheck(ctx, tx, policy, out, nil); err != nil {
			return err
		}

		now := utc(time.Now())
		for i := range out {
			e := &out[i]
			e.CreatedAt, e.UpdatedAt = now, now
			res, err := tx.ExecContext(ctx, `
                INSERT INTO events (uid, series_id, recurrence_rule, title, description, room_id, owner_id, owner_name,
                    start_time, end_time, status, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.UID, nullString(e.SeriesID), nullString(e.RecurrenceRule), e.Title, nullString(e.Description),
				e.RoomID, e.OwnerID, nullString(e.OwnerName), utc(e.Start), utc(e.End), string(e.Status), now, now,
			)
			if err != nil {
				return fmt.Errorf("insert event %d of %d: %w", i+1, len(out), err)
			}
			if e.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("insert event id: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEvents rewrites the mutable fields of rows in one transaction. Rows that still
// block the room are re-checked against other reservations, ignoring the rows themselves.
func (db *DB) UpdateEvents(ctx context.Context, policy conflict.Policy, rows []model.Event) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make(map[int64]struct{}, len(rows))
	for _, e := range rows {
		ids[e.ID] = struct{}{}
	}
	self := func(e *model.Event) bool {
		_, ok := ids[e.ID]
		return ok
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := recheck(ctx, tx, policy, rows, self); err != nil {
			return err
		}

		now := utc(time.Now())
		for _, e := range rows {
			res, err := tx.ExecContext(ctx, `
                UPDATE events
                SET title = ?, description = ?, recurrence_rule = ?, start_time = ?, end_time = ?, status = ?, updated_at = ?
                WHERE id = ?`,
				e.Title, nullString(e.Description), nullString(e.RecurrenceRule), utc(e.Start), utc(e.End),
				string(e.Status), now, e.ID,
			)
			if err != nil {
				return fmt.Errorf("update event %d: %w", e.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("event %d: %w", e.ID, ErrNotFound)
			}
		}
		return nil
	})
}

// DeleteEvent removes a single event row.
func (db *DB) DeleteEvent(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSeries removes every row of a series and returns how many were deleted.
func (db *DB) DeleteSeries(ctx context.Context, seriesID string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE series_id = ?`, seriesID)
	if err != nil {
		return 0, fmt.Errorf("delete series %s: %w", seriesID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, fmt.Errorf("series %s: %w", seriesID, ErrNotFound)
	}
	return n, nil
}

// recheck loads the room's blocking reservations overlapping rows and runs the series
// conflict check. Rows that do not block (drafts, cancelled) are not checked.
func recheck(ctx context.Context, q querier, policy conflict.Policy, rows []model.Event, exclude func(*model.Event) bool) error {
	if policy.AllowsOverlap {
		return nil
	}

	var (
		candidates []model.Event
		index      []int
		from, to   time.Time
	)
	for i, e := range rows {
		if !e.Status.Blocks() {
			continue
		}
		if len(candidates) == 0 || e.Start.Before(from) {
			from = e.Start
		}
		if len(candidates) == 0 || e.End.After(to) {
			to = e.End
		}
		candidates = append(candidates, e)
		index = append(index, i)
	}
	if len(candidates) == 0 {
		return nil
	}

	existing, err := listRoomEvents(ctx, q, policy.RoomID, from, to, model.BlockingStatuses())
	if err != nil {
		return fmt.Errorf("load room %d reservations: %w", policy.RoomID, err)
	}

	err = conflict.CheckSeries(policy, candidates, existing, exclude)
	var cerr *conflict.Error
	if errors.As(err, &cerr) {
		cerr.Index = index[cerr.Index]
	}
	return err
}
