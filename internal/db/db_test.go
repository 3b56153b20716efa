package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgcal/internal/config"
	"orgcal/internal/conflict"
	"orgcal/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "orgcal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func boolPtr(b bool) *bool { return &b }

func seedRooms(t *testing.T, db *DB) {
	t.Helper()
	err := db.SyncRoomsFromConfig(context.Background(), &config.RoomsConfig{
		Rooms: []config.RoomConfig{
			{ID: 1, Name: "Hall", Capacity: 40, IsActive: true, AllowsOverlap: boolPtr(false)},
			{ID: 2, Name: "Lobby", Capacity: 10, IsActive: true, AllowsOverlap: boolPtr(true)},
		},
	})
	require.NoError(t, err)
}

func at(day, hour, min int) time.Time {
	return time.Date(2026, time.March, day, hour, min, 0, 0, time.UTC)
}

func event(uid string, room int64, start, end time.Time, status model.Status) model.Event {
	return model.Event{
		UID:       uid,
		Title:     "Event " + uid,
		RoomID:    room,
		OwnerID:   7,
		OwnerName: "Dana",
		Start:     start,
		End:       end,
		Status:    status,
	}
}

func TestSyncRoomsFromConfig(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRooms(t, db)

	room, err := db.GetRoom(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Lobby", room.Name)
	assert.True(t, room.AllowsOverlap)
	created := room.CreatedAt

	// Room 2 disappears, room 1 is renamed.
	err = db.SyncRoomsFromConfig(ctx, &config.RoomsConfig{
		Rooms: []config.RoomConfig{{ID: 1, Name: "Main hall", Capacity: 50, IsActive: true}},
	})
	require.NoError(t, err)

	active, err := db.ListRooms(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Main hall", active[0].Name)
	assert.Equal(t, 50, active[0].Capacity)

	all, err := db.ListRooms(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[1].IsActive)
	assert.True(t, all[1].CreatedAt.Equal(created))

	_, err = db.GetRoom(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSeries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRooms(t, db)
	policy := conflict.Policy{RoomID: 1}

	parent := event("s1", 1, at(2, 10, 0), at(2, 11, 0), model.StatusApproved)
	parent.SeriesID = "s1"
	parent.RecurrenceRule = "FREQ=WEEKLY;COUNT=2"
	child := event("s1-2", 1, at(9, 10, 0), at(9, 11, 0), model.StatusApproved)
	child.SeriesID = "s1"

	created, err := db.CreateSeries(ctx, policy, []model.Event{parent, child})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotZero(t, created[0].ID)
	assert.Zero(t, parent.ID, "input rows are not modified")

	got, err := db.GetEvent(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=2", got.RecurrenceRule)
	assert.True(t, got.Start.Equal(parent.Start))
	assert.True(t, got.IsParent())

	series, err := db.ListSeries(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, series, 2)

	t.Run("conflict aborts the whole series", func(t *testing.T) {
		clash := []model.Event{
			event("x1", 1, at(16, 10, 0), at(16, 11, 0), model.StatusPendingReview),
			event("x2", 1, at(9, 10, 30), at(9, 11, 30), model.StatusPendingReview),
		}
		_, err := db.CreateSeries(ctx, policy, clash)
		require.ErrorIs(t, err, conflict.ErrConflict)

		var cerr *conflict.Error
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, 1, cerr.Index)
		assert.Equal(t, "Event s1-2", cerr.With.Title)

		events, err := db.ListRoomEvents(ctx, 1, at(1, 0, 0), at(31, 0, 0))
		require.NoError(t, err)
		assert.Len(t, events, 2, "nothing from the rejected series is stored")
	})

	t.Run("occurrences overlapping each other abort the series", func(t *testing.T) {
		long := []model.Event{
			event("o1", 1, at(20, 9, 0), at(22, 10, 0), model.StatusPendingReview),
			event("o2", 1, at(21, 9, 0), at(23, 10, 0), model.StatusPendingReview),
			event("o3", 1, at(22, 9, 0), at(24, 10, 0), model.StatusPendingReview),
		}
		_, err := db.CreateSeries(ctx, policy, long)
		require.ErrorIs(t, err, conflict.ErrConflict)

		var cerr *conflict.Error
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, 1, cerr.Index)
		assert.Equal(t, "o1", cerr.With.UID)

		events, err := db.ListRoomEvents(ctx, 1, at(19, 0, 0), at(25, 0, 0))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("back to back is fine", func(t *testing.T) {
		_, err := db.CreateSeries(ctx, policy, []model.Event{
			event("b1", 1, at(2, 11, 0), at(2, 12, 0), model.StatusPendingReview),
		})
		assert.NoError(t, err)
	})

	t.Run("drafts do not block", func(t *testing.T) {
		_, err := db.CreateSeries(ctx, policy, []model.Event{
			event("d1", 1, at(2, 13, 0), at(2, 14, 0), model.StatusDraft),
		})
		require.NoError(t, err)
		_, err = db.CreateSeries(ctx, policy, []model.Event{
			event("d2", 1, at(2, 13, 0), at(2, 14, 0), model.StatusApproved),
		})
		assert.NoError(t, err)
	})

	t.Run("shared room allows overlap", func(t *testing.T) {
		shared := conflict.Policy{RoomID: 2, AllowsOverlap: true}
		_, err := db.CreateSeries(ctx, shared, []model.Event{
			event("l1", 2, at(2, 10, 0), at(2, 11, 0), model.StatusApproved),
			event("l2", 2, at(2, 10, 0), at(2, 11, 0), model.StatusApproved),
		})
		assert.NoError(t, err)
	})
}

func TestListRoomEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRooms(t, db)

	_, err := db.CreateSeries(ctx, conflict.Policy{RoomID: 1}, []model.Event{
		event("a", 1, at(3, 9, 0), at(3, 10, 0), model.StatusApproved),
		event("b", 1, at(3, 12, 0), at(3, 13, 0), model.StatusCancelled),
		event("c", 1, at(4, 9, 0), at(4, 10, 0), model.StatusPublished),
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		from, to time.Time
		statuses []model.Status
		want     []string
	}{
		{name: "whole day", from: at(3, 0, 0), to: at(4, 0, 0), want: []string{"a", "b"}},
		{name: "blocking only", from: at(3, 0, 0), to: at(4, 0, 0), statuses: model.BlockingStatuses(), want: []string{"a"}},
		{name: "touching end excluded", from: at(3, 10, 0), to: at(3, 12, 0), want: nil},
		{name: "partial overlap", from: at(3, 9, 30), to: at(4, 9, 1), want: []string{"a", "b", "c"}},
		{name: "non UTC bounds", from: at(3, 0, 0).In(time.FixedZone("X", 3*3600)), to: at(3, 11, 0), want: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := db.ListRoomEvents(ctx, 1, tt.from, tt.to, tt.statuses...)
			require.NoError(t, err)
			var uids []string
			for _, e := range events {
				uids = append(uids, e.UID)
			}
			assert.Equal(t, tt.want, uids)
		})
	}
}

func TestUpdateEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRooms(t, db)
	policy := conflict.Policy{RoomID: 1}

	created, err := db.CreateSeries(ctx, policy, []model.Event{
		event("a", 1, at(5, 9, 0), at(5, 10, 0), model.StatusApproved),
		event("b", 1, at(5, 11, 0), at(5, 12, 0), model.StatusApproved),
	})
	require.NoError(t, err)

	// Moving "a" onto itself shifted by 30 minutes only overlaps its own old slot.
	moved := created[0]
	moved.Start, moved.End = at(5, 9, 30), at(5, 10, 30)
	moved.Title = "Moved"
	require.NoError(t, db.UpdateEvents(ctx, policy, []model.Event{moved}))

	got, err := db.GetEvent(ctx, moved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Moved", got.Title)
	assert.True(t, got.Start.Equal(at(5, 9, 30)))

	clash := created[0]
	clash.Start, clash.End = at(5, 11, 30), at(5, 12, 30)
	err = db.UpdateEvents(ctx, policy, []model.Event{clash})
	assert.ErrorIs(t, err, conflict.ErrConflict)

	// Stretching "a" into "b" while saving both must still be rejected.
	stretched := []model.Event{moved, created[1]}
	stretched[0].End = at(5, 11, 30)
	err = db.UpdateEvents(ctx, policy, stretched)
	require.ErrorIs(t, err, conflict.ErrConflict)
	got, err = db.GetEvent(ctx, moved.ID)
	require.NoError(t, err)
	assert.True(t, got.End.Equal(at(5, 10, 30)), "rejected update leaves the row untouched")

	missing := created[1]
	missing.ID = 999
	missing.Start, missing.End = at(6, 9, 0), at(6, 10, 0)
	assert.ErrorIs(t, db.UpdateEvents(ctx, policy, []model.Event{missing}), ErrNotFound)
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRooms(t, db)

	a := event("s", 1, at(6, 9, 0), at(6, 10, 0), model.StatusApproved)
	a.SeriesID = "s"
	b := event("s-2", 1, at(7, 9, 0), at(7, 10, 0), model.StatusApproved)
	b.SeriesID = "s"
	c := event("s-3", 1, at(8, 9, 0), at(8, 10, 0), model.StatusApproved)
	c.SeriesID = "s"
	created, err := db.CreateSeries(ctx, conflict.Policy{RoomID: 1}, []model.Event{a, b, c})
	require.NoError(t, err)

	require.NoError(t, db.DeleteEvent(ctx, created[1].ID))
	assert.ErrorIs(t, db.DeleteEvent(ctx, created[1].ID), ErrNotFound)

	n, err := db.DeleteSeries(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = db.ListSeries(ctx, "s")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.DeleteSeries(ctx, "s")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackup(t *testing.T) {
	db := newTestDB(t)
	seedRooms(t, db)
	dir := t.TempDir()

	svc := NewBackupService(db, config.BackupConfig{Enabled: true, Path: dir, RetentionDays: 7}, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	dest, err := svc.PerformBackup()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "orgcal_20260102_030405.db"), dest)

	restored, err := NewDB(dest)
	require.NoError(t, err)
	defer restored.Close()
	rooms, err := restored.ListRooms(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	old := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(dest, old, old))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "notes.txt"), old, old))

	deleted, err := db.CleanupBackups(dir, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestGetTableData(t *testing.T) {
	db := newTestDB(t)
	seedRooms(t, db)

	rows, columns, err := db.GetTableData(context.Background(), "rooms")
	require.NoError(t, err)
	assert.Contains(t, columns, "allows_overlap")
	require.Len(t, rows, 2)
	assert.Equal(t, "Hall", rows[0]["name"])

	_, _, err = db.GetTableData(context.Background(), "sqlite_master")
	assert.Error(t, err)
}
