package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"orgcal/internal/config"
	"orgcal/internal/db"
	"orgcal/internal/events"
	"orgcal/internal/lock"
	"orgcal/internal/model"
	"orgcal/internal/service"
)

func boolPtr(b bool) *bool { return &b }

func testConfig() *config.Config {
	return &config.Config{
		Scheduling: config.SchedulingConfig{
			MaxInstances:    50,
			Timezone:        "UTC",
			DayStart:        "08:00",
			DayEnd:          "20:00",
			PxPerMinute:     1,
			MinEventHeight:  20,
			SlotStepMinutes: 30,
			DefaultStatus:   string(model.StatusPendingReview),
		},
	}
}

func setupTestServer(t *testing.T, srvCfg config.ServerConfig) (*HTTPServer, *db.DB) {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "orgcal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	err = database.SyncRoomsFromConfig(context.Background(), &config.RoomsConfig{
		Rooms: []config.RoomConfig{
			{ID: 1, Name: "Hall", Capacity: 40, IsActive: true, AllowsOverlap: boolPtr(false)},
			{ID: 2, Name: "Lobby", Capacity: 10, IsActive: true, AllowsOverlap: boolPtr(true)},
			{ID: 3, Name: "Attic", Capacity: 5, IsActive: false},
		},
	})
	require.NoError(t, err)

	cfg := testConfig()
	logger := zerolog.Nop()
	svc := service.NewEventService(database, lock.NewLocalLocker(), events.NewEventBus(), cfg, logger)

	srv := NewHTTPServer(srvCfg, svc, Options{
		Tables:     database,
		TableNames: db.DumpTableNames,
		Location:   cfg.Location(),
	}, logger)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, database
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// standup is a weekly Monday/Wednesday series of four meetings starting Monday 3 June 2030.
func standup() map[string]any {
	return map[string]any{
		"title":      "Standup",
		"room_id":    1,
		"owner_id":   7,
		"owner_name": "Dana",
		"start":      "2030-06-03T10:00:00Z",
		"end":        "2030-06-03T11:00:00Z",
		"recurrence": map[string]any{
			"frequency":    "weekly",
			"days_of_week": []int{1, 3},
			"end_type":     "after",
			"occurrences":  4,
		},
	}
}

func createStandup(t *testing.T, h http.Handler) service.CreateResult {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/events", standup())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[service.CreateResult](t, rec)
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := setupTestServer(t, config.ServerConfig{APIKey: "secret"})
	h := srv.Handler()

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"valid key", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
			if tt.key != "" {
				req.Header.Set(apiKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	srv, _ := setupTestServer(t, config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 1})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/rooms", nil).Code)
	rec := do(t, h, http.MethodGet, "/api/v1/rooms", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:5", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": " 10.0.0.9 "}, "1.2.3.4:5", "10.0.0.9"},
		{"remote addr", nil, "1.2.3.4:5678", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestRecurrenceEndpoints(t *testing.T) {
	srv, _ := setupTestServer(t, config.ServerConfig{})
	h := srv.Handler()

	t.Run("encode weekly", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/recurrence/encode", map[string]any{
			"start":      "2030-06-03T10:00:00Z",
			"recurrence": standup()["recurrence"],
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[encodeResponse](t, rec)
		require.NotNil(t, resp.Rule)
		assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4", *resp.Rule)
		assert.NotEmpty(t, resp.Summary)
	})

	t.Run("encode none is null", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/recurrence/encode", map[string]any{
			"start":      "2030-06-03T10:00:00Z",
			"recurrence": map[string]any{"frequency": "none"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"rule":null`)
	})

	t.Run("encode rejects weekly without days", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/recurrence/encode", map[string]any{
			"start":      "2030-06-03T10:00:00Z",
			"recurrence": map[string]any{"frequency": "weekly"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("decode", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/recurrence/decode", map[string]any{"rule": "RRULE:FREQ=DAILY;INTERVAL=2;COUNT=5"})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[decodeResponse](t, rec)
		assert.Equal(t, "daily", string(resp.Recurrence.Frequency))
		assert.Equal(t, 2, resp.Recurrence.Interval)
		assert.Equal(t, 5, resp.Recurrence.Occurrences)
	})

	t.Run("preview includes template", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/recurrence/preview", map[string]any{
			"start":      "2030-06-03T10:00:00Z",
			"end":        "2030-06-03T11:00:00Z",
			"recurrence": map[string]any{"frequency": "daily", "end_type": "after", "occurrences": 3},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[service.PreviewResult](t, rec)
		require.Len(t, resp.Occurrences, 3)
		assert.Equal(t, 5, resp.Occurrences[2].Start.Day())
		assert.False(t, resp.Truncated)
	})

	t.Run("preview validates body", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/recurrence/preview", map[string]any{
			"start": "2030-06-03T10:00:00Z",
			"end":   "2030-06-03T09:00:00Z",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateEvent_Validation(t *testing.T) {
	srv, _ := setupTestServer(t, config.ServerConfig{})
	h := srv.Handler()

	base := func(mut func(m map[string]any)) map[string]any {
		m := standup()
		mut(m)
		return m
	}

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing title", base(func(m map[string]any) { delete(m, "title") }), http.StatusBadRequest},
		{"end before start", base(func(m map[string]any) { m["end"] = "2030-06-03T09:00:00Z" }), http.StatusBadRequest},
		{"unknown field", base(func(m map[string]any) { m["colour"] = "red" }), http.StatusBadRequest},
		{"malformed json", `{"title":`, http.StatusBadRequest},
		{"bad status", base(func(m map[string]any) { m["status"] = "cancelled" }), http.StatusBadRequest},
		{"unknown room", base(func(m map[string]any) { m["room_id"] = 99 }), http.StatusNotFound},
		{"inactive room", base(func(m map[string]any) { m["room_id"] = 3 }), http.StatusUnprocessableEntity},
		{"occurrences overlap each other", base(func(m map[string]any) {
			m["end"] = "2030-06-05T11:00:00Z"
			m["recurrence"] = map[string]any{"frequency": "daily", "end_type": "after", "occurrences": 3}
		}), http.StatusConflict},
		{"runaway series", base(func(m map[string]any) {
			m["recurrence"] = map[string]any{"frequency": "daily"}
		}), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/events", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestEventLifecycle(t *testing.T) {
	srv, _ := setupTestServer(t, config.ServerConfig{})
	h := srv.Handler()

	created := createStandup(t, h)
	require.Len(t, created.Events, 4)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4", created.Rule)
	parentID := created.Events[0].ID
	secondID := created.Events[1].ID

	t.Run("get event", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, fmt.Sprintf("/api/v1/events/%d", parentID), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		ev := decode[model.Event](t, rec)
		assert.Equal(t, created.SeriesID, ev.SeriesID)
	})

	t.Run("conflicting booking returns 409", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/events", map[string]any{
			"title":   "Workshop",
			"room_id": 1,
			"start":   "2030-06-12T10:30:00Z",
			"end":     "2030-06-12T11:30:00Z",
		})
		require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		resp := decode[errorResponse](t, rec)
		require.NotNil(t, resp.Conflict)
		assert.Equal(t, "Standup", resp.Conflict.Title)
		assert.Equal(t, "Dana", resp.Conflict.Owner)
		assert.Equal(t, 0, resp.Conflict.Index)
	})

	t.Run("overlap allowed in shared room", func(t *testing.T) {
		for range 2 {
			rec := do(t, h, http.MethodPost, "/api/v1/events", map[string]any{
				"title":   "Coffee",
				"room_id": 2,
				"start":   "2030-06-03T10:00:00Z",
				"end":     "2030-06-03T10:30:00Z",
			})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		}
	})

	t.Run("availability", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/rooms/1/availability?start=2030-06-05T10:30:00Z&end=2030-06-05T12:00:00Z", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, decode[struct {
			Conflict bool `json:"conflict"`
		}](t, rec).Conflict)

		rec = do(t, h, http.MethodGet, "/api/v1/rooms/1/availability?start=2030-06-05T11:00:00Z&end=2030-06-05T12:00:00Z", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"conflict":false`)

		rec = do(t, h, http.MethodGet, "/api/v1/rooms/1/availability?start=yesterday&end=2030-06-05T12:00:00Z", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("layout", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/rooms/1/layout?date=2030-06-03", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[layoutResponse](t, rec)
		require.Len(t, resp.Events, 1)
		assert.Equal(t, 0, resp.Events[0].Column)
		assert.InDelta(t, 100.0, resp.Events[0].Width, 0.001)
		assert.InDelta(t, 120.0, resp.Events[0].TopOffsetMinutes, 0.001)

		rec = do(t, h, http.MethodGet, "/api/v1/rooms/1/layout", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("free slots", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/rooms/1/free-slots?date=2030-06-03&duration=1h", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[slotsResponse](t, rec)
		var starts []string
		for _, s := range resp.Slots {
			starts = append(starts, s.Start.UTC().Format("15:04"))
		}
		assert.Contains(t, starts, "08:00")
		assert.Contains(t, starts, "11:00")
		assert.NotContains(t, starts, "09:30")
		assert.NotContains(t, starts, "10:00")
		assert.NotContains(t, starts, "10:30")

		rec = do(t, h, http.MethodGet, "/api/v1/rooms/1/free-slots?date=2030-06-03&duration=soon", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("patch single occurrence", func(t *testing.T) {
		rec := do(t, h, http.MethodPatch, fmt.Sprintf("/api/v1/events/%d?scope=single", secondID), map[string]any{"title": "Planning"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[eventsResponse](t, rec)
		require.Len(t, resp.Events, 1)
		assert.Equal(t, "Planning", resp.Events[0].Title)

		rec = do(t, h, http.MethodPatch, fmt.Sprintf("/api/v1/events/%d?scope=everything", secondID), map[string]any{"title": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("status transitions", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/events/%d/status?scope=series", parentID)
		rec := do(t, h, http.MethodPost, path, map[string]any{"status": "approved"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[eventsResponse](t, rec)
		require.Len(t, resp.Events, 4)
		for _, ev := range resp.Events {
			assert.Equal(t, model.StatusApproved, ev.Status)
		}

		rec = do(t, h, http.MethodPost, path, map[string]any{"status": "draft"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = do(t, h, http.MethodPost, path, map[string]any{"status": "archived"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("series calendar", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/series/"+created.SeriesID+".ics", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, icsContentType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), created.SeriesID+".ics")
		assert.Contains(t, rec.Body.String(), "RRULE:FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20300612T100000Z")
		assert.Contains(t, rec.Body.String(), "LOCATION:Hall")
	})

	t.Run("series rows", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/series/"+created.SeriesID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[eventsResponse](t, rec).Events, 4)
	})

	t.Run("room workbook", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/rooms/1/export.xlsx?from=2030-06-01&to=2030-06-30", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Hall")
		require.NoError(t, err)
		assert.Len(t, rows, 5)

		rec = do(t, h, http.MethodGet, "/api/v1/rooms/1/export.xlsx?from=2030-06-30&to=2030-06-01", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("database dump", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/export/database.xlsx", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		assert.ElementsMatch(t, db.DumpTableNames, f.GetSheetList())
	})

	t.Run("delete series", func(t *testing.T) {
		rec := do(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/events/%d?scope=series", secondID), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, int64(4), decode[deleteResponse](t, rec).Deleted)

		rec = do(t, h, http.MethodGet, "/api/v1/series/"+created.SeriesID+".ics", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = do(t, h, http.MethodGet, fmt.Sprintf("/api/v1/events/%d", parentID), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRooms(t *testing.T) {
	srv, _ := setupTestServer(t, config.ServerConfig{})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/rooms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[roomsResponse](t, rec).Rooms, 2)

	rec = do(t, h, http.MethodGet, "/api/v1/rooms?all=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[roomsResponse](t, rec).Rooms, 3)

	rec = do(t, h, http.MethodGet, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
