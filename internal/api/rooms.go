package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"orgcal/internal/conflict"
	"orgcal/internal/export"
	"orgcal/internal/layout"
	"orgcal/internal/model"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	icsContentType  = "text/calendar; charset=utf-8"
)

type roomsResponse struct {
	Rooms []model.Room `json:"rooms"`
}

type layoutResponse struct {
	RoomID int64                    `json:"room_id"`
	Date   string                   `json:"date"`
	Events []layout.PositionedEvent `json:"events"`
}

type slotsResponse struct {
	RoomID   int64           `json:"room_id"`
	Date     string          `json:"date"`
	Duration string          `json:"duration"`
	Slots    []conflict.Slot `json:"slots"`
}

func (s *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"

	rooms, err := s.svc.ListRooms(r.Context(), activeOnly)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	writeJSON(w, http.StatusOK, roomsResponse{Rooms: rooms})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := timeParam(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := timeParam(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return
	}

	var excludeID int64
	if raw := r.URL.Query().Get("exclude_id"); raw != "" {
		excludeID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid exclude_id")
			return
		}
	}

	res, err := s.svc.CheckAvailability(r.Context(), roomID, model.Interval{Start: start, End: end}, excludeID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleLayout(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := dateParam(r, "date", s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.svc.DayLayout(r.Context(), roomID, day)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []layout.PositionedEvent{}
	}
	writeJSON(w, http.StatusOK, layoutResponse{RoomID: roomID, Date: day.Format(dateLayout), Events: events})
}

func (s *HTTPServer) handleFreeSlots(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := dateParam(r, "date", s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	duration := time.Hour
	if raw := r.URL.Query().Get("duration"); raw != "" {
		duration, err = time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			writeError(w, http.StatusBadRequest, "invalid duration, expected e.g. 30m or 1h30m")
			return
		}
	}

	slots, err := s.svc.FreeSlots(r.Context(), roomID, day, duration)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if slots == nil {
		slots = []conflict.Slot{}
	}
	writeJSON(w, http.StatusOK, slotsResponse{
		RoomID:   roomID,
		Date:     day.Format(dateLayout),
		Duration: duration.String(),
		Slots:    slots,
	})
}

// handleRoomExport writes a room's events for an inclusive date range as a workbook.
func (s *HTTPServer) handleRoomExport(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := dateParam(r, "from", s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := dateParam(r, "to", s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	room, err := s.svc.GetRoom(r.Context(), roomID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	events, err := s.svc.RoomEvents(r.Context(), roomID, from, to.AddDate(0, 0, 1))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteRoomWorkbook(&buf, *room, events, s.loc); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	filename := fmt.Sprintf("room_%d_%s_%s.xlsx", roomID, from.Format("20060102"), to.Format("20060102"))
	writeAttachment(w, xlsxContentType, filename, buf.Bytes())
}

func (s *HTTPServer) handleSeries(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.Series(r.Context(), mux.Vars(r)["seriesID"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: rows})
}

func (s *HTTPServer) handleSeriesICS(w http.ResponseWriter, r *http.Request) {
	seriesID := mux.Vars(r)["seriesID"]

	rows, err := s.svc.Series(r.Context(), seriesID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	room, err := s.svc.GetRoom(r.Context(), rows[0].RoomID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteSeriesCalendar(&buf, rows, *room, s.loc); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeAttachment(w, icsContentType, seriesID+".ics", buf.Bytes())
}

// handleDatabaseExport dumps every table into one workbook.
func (s *HTTPServer) handleDatabaseExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := export.WriteTables(r.Context(), &buf, s.tables, s.dump); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	filename := fmt.Sprintf("orgcal_dump_%s.xlsx", time.Now().In(s.loc).Format("20060102_150405"))
	writeAttachment(w, xlsxContentType, filename, buf.Bytes())
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
