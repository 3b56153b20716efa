package api

import (
	"net/http"
	"time"

	"orgcal/internal/model"
	"orgcal/internal/recurrence"
	"orgcal/internal/service"
)

type createEventRequest struct {
	Title       string             `json:"title" validate:"required,max=200"`
	Description string             `json:"description" validate:"max=2000"`
	RoomID      int64              `json:"room_id" validate:"required,gt=0"`
	OwnerID     int64              `json:"owner_id" validate:"gte=0"`
	OwnerName   string             `json:"owner_name" validate:"max=200"`
	Start       time.Time          `json:"start" validate:"required"`
	End         time.Time          `json:"end" validate:"required,gtfield=Start"`
	Recurrence  *recurrence.Config `json:"recurrence"`
	Status      string             `json:"status" validate:"omitempty,oneof=draft pending_review approved published"`
}

type updateEventRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft pending_review approved published rejected cancelled"`
}

type eventsResponse struct {
	Events []model.Event `json:"events"`
}

type deleteResponse struct {
	Deleted int64 `json:"deleted"`
}

func (s *HTTPServer) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rc := recurrence.None()
	if req.Recurrence != nil {
		rc = *req.Recurrence
	}

	res, err := s.svc.CreateEvent(r.Context(), service.CreateEventRequest{
		Title:       req.Title,
		Description: req.Description,
		RoomID:      req.RoomID,
		OwnerID:     req.OwnerID,
		OwnerName:   req.OwnerName,
		Start:       req.Start,
		End:         req.End,
		Recurrence:  rc,
		Status:      model.Status(req.Status),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := s.svc.GetEvent(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *HTTPServer) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateEventRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.svc.UpdateEvent(r.Context(), id, scope, service.EventPatch{
		Title:       req.Title,
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: rows})
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req statusRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.svc.UpdateStatus(r.Context(), id, scope, model.Status(req.Status))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: rows})
}

func (s *HTTPServer) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scope, err := scopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := s.svc.DeleteEvent(r.Context(), id, scope)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: n})
}
