package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"orgcal/internal/conflict"
	"orgcal/internal/lock"
	"orgcal/internal/occurrence"
	"orgcal/internal/recurrence"
	"orgcal/internal/service"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error    string        `json:"error"`
	Conflict *conflictBody `json:"conflict,omitempty"`
}

type conflictBody struct {
	EventID int64     `json:"event_id"`
	Title   string    `json:"title"`
	Owner   string    `json:"owner"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	// Index of the rejected occurrence; 0 is the first one submitted.
	Index int `json:"index"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps workflow errors to HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *conflict.Error
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: ce.Error(),
			Conflict: &conflictBody{
				EventID: ce.With.ID,
				Title:   ce.With.Title,
				Owner:   ce.With.OwnerName,
				Start:   ce.With.Start,
				End:     ce.With.End,
				Index:   ce.Index,
			},
		})
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, recurrence.ErrInvalidConfig),
		errors.Is(err, occurrence.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTooManyOccurrences),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrRoomInactive):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, lock.ErrLockNotAcquired):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "room is busy, retry shortly")
	default:
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody reads a JSON body into dst and runs struct validation.
func (s *HTTPServer) decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func scopeParam(r *http.Request) (service.Scope, error) {
	return service.ParseScope(r.URL.Query().Get("scope"))
}

// dateParam parses a YYYY-MM-DD query value as midnight in loc.
func dateParam(r *http.Request, name string, loc *time.Location) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	d, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s, expected YYYY-MM-DD", name)
	}
	return d, nil
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s, expected RFC3339", name)
	}
	return t, nil
}
