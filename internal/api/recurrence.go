package api

import (
	"net/http"
	"time"

	"orgcal/internal/recurrence"
)

type encodeRequest struct {
	Recurrence recurrence.Config `json:"recurrence"`
	// Start supplies the day-of-month and month defaults.
	Start time.Time `json:"start" validate:"required"`
}

type encodeResponse struct {
	// Rule is null for a non-repeating config.
	Rule    *string `json:"rule"`
	Summary string  `json:"summary"`
}

type decodeRequest struct {
	Rule string `json:"rule" validate:"max=1024"`
}

type decodeResponse struct {
	Recurrence recurrence.Config `json:"recurrence"`
	Summary    string            `json:"summary"`
}

type previewRequest struct {
	Start      time.Time         `json:"start" validate:"required"`
	End        time.Time         `json:"end" validate:"required,gtfield=Start"`
	Recurrence recurrence.Config `json:"recurrence"`
	Limit      int               `json:"limit" validate:"gte=0,lte=1000"`
}

func (s *HTTPServer) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := req.Recurrence
	if cfg.Frequency == "" {
		cfg.Frequency = recurrence.FrequencyNone
	}
	if cfg.Interval == 0 {
		cfg.Interval = 1
	}
	if cfg.IsRecurring() {
		if err := cfg.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	cfg = cfg.Normalize()

	resp := encodeResponse{Summary: recurrence.Describe(cfg)}
	if rule, ok := recurrence.Encode(cfg, req.Start); ok {
		resp.Rule = &rule
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := recurrence.Decode(req.Rule)
	writeJSON(w, http.StatusOK, decodeResponse{Recurrence: cfg, Summary: recurrence.Describe(cfg)})
}

func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.Preview(req.Start, req.End, req.Recurrence, req.Limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
