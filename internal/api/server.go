// Package api exposes the scheduling service over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"orgcal/internal/config"
	"orgcal/internal/conflict"
	"orgcal/internal/export"
	"orgcal/internal/layout"
	"orgcal/internal/model"
	"orgcal/internal/recurrence"
	"orgcal/internal/service"
)

// EventService is the workflow the API drives.
type EventService interface {
	CreateEvent(ctx context.Context, req service.CreateEventRequest) (*service.CreateResult, error)
	UpdateEvent(ctx context.Context, id int64, scope service.Scope, patch service.EventPatch) ([]model.Event, error)
	UpdateStatus(ctx context.Context, id int64, scope service.Scope, status model.Status) ([]model.Event, error)
	DeleteEvent(ctx context.Context, id int64, scope service.Scope) (int64, error)
	CheckAvailability(ctx context.Context, roomID int64, interval model.Interval, excludeID int64) (conflict.Result, error)
	DayLayout(ctx context.Context, roomID int64, day time.Time) ([]layout.PositionedEvent, error)
	FreeSlots(ctx context.Context, roomID int64, day time.Time, duration time.Duration) ([]conflict.Slot, error)
	Preview(start, end time.Time, cfg recurrence.Config, limit int) (*service.PreviewResult, error)
	ListRooms(ctx context.Context, activeOnly bool) ([]model.Room, error)
	GetRoom(ctx context.Context, id int64) (*model.Room, error)
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	Series(ctx context.Context, seriesID string) ([]model.Event, error)
	RoomEvents(ctx context.Context, roomID int64, from, to time.Time) ([]model.Event, error)
}

// HTTPServer serves the /api/v1 routes.
type HTTPServer struct {
	svc      EventService
	tables   export.TableSource
	dump     []string
	loc      *time.Location
	apiKey   string
	limiter  *IPRateLimiter
	validate *validator.Validate
	logger   zerolog.Logger
	server   *http.Server
}

// Options carries the optional collaborators of HTTPServer.
type Options struct {
	// Tables enables GET /api/v1/export/database.xlsx when set.
	Tables     export.TableSource
	TableNames []string
	Location   *time.Location
}

func NewHTTPServer(cfg config.ServerConfig, svc EventService, opts Options, logger zerolog.Logger) *HTTPServer {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &HTTPServer{
		svc:      svc,
		tables:   opts.Tables,
		dump:     opts.TableNames,
		loc:      loc,
		apiKey:   cfg.APIKey,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "api").Logger(),
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), max(cfg.RateLimitBurst, 1))
	}

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.metricsMiddleware, s.authMiddleware, s.rateLimitMiddleware)

	api.HandleFunc("/recurrence/encode", s.handleEncode).Methods(http.MethodPost)
	api.HandleFunc("/recurrence/decode", s.handleDecode).Methods(http.MethodPost)
	api.HandleFunc("/recurrence/preview", s.handlePreview).Methods(http.MethodPost)

	api.HandleFunc("/events", s.handleCreateEvent).Methods(http.MethodPost)
	api.HandleFunc("/events/{id:[0-9]+}", s.handleGetEvent).Methods(http.MethodGet)
	api.HandleFunc("/events/{id:[0-9]+}", s.handleUpdateEvent).Methods(http.MethodPatch)
	api.HandleFunc("/events/{id:[0-9]+}", s.handleDeleteEvent).Methods(http.MethodDelete)
	api.HandleFunc("/events/{id:[0-9]+}/status", s.handleUpdateStatus).Methods(http.MethodPost)

	api.HandleFunc("/rooms", s.handleRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id:[0-9]+}/availability", s.handleAvailability).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id:[0-9]+}/layout", s.handleLayout).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id:[0-9]+}/free-slots", s.handleFreeSlots).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id:[0-9]+}/export.xlsx", s.handleRoomExport).Methods(http.MethodGet)

	api.HandleFunc("/series/{seriesID:[A-Za-z0-9-]+}", s.handleSeries).Methods(http.MethodGet)
	api.HandleFunc("/series/{seriesID:[A-Za-z0-9-]+}.ics", s.handleSeriesICS).Methods(http.MethodGet)

	if s.tables != nil {
		api.HandleFunc("/export/database.xlsx", s.handleDatabaseExport).Methods(http.MethodGet)
	}

	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and the rate limiter.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.server.Shutdown(ctx)
}
