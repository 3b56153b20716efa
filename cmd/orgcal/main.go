package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"orgcal/internal/api"
	"orgcal/internal/config"
	"orgcal/internal/db"
	"orgcal/internal/events"
	"orgcal/internal/lock"
	"orgcal/internal/logging"
	"orgcal/internal/metrics"
	"orgcal/internal/service"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("ORGCAL_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	database, err := db.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initial load + hot reload of rooms configuration
	if roomsCfg, err := cfg.LoadRooms(); err != nil {
		logger.Error().Err(err).Msg("failed to load rooms config")
	} else if err := database.SyncRoomsFromConfig(ctx, roomsCfg); err != nil {
		logger.Error().Err(err).Msg("failed to apply rooms config")
	}

	if err := config.WatchRooms(ctx, cfg.RoomsConfigPath, 30*time.Second, func(updated *config.RoomsConfig) {
		if updated == nil {
			return
		}
		if err := database.SyncRoomsFromConfig(ctx, updated); err != nil {
			logger.Error().Err(err).Msg("failed to reapply rooms config")
			return
		}
		logger.Info().Int("rooms", len(updated.Rooms)).Msg("rooms config reloaded")
	}, func(err error) {
		logger.Warn().Err(err).Msg("rooms config not reloaded")
	}); err != nil {
		logger.Error().Err(err).Msg("rooms watch failed")
	}

	watchMainConfig(ctx, cfg, logger)

	var rdb *redis.Client
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL())
		logger.Info().Str("address", cfg.Redis.Address).Msg("using redis room locks")
	}

	bus := events.NewEventBus()
	subscribeAudit(bus, logger)

	svc := service.NewEventService(database, locker, bus, cfg, logger)

	backups := db.NewBackupService(database, cfg.Backup, logger)
	if err := backups.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to start backup service")
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(cfg.Server, svc, api.Options{
		Tables:     database,
		TableNames: db.DumpTableNames,
		Location:   cfg.Location(),
	}, logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Str("timezone", cfg.Scheduling.Timezone).Msg("orgcal started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("orgcal stopped")
}

// watchMainConfig applies the logging level from config.yaml while running and warns
// about edited sections that wait for a restart.
func watchMainConfig(ctx context.Context, running *config.Config, logger zerolog.Logger) {
	path := os.Getenv("ORGCAL_CONFIG_PATH")
	current := *running
	first := true
	err := config.WatchConfig(ctx, path, 30*time.Second, func(next *config.Config) {
		if first {
			first = false
			return
		}
		if next.Logging.Level != current.Logging.Level {
			lvl := logging.SetLevel(next.Logging.Level)
			logger.Info().Str("level", lvl.String()).Msg("log level changed")
		}
		if pending := current.RestartRequired(next); len(pending) > 0 {
			logger.Warn().Strs("sections", pending).Msg("config changes need a restart")
		}
		current.Logging.Level = next.Logging.Level
	}, func(err error) {
		logger.Warn().Err(err).Msg("config not reloaded")
	})
	if err != nil {
		logger.Error().Err(err).Msg("config watch failed")
	}
}

// subscribeAudit writes every domain event to the log.
func subscribeAudit(bus *events.EventBus, logger zerolog.Logger) {
	audit := logger.With().Str("component", "audit").Logger()
	bus.SubscribeAll(func(ev events.Event) error {
		audit.Info().
			Str("type", ev.Type).
			Time("at", ev.CreatedAt).
			RawJSON("payload", ev.Payload).
			Msg("domain event")
		return nil
	}, events.SeriesCreated, events.EventUpdated, events.StatusChanged, events.EventDeleted, events.SeriesDeleted)
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, "health", &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, "metrics", &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, logger)
}

func serve(ctx context.Context, name string, srv *http.Server, logger *zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msgf("%s server error", name)
	}
}
