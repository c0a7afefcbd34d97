package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "smarthome/docs"
	"smarthome/internal/config"
	"smarthome/internal/handlers"
	"smarthome/internal/logger"
	"smarthome/internal/mqtt"
	"smarthome/internal/repository"
	"smarthome/internal/repository/db"
	"smarthome/internal/server"
	"smarthome/internal/service"
	"smarthome/internal/stream"

	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

// @title                       Smart Home API
// @version                     1.0
// @description                 Appliance control, cron schedules, event history and live stream.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Init(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	// open DB
	conn, err := openDB(cfg.DB.Path, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// live fan-out: websocket hub, plus the broker when enabled
	hub := stream.NewHub()
	notifiers := stream.Fanout{hub}
	bridge := connectMQTT(cfg, log)
	if bridge != nil {
		notifiers = append(notifiers, bridge)
	}

	// wire dependencies
	repos := repository.NewRepository(conn)
	services := service.NewService(repos, service.Deps{
		Notifier:          notifiers,
		Log:               log,
		SigningKey:        cfg.Auth.SigningKey,
		TokenTTL:          cfg.Auth.TokenTTL,
		AnalyticsCacheTTL: cfg.Analytics.CacheTTL,
		DispatchTimeout:   cfg.Scheduler.DispatchTimeout,
	})
	apiHandler := handlers.NewHandler(services, log,
		handlers.WithStream(hub, cfg.Stream.Buffer),
		handlers.WithTelemetryLimit(rate.Limit(cfg.Telemetry.RatePerSec), cfg.Telemetry.Burst),
	)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedulerDone := runScheduler(ctx, services.Scheduler, cfg, log)

	// start HTTP server
	srv := server.New(cfg.Port, apiHandler.InitRoutes())
	runHTTPServer(srv, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, schedulerDone, log)

	// Transitions can no longer happen, so the notifiers can go.
	hub.Close()
	if bridge != nil {
		bridge.Close()
	}
}

// openDB initializes the SQLite database using configuration.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		path = "app.db"
	}
	return db.InitDB(path)
}

// connectMQTT returns nil when the bridge is disabled or the broker is unreachable;
// the service runs without it.
func connectMQTT(cfg *config.Config, log *logger.Logger) *mqtt.Bridge {
	if !cfg.MQTT.Enabled {
		return nil
	}
	bridge, err := mqtt.Connect(context.Background(), mqtt.Config{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, log)
	if err != nil {
		log.Warnw("mqtt bridge disabled", "broker", cfg.MQTT.Broker, "err", err)
		return nil
	}
	log.Infow("mqtt bridge connected", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	return bridge
}

// runScheduler starts the schedule loop when enabled. The returned channel
// closes once the loop has stopped.
func runScheduler(ctx context.Context, scheduler service.Scheduler, cfg *config.Config, log *logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if !cfg.Scheduler.Enabled {
		log.Infow("scheduler disabled")
		close(done)
		return done
	}
	go func() {
		defer close(done)
		scheduler.Run(ctx, cfg.Scheduler.Tick)
	}()
	return done
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, log *logger.Logger) {
	go func() {
		log.Infow("http server listening", "addr", srv.Addr())
		if err := srv.Run(); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, schedulerDone <-chan struct{}, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines; the scheduler finishes its current schedule first
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	select {
	case <-schedulerDone:
	case <-ctx.Done():
		log.Warnw("scheduler did not stop before the shutdown deadline")
	}
}
