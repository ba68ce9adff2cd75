package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "fireplus/docs"
	"fireplus/internal/config"
	"fireplus/internal/handlers"
	"fireplus/internal/logger"
	"fireplus/internal/metrics"
	"fireplus/internal/mqtt"
	"fireplus/internal/panel"
	"fireplus/internal/repository"
	"fireplus/internal/repository/db"
	"fireplus/internal/server"
	"fireplus/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// @title                       Fire+ poller API
// @version                     0.3.0
// @description                 Polls Drooff Fire+ fireplace panels on the local network and exposes their status as sensors.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the JWT.
func main() {
	// load configs/config.yml and FIREPLUS_* overrides
	cfg, err := config.Load("configs")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		log.Fatalw("invalid config", "err", err)
	}

	// open DB
	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err, "path", cfg.DB.Path)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(conn)
	devices := service.NewDeviceService(repos.DeviceRepo, repos.EventRepo, newPanelClient,
		cfg.Poll.DefaultIntervalDuration(), log.Named("devices"))
	services := service.NewService(repos, devices, service.AuthConfig{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(devices, log.Named("metrics")),
	)

	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled() {
		client, err := mqtt.Dial(cfg.MQTT)
		if err != nil {
			log.Fatalw("failed to connect to mqtt broker", "err", err, "broker", cfg.MQTT.Broker)
		}
		publisher = mqtt.NewPublisher(client, mqtt.Options{
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
		}, log.Named("mqtt"))
		publisher.Attach(devices)
		log.Infow("mqtt_enabled", "broker", cfg.MQTT.Broker)
	}

	// set up persisted and seeded devices; failures retry in the background
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := devices.Start(ctx, seedParams(cfg.Devices)); err != nil {
		cancel()
		log.Fatalw("failed to start devices", "err", err)
	}
	cancel()

	apiHandler := handlers.NewHandler(services, log, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// start HTTP server
	srv := server.New(cfg.Port, apiHandler.InitRoutes())
	runHTTPServer(srv, log)

	// graceful shutdown
	waitForShutdown(srv, devices, publisher, log)
}

func newPanelClient(host string) (service.Fetcher, error) {
	c, err := panel.NewClient(host)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func seedParams(seeds []config.DeviceSeed) []service.DeviceParams {
	out := make([]service.DeviceParams, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, service.DeviceParams{Host: s.Host, IntervalSec: s.Interval})
	}
	return out
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, log *logger.Logger) {
	go func() {
		if err := srv.Run(); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
	log.Infow("server_started", "addr", srv.Addr())
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(srv *server.Server, devices *service.DeviceService, publisher *mqtt.Publisher, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	// stop poll loops before the publisher and the database go away
	devices.Close()
	if publisher != nil {
		publisher.Close()
	}
}
