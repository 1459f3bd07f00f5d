package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/bridge"
	"fleet_tracker/internal/broadcast"
	"fleet_tracker/internal/config"
	"fleet_tracker/internal/controllers"
	"fleet_tracker/internal/logger"
	"fleet_tracker/internal/middleware"
	"fleet_tracker/internal/movement"
	"fleet_tracker/internal/notify"
	"fleet_tracker/internal/repository"
	"fleet_tracker/internal/routes"
	"fleet_tracker/internal/stream"
	"fleet_tracker/internal/trips"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize structured logging to file
	logger.Setup(logger.Options{File: cfg.LogFile, Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.OpenDB(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to get database handle")
	}
	defer sqlDB.Close()

	rdb, err := config.NewRedisClient(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to redis")
	}
	defer rdb.Close()

	repo := repository.New(db)
	streams := stream.NewClient(rdb, stream.WithMaxLen(cfg.StreamMaxLen))
	store := movement.NewRedisStore(streams, movement.RedisStoreOptions{
		ScanWindow:    cfg.StreamScanWindow,
		GPSPartitions: cfg.GPSPartitions,
	})
	base := stream.ConsumerOptions{
		BatchSize:    cfg.StreamBatchSize,
		Block:        cfg.StreamBlock(),
		ClaimTimeout: cfg.StreamClaimTimeout(),
		StartID:      "0",
	}

	br := bridge.New(streams, cfg.GPSPartitions)
	mqttClient, err := config.NewMQTTClient(cfg, br.OnConnect)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to MQTT broker")
	}
	br.Attach(mqttClient)
	defer br.Close()

	hub := broadcast.NewHub()
	defer hub.Close()

	tracker := movement.NewTracker(repo, store, movement.Placement(cfg.InitialPlacement))
	manager := trips.NewManager(repo, store)
	dispatcher := notify.NewDispatcher(repo, notify.LogNotifier{})

	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			logrus.WithField("component", name).Info("Stopped")
		}()
	}
	run("movement", func() { tracker.Run(ctx, streams, cfg.OwnedPartitions(), cfg.GPSPartitions, base) })
	run("trips", func() { manager.Run(ctx, streams, base) })
	run("notify", func() {
		if err := dispatcher.Run(ctx, streams, base); err != nil {
			logrus.WithError(err).Error("Reminder dispatcher exited")
		}
	})
	run("broadcast", func() { broadcast.Run(ctx, hub, streams, cfg.InstanceID, base) })

	ctl := controllers.New(controllers.Deps{
		Repo:     repo,
		Streams:  streams,
		Store:    store,
		Hub:      hub,
		Commands: br,
		Auth:     middleware.NewAuth(cfg.JWTSecret),
	})
	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.HTTPPort,
		Handler: routes.SetupRouter(ctl),
	}
	go func() {
		logrus.WithField("addr", srv.Addr).Info("🚀 Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	wg.Wait()
}
