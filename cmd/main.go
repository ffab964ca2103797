package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lab-device-hub/internal/adapter"
	"lab-device-hub/internal/adapter/mqttadapter"
	"lab-device-hub/internal/adapter/serialadapter"
	"lab-device-hub/internal/adapter/simadapter"
	"lab-device-hub/internal/config"
	"lab-device-hub/internal/connection"
	"lab-device-hub/internal/delivery/http/handler"
	"lab-device-hub/internal/dispatch"
	domaindevice "lab-device-hub/internal/domain/device"
	"lab-device-hub/internal/infrastructure/database/postgres"
	"lab-device-hub/internal/ingest"
	"lab-device-hub/internal/logger"
	"lab-device-hub/internal/monitor"
	"lab-device-hub/internal/notify"
	"lab-device-hub/internal/reservation"
	"lab-device-hub/internal/routes"
	"lab-device-hub/internal/session"
	deviceusecase "lab-device-hub/internal/usecase/device"
	pkgmqtt "lab-device-hub/pkg/mqtt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	env := cfg.Server.Environment
	if env == "" {
		env = "development"
	}
	if err := logger.Init(env); err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting device hub",
		zap.String("environment", env),
	)

	if cfg.Database.Host == "" || cfg.Database.DBName == "" {
		logger.Fatal("Database configuration is missing. Please set DB_HOST and DB_NAME environment variables.")
	}
	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT secret is missing. Please set JWT_SECRET environment variable.")
	}

	db, err := postgres.NewDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	deviceRepo := postgres.NewDeviceRepository(db)
	commandRepo := postgres.NewCommandRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	reservationRepo := postgres.NewReservationRepository(db)
	telemetryRepo := postgres.NewTelemetryRepository(db)
	usageRepo := postgres.NewUsageRepository(db)

	registry := adapter.NewRegistry()
	registry.Register(serialadapter.New())
	registry.Register(simadapter.New())

	var mqttClient *pkgmqtt.Client
	if cfg.MQTT.Broker != "" {
		mqttClient = pkgmqtt.NewClient(&pkgmqtt.Config{
			Broker:               cfg.MQTT.Broker,
			ClientID:             cfg.MQTT.ClientID,
			Username:             cfg.MQTT.Username,
			Password:             cfg.MQTT.Password,
			CleanSession:         true,
			KeepAlive:            cfg.MQTT.KeepAlive,
			ConnectTimeout:       cfg.MQTT.ConnectTimeout,
			AutoReconnect:        true,
			MaxReconnectInterval: time.Minute,
		})
		if err := mqttClient.Connect(); err != nil {
			logger.Warn("MQTT broker unreachable, mqtt devices unavailable until reconnect", zap.Error(err))
		}
		registry.Register(mqttadapter.New(mqttadapter.Options{
			Client:      mqttClient,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}))
	}

	notifier := notify.NewLogNotifier()

	conns := connection.NewManager(registry, deviceRepo, cfg.Device)
	sessions := session.NewManager(sessionRepo, deviceRepo, notifier)
	dispatcher := dispatch.NewDispatcher(registry, conns, deviceRepo, commandRepo, sessions, cfg.Device)
	usageMonitor := monitor.NewUsageMonitor(usageRepo, cfg.Monitor.RollingWindow)
	buffer := ingest.NewBuffer(registry, conns, sessions, deviceRepo, telemetryRepo, usageMonitor, cfg.Device)
	scheduler := reservation.NewScheduler(reservationRepo, deviceRepo, sessions, notifier, cfg.Reservation)

	// Event wiring: the connection manager drives session auto-close,
	// availability accounting, ingestion polling and error notification.
	conns.OnStateChange(sessions.HandleConnectionChange)
	conns.OnStateChange(usageMonitor.HandleConnectionChange)
	conns.OnStateChange(buffer.HandleConnectionChange)
	conns.OnStateChange(func(deviceID uuid.UUID, _, next domaindevice.ConnectionState) {
		if next == domaindevice.StateError {
			notifier.DeviceErrored(deviceID)
		}
	})
	dispatcher.OnCompletion(usageMonitor.HandleCommandCompletion)
	sessions.OnClose(usageMonitor.HandleSessionClose)

	usageMonitor.Start()
	buffer.Start()
	scheduler.Start()

	deviceService := deviceusecase.NewService(deviceRepo, sessionRepo, reservationRepo)

	router := routes.SetupRoutes(cfg, routes.Deps{
		Health:       db.Health,
		Devices:      handler.NewDeviceHandler(deviceService, conns),
		Commands:     handler.NewCommandHandler(dispatcher, commandRepo),
		Sessions:     handler.NewSessionHandler(sessions, sessionRepo, buffer),
		Reservations: handler.NewReservationHandler(scheduler, reservationRepo),
		Stats:        handler.NewStatsHandler(usageMonitor, buffer),
	})

	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	addr := net.JoinHostPort(host, port)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("address", addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", zap.Error(err))
	}

	// Stop producers before consumers so in-flight work lands.
	scheduler.Stop()
	dispatcher.Close()
	conns.Close()
	buffer.Stop()
	usageMonitor.Stop()

	if mqttClient != nil {
		mqttClient.Disconnect()
	}

	log.Println("Server exited properly")
}
