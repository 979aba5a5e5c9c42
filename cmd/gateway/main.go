package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"obd-go-gateway/internal/alerting"
	"obd-go-gateway/internal/api"
	"obd-go-gateway/internal/auth"
	"obd-go-gateway/internal/config"
	"obd-go-gateway/internal/connection"
	"obd-go-gateway/internal/metrics"
	"obd-go-gateway/internal/poller"
	"obd-go-gateway/internal/storage"
	"obd-go-gateway/internal/telemetry"
	"obd-go-gateway/internal/websocket"
)

func main() {
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}

	log := newLogger(cfg.LogLevel)
	log.WithFields(logrus.Fields{
		"adapter": adapterTarget(cfg),
		"listen":  cfg.Server.ListenAddr,
	}).Info("starting OBD telemetry gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	store := telemetry.NewStore()
	history := storage.NewFrameStore()

	hub := websocket.NewHub(store, log)
	hub.OnDrop = m.DroppedFrames.Inc
	hub.OnCount = func(n int) { m.Subscribers.Set(float64(n)) }
	go hub.Run(ctx)

	alerter := alerting.NewAlerter(hub, log)

	mgr := connection.NewManager(cfg.Adapter, log)
	mgr.OnStateChange = func(s connection.State) {
		m.ConnectionState.Set(float64(s))
		if s == connection.Connecting {
			m.Reconnects.Inc()
		}
	}

	sched := poller.NewScheduler(cfg, mgr, store, log, hub, history, alerter, m)
	go sched.Run(ctx)

	authMgr := auth.NewManager(cfg.Auth)
	handler := api.NewHandler(hub, store, history, mgr, authMgr, log)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.SetupRouter(handler),
	}

	go func() {
		log.WithField("addr", cfg.Server.ListenAddr).Info("broadcast server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("broadcast server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	log.Info("stopped")
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()

	if level == "off" || level == "none" {
		log.SetOutput(io.Discard)
		return log
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return log
}

func adapterTarget(cfg *config.Config) string {
	if cfg.Adapter.Device != "" {
		return cfg.Adapter.Device
	}
	return cfg.Adapter.Host
}
