package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	pionwebrtc "github.com/pion/webrtc/v3"

	"voxhub/internal/metrics"
	"voxhub/internal/sfu"
	"voxhub/internal/signaling"
	"voxhub/internal/webrtc"
	"voxhub/pkg/config"
	"voxhub/pkg/logger"
)

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/voxhub/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	iceServers := make([]pionwebrtc.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, pionwebrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	factory, err := webrtc.NewFactory(webrtc.Config{
		ICEServers:   iceServers,
		PortRangeMin: cfg.WebRTC.PortRange.Min,
		PortRangeMax: cfg.WebRTC.PortRange.Max,
	})
	if err != nil {
		log.Fatalw("failed to build webrtc factory", "error", err)
	}

	collector := metrics.NewCollector()

	notifier := signaling.NewDeferredNotifier()
	router := sfu.New(factory, collector, notifier, log)

	signalServer := signaling.NewServer(router, cfg, log)
	notifier.Bind(signalServer)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", signalServer.HandleWebSocket)
	mux.HandleFunc("/health", signalServer.HealthCheck)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ready",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})
	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("prometheus metrics enabled at /metrics")
	}

	srv := &http.Server{
		Addr:         cfg.Signal.Address,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting voxhub SFU signaling server", "address", cfg.Signal.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	osignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("signaling server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down voxhub SFU...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer shutdownCancel()

	if err := signalServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during signaling server shutdown", "error", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during HTTP server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	} else {
		log.Info("HTTP server shutdown gracefully")
	}

	log.Info("voxhub SFU stopped")
}
