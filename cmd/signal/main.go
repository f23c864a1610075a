package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rillnet/internal/core/services"
	signalserver "rillnet/internal/infrastructure/signal"
	"rillnet/pkg/config"
	"rillnet/pkg/logger"
)

func main() {
	startTime := time.Now()

	var configPath string
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Log.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	authService := services.NewAuthService(cfg.Auth)
	wsServer := signalserver.NewServer(authService, cfg.RateLimiting.WS, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/connect/{base64}/", wsServer.HandleConnect)
	mux.HandleFunc("GET /health", wsServer.HealthCheck)
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready","uptime":"` + time.Since(startTime).String() + `"}`))
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: mux,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting relay signal server", "address", cfg.HTTP.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("relay signal server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down relay signal server")
	wsServer.Shutdown()

	if err := srv.Close(); err != nil {
		log.Errorw("error closing relay signal server", "error", err)
	}

	log.Info("relay signal server stopped")
}
