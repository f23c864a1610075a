package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rillnet/internal/core/domain"
	"rillnet/internal/core/forward"
	"rillnet/internal/core/services"
	httphandlers "rillnet/internal/handlers/http"
	"rillnet/internal/infrastructure/distributed"
	"rillnet/internal/infrastructure/middleware"
	"rillnet/internal/infrastructure/monitoring"
	"rillnet/internal/infrastructure/reliability"
	"rillnet/internal/infrastructure/repositories"
	webrtcinfra "rillnet/internal/infrastructure/webrtc"
	"rillnet/pkg/circuitbreaker"
	"rillnet/pkg/config"
	"rillnet/pkg/logger"
	"rillnet/pkg/retry"
	"rillnet/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	var configPath string
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		// Fallback to a bare logger since zapLogger isn't built yet.
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Log.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Warnw("error shutting down tracer provider", "error", err)
		}
	}()

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	directory := reliability.NewForwarderDirectoryWrapper(
		repoFactory.CreateForwarderDirectory(),
		retry.Config{Enabled: true, MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0, Jitter: true},
		circuitbreaker.Config{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 10 * time.Second, MaxRequestsHalfOpen: 1},
		log,
	)

	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID, _ = os.Hostname()
	}

	collector := monitoring.NewPrometheusCollector()
	metricsBase := services.NewMetricsService()
	streamMetrics := services.NewBatchedMetricsService(metricsBase, 32, 100*time.Millisecond)
	defer streamMetrics.Stop()

	var events forward.EventSink = multiEventSink{sinks: []forward.EventSink{
		metricsEventSink{collector: collector},
		streamMetrics,
	}}
	if repoFactory.RedisClient() != nil {
		eventBus := distributed.NewEventBus(repoFactory.RedisClient(), instanceID, log)
		defer eventBus.Close()
		events = multiEventSink{sinks: []forward.EventSink{events, eventBus}}
	}

	scrapeStop := make(chan struct{})
	defer close(scrapeStop)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-scrapeStop:
				return
			case <-ticker.C:
				for _, m := range metricsBase.Snapshot() {
					collector.UpdateStreamMetrics(m)
				}
			}
		}
	}()

	var iceServers []webrtc.ICEServer
	for _, s := range cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	peerFactory := webrtcinfra.NewPeerFactory(webrtcinfra.PeerConfig{ICEServers: iceServers})

	registry := forward.NewRegistry(forward.RegistryConfig{
		ICEServers:          iceServers,
		PubMax:              cfg.StreamInfo.PubMax,
		SubMax:              cfg.StreamInfo.SubMax,
		PublishLeaveTimeout: time.Duration(cfg.StreamInfo.PublishLeaveTimeoutMs) * time.Millisecond,
		Events:              events,
		Logger:              log,
	})

	stop := make(chan struct{})
	defer close(stop)
	registry.RunReaper(5*time.Second, stop)

	authService := services.NewAuthService(cfg.Auth)
	streamService := services.NewCachedStreamService(services.NewStreamService(registry), time.Second)
	defer streamService.(*services.CachedStreamService).Stop()

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddRepositoryCheck(directory, 10*time.Second, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		healthChecker.AddRedisCheck(client, 10*time.Second, 2*time.Second)
	}
	healthChecker.AddReadinessCheck(repoFactory.RedisClient(), directory, 10*time.Second, 2*time.Second)
	healthChecker.StartBackgroundChecks(context.Background())

	streamHandler := httphandlers.NewStreamHandler(registry, streamService, peerFactory)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	if cfg.HTTP.CORS {
		router.Use(func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Header("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization,Content-Type")
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
		})
	}

	authorized := router.Group("/")
	authorized.Use(middleware.AuthMiddleware(authService))
	streamHandler.SetupRoutes(authorized)
	authorized.GET("/api/v1/streams/:id/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, streamMetrics.GetStreamMetrics(domain.StreamID(c.Param("id"))))
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if !healthChecker.IsReady(ctx) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting ingest server", "address", cfg.HTTP.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("ingest server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		srv.Close()
	}

	log.Info("ingest server stopped")
}

// metricsEventSink translates forward.Forwarder lifecycle events into
// Prometheus gauge/counter updates, wired locally rather than only
// out-of-band over Redis.
type metricsEventSink struct {
	collector *monitoring.PrometheusCollector
}

func (m metricsEventSink) Publish(ev domain.ForwardEvent) {
	switch ev.Type {
	case domain.ForwardEventPublishUp:
		m.collector.RecordStreamCreated(ev.StreamID)
		m.collector.RecordPeerConnected(ev.StreamID, true)
	case domain.ForwardEventPublishDown:
		m.collector.RecordPeerDisconnected(ev.StreamID, true)
		m.collector.RecordStreamEnded(ev.StreamID)
	case domain.ForwardEventSubscribeUp:
		m.collector.RecordPeerConnected(ev.StreamID, false)
	case domain.ForwardEventSubscribeDown:
		m.collector.RecordPeerDisconnected(ev.StreamID, false)
	}
}

// multiEventSink fans one forward event out to several sinks.
type multiEventSink struct {
	sinks []forward.EventSink
}

func (m multiEventSink) Publish(ev domain.ForwardEvent) {
	for _, sink := range m.sinks {
		sink.Publish(ev)
	}
}
