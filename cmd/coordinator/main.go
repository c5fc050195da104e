package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/services"
	httphandlers "github.com/kingcam214/creatorvault-ultrastate-sub003/internal/handlers/http"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/infrastructure/distributed"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/infrastructure/middleware"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/infrastructure/monitoring"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/infrastructure/registry"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/infrastructure/repositories"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/infrastructure/signal"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/config"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/logger"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/tracing"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/utils"
)

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/cvlive/config.yaml",
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

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	// Tracing
	tracingCfg := tracing.DefaultConfig()
	tracingCfg.Enabled = cfg.Tracing.Enabled
	tracingCfg.JaegerURL = cfg.Tracing.JaegerURL
	tracingCfg.Environment = cfg.Tracing.Environment
	tracingCfg.SampleRate = cfg.Tracing.SampleRate
	tracerProvider, err := tracing.Init(tracingCfg)
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Storage
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	roomStore := repoFactory.CreateRoomStore()
	presence := repoFactory.CreatePresenceStore()

	// Event sinks: metrics always apply when enabled, the Redis
	// publisher only when a client is available.
	var sinks []ports.RoomEventSink
	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
		sinks = append(sinks, collector)
	}

	var publisher *distributed.RoomEventPublisher
	if client := repoFactory.RedisClient(); client != nil {
		bus := distributed.NewEventBus(client, utils.InstanceID(), log)
		publisher = distributed.NewRoomEventPublisher(presence, bus, log)
		sinks = append(sinks, publisher)
	}

	// Core services
	connRegistry := registry.NewConnectionRegistry(log)
	lifecycle := services.NewLifecycleService(roomStore, connRegistry, log, sinks...)
	connRegistry.OnClose(func(id domain.ConnID) {
		lifecycle.HandleDisconnect(context.Background(), id)
	})

	var connMetrics ports.ConnMetrics
	var signalMetrics ports.SignalMetrics
	if collector != nil {
		connMetrics = collector
		signalMetrics = collector
	}
	relay := services.NewRelayService(connRegistry, signalMetrics, log)

	var tokens services.TokenService
	if cfg.Auth.Enabled {
		tokens = services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	}

	iceServers := cfg.ICEServers()

	// Signaling transport
	wsOpts := signal.Options{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendQueueSize:  cfg.Signal.SendQueueSize,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
		ICEServers:     iceServers,
	}
	if cfg.RateLimiting.Enabled {
		wsOpts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		wsOpts.MessageBurst = cfg.RateLimiting.WebSocket.Burst
		wsOpts.MaxMessageBytes = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
	}
	wsServer := signal.NewWebSocketServer(connRegistry, lifecycle, relay, tokens, connMetrics, wsOpts, log)

	signalMux := http.NewServeMux()
	signalMux.HandleFunc("/ws", wsServer.HandleWebSocket)
	signalMux.HandleFunc("/healthz", wsServer.HealthCheck)

	signalSrv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: signalMux,
	}

	// Query API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	streamHandler := httphandlers.NewStreamHandler(lifecycle, iceServers)
	var apiMiddleware []gin.HandlerFunc
	if cfg.Auth.Enabled {
		apiMiddleware = append(apiMiddleware, middleware.AuthMiddleware(tokens))
	}
	streamHandler.SetupRoutes(router, apiMiddleware...)

	health := monitoring.NewHealthChecker()
	health.AddCheck("redis", repoFactory.HealthCheck, 2*time.Second)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"connections": connRegistry.Count(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	apiSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("starting signaling server on %s", cfg.Signal.Address)
		if err := signalSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("starting query API on %s", cfg.Server.Address)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := signalSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during signaling server shutdown", "error", err)
		signalSrv.Close()
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during API server shutdown", "error", err)
		apiSrv.Close()
	}

	if publisher != nil {
		publisher.Stop()
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer", "error", err)
	}

	log.Info("coordinator stopped")
}
