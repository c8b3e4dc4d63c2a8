package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/peergrid/signaling/internal/v1/auth"
	"github.com/peergrid/signaling/internal/v1/config"
	"github.com/peergrid/signaling/internal/v1/health"
	"github.com/peergrid/signaling/internal/v1/logging"
	"github.com/peergrid/signaling/internal/v1/middleware"
	"github.com/peergrid/signaling/internal/v1/ratelimit"
	"github.com/peergrid/signaling/internal/v1/room"
	"github.com/peergrid/signaling/internal/v1/store"
	"github.com/peergrid/signaling/internal/v1/tracing"
	"github.com/peergrid/signaling/internal/v1/transport"
	"github.com/peergrid/signaling/internal/v1/turn"
)

const serviceName = "signaling"

func main() {
	// Load .env for local development; in deployments configuration comes
	// from the environment directly.
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}
	if cfg.AllowDevTokenIssuer {
		slog.Warn("⚠️ Dev token issuer ENABLED - DO NOT USE IN PRODUCTION")
	}

	// --- Tracing (optional) ---
	var tracerProvider *sdktrace.TracerProvider
	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.Init(context.Background(), serviceName, cfg.OtelCollectorAddr, cfg.OtelInsecure)
		if err != nil {
			slog.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			slog.Info("✅ Trace export enabled", "collector", cfg.OtelCollectorAddr)
			tracerProvider = tp
		}
	}

	codec := auth.NewCodec(cfg.JoinTokenSecret)

	// --- Durable store + rate limiter backend ---
	// Redis shares state across replicas; the memory fallback keeps a single
	// instance fully functional.
	var st store.Store = store.NewMemoryStore()
	limiter := ratelimit.NewMemory()
	var redisStore *store.RedisStore
	if cfg.RedisEnabled {
		rs, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("Failed to connect to Redis, running on in-memory store", "error", err)
		} else {
			slog.Info("✅ Redis store initialized", "addr", cfg.RedisAddr)
			redisStore = rs
			st = rs
			if rl, err := ratelimit.NewRedis(rs.Client()); err != nil {
				slog.Error("Failed to create Redis rate limiter, using memory store", "error", err)
			} else {
				limiter = rl
			}
		}
	} else {
		slog.Info("Running in single-instance mode (Redis disabled)")
	}

	minter := turn.NewMinter(cfg.TurnSharedSecret, cfg.TurnTTLSeconds)
	if minter.Enabled() {
		slog.Info("TURN credential minting enabled", "ttlSeconds", cfg.TurnTTLSeconds)
	}

	issuer := auth.NewIssuer(codec, cfg)
	turnHandler := turn.NewHandler(codec, minter, limiter, cfg)
	hub := transport.NewHub(codec, st, room.Options{})

	// --- HTTP surface ---
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if tracerProvider != nil {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(middleware.CorrelationID())

	corsConfig := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"content-type", "authorization", "x-internal-secret", "x-dev-issuer-secret"},
	}
	router.Use(cors.New(corsConfig))

	var pinger health.Pinger
	if redisStore != nil {
		pinger = redisStore
	}
	healthHandler := health.NewHandler(pinger)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Readiness)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/token/issue", issuer.Handle)
	router.GET("/turn-credentials", turnHandler.Handle)
	router.GET("/ws/:roomId", hub.ServeWs)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("Signaling server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during hub shutdown", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			slog.Error("Failed to close Redis connection", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			slog.Error("Failed to flush trace exporter", "error", err)
		}
	}

	slog.Info("Server exiting")
}
