package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/badge"
	"ms-checkin/internal/checkin/checkin_api"
	checkindb "ms-checkin/internal/checkin/db"
	rediswrap "ms-checkin/internal/checkin/redis"
	checkin "ms-checkin/internal/checkin/service"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/live/display_api"
	"ms-checkin/internal/live/push"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/sse"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Warn("REDIS", "Redis disabled, no push notifications or claim locks")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", sw.status), time.Since(start).String())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func main() {
	log := logger.NewLogger("checkin-service")
	defer log.Close()

	log.Info("APP", "Starting Check-in Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if err := database.Prepare(ctx, bunDB, cfg.Database, log); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Schema preparation failed: %v", err))
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	store := &checkindb.DB{Bun: bunDB, LegacyAttendance: !cfg.Database.UniqueAttendance}

	var notifiers checkin.Notifiers
	if redisClient != nil {
		notifiers = append(notifiers, rediswrap.NewNotifier(redisClient, cfg.Redis.Channel, log))
	}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer producer.Close()
		notifiers = append(notifiers, producer)
		log.Info("KAFKA", "Kafka producer initialized successfully")
	}

	resolver := checkin.NewResolver(store, log)
	recorder := checkin.NewRecorder(store, notifiers, cfg.CheckIn.RecheckDelay, log)
	if redisClient != nil {
		recorder.Claims = rediswrap.NewRedis(redisClient, cfg.CheckIn.ClaimTTL, log)
		recorder.ClaimWait = cfg.CheckIn.ClaimTTL
	}

	registry := checkin.NewRegistry(resolver, recorder, checkin.SessionConfig{
		Cooldown:      cfg.CheckIn.Cooldown,
		ResultDisplay: cfg.CheckIn.ResultDisplay,
	}, sse.NewBroker[checkin.Update](10), log)

	checkinHandler := &checkin_api.Handler{
		Registry:     registry,
		Participants: store,
		Badges:       badge.NewQRGenerator(cfg.Badge.Size),
		DB:           bunDB,
		Logger:       log,
	}
	displayHandler := &display_api.Handler{
		Push:         push.NewChannel(cfg, redisClient, log),
		Store:        store,
		PollInterval: cfg.Display.PollInterval,
		ConfirmDelay: cfg.Display.ConfirmDelay,
		Logger:       log,
	}

	authMiddleware, err := auth.Middleware(ctx, cfg.Auth, log)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(requestLogger(log))

	// --- Public Routes ---
	r.Get("/health", checkinHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/participants/{participantID}/badge.png", checkinHandler.GetBadge)
		displayHandler.RegisterRoutes(r)
		log.Info("ROUTER", "Public display and badge endpoints registered under /api")

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			checkinHandler.RegisterRoutes(r)
			log.Info("ROUTER", "Terminal routes registered under /api/checkin/terminals")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Check-in Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	registry.StopAll()

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Check-in Service shutdown complete")
	}
}
