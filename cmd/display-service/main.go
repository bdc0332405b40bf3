package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	checkindb "ms-checkin/internal/checkin/db"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database"
	"ms-checkin/internal/live/display_api"
	"ms-checkin/internal/live/push"
	"ms-checkin/internal/logger"
)

func main() {
	log := logger.NewLogger("display-service")
	defer log.Close()

	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	ctx := context.Background()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	var redisClient *redis.Client
	if cfg.Display.PushTransport == "redis" && cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// subscriptions will fail and displays fall back to polling
			log.Warn("REDIS", fmt.Sprintf("Redis unreachable at %s: %v", cfg.Redis.Addr, err))
		}
	}

	handler := &display_api.Handler{
		Push:         push.NewChannel(cfg, redisClient, log),
		Store:        &checkindb.DB{Bun: bunDB, LegacyAttendance: !cfg.Database.UniqueAttendance},
		PollInterval: cfg.Display.PollInterval,
		ConfirmDelay: cfg.Display.ConfirmDelay,
		Logger:       log,
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", handler.RegisterRoutes)

	server := &http.Server{
		Addr:        cfg.Server.DisplayPort,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Display Service on %s (push: %s)", cfg.Server.DisplayPort, cfg.Display.PushTransport))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("HTTP", "Display service shutdown complete")
}
