package main

import (
	"context"
	"database/sql"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/helpq/helpq/internal/adapter/cooldown"
	"github.com/helpq/helpq/internal/adapter/http"
	"github.com/helpq/helpq/internal/adapter/notify"
	"github.com/helpq/helpq/internal/adapter/persistence"
	"github.com/helpq/helpq/internal/config"
	"github.com/helpq/helpq/internal/logger"
	"github.com/helpq/helpq/internal/ports"
	"github.com/helpq/helpq/internal/usecase"
)

func main() {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: "helpq",
	})
	appLogger.Info("application starting", logger.Fields{
		"env": cfg.Server.Environment,
	})

	// Connect to database
	db, err := sql.Open("postgres", cfg.GetDatabaseURL())
	if err != nil {
		appLogger.Error("failed to open database", err, nil)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetConnMaxIdleTime(cfg.Database.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		appLogger.Error("failed to ping database", err, logger.Fields{
			"host": cfg.Database.Host,
		})
		os.Exit(1)
	}
	appLogger.Info("database connection established", logger.Fields{
		"host":   cfg.Database.Host,
		"dbname": cfg.Database.DBName,
	})

	// Cooldown guard: Redis-backed when enabled, in-process otherwise.
	var guard ports.CooldownGuard
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := client.Ping(pingCtx).Err(); err != nil {
			appLogger.Warn("redis unreachable, cooldowns fail open until it recovers", logger.Fields{
				"addr": cfg.GetRedisAddr(),
			})
		}
		guard = cooldown.NewRedisGuard(client)
		defer client.Close()
	} else {
		guard = cooldown.NewMemoryGuard(ports.SystemClock())
		appLogger.Info("redis disabled, using in-process cooldown guard", nil)
	}

	// Notifier: webhook when configured, noop otherwise.
	var notifier ports.Notifier
	if cfg.Webhook.URL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout)
	} else {
		notifier = notify.NewNoopNotifier()
	}

	// Repositories
	ticketRepo := persistence.NewPostgresTicketRepository(db)
	eventRepo := persistence.NewPostgresEventRepository(db)
	queueRepo := persistence.NewPostgresQueueRepository(db)
	loginRepo := persistence.NewPostgresLoginEventRepository(db)
	enrollmentRepo := persistence.NewPostgresEnrollmentRepository(db)

	clock := ports.SystemClock()

	// Use cases
	queueService := usecase.NewQueueService(ticketRepo, eventRepo, queueRepo, enrollmentRepo, guard, notifier, clock, appLogger)
	estimator := usecase.NewEstimator(ticketRepo, eventRepo, queueRepo, loginRepo, clock)
	presenceService := usecase.NewPresenceService(loginRepo, queueRepo, enrollmentRepo, clock, appLogger)
	statsService := usecase.NewStatsService(eventRepo, loginRepo, queueRepo, clock)

	server := http.NewServer(http.ServerConfig{
		Port:         cfg.Server.Port,
		JWTSecret:    cfg.Security.JWTSecret,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, queueService, estimator, presenceService, statsService, appLogger)

	go func() {
		if err := server.Start(); err != nil && err != nethttp.ErrServerClosed {
			appLogger.Error("server failed", err, nil)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("forced shutdown", err, nil)
	}
	appLogger.Info("server exited", nil)
}
