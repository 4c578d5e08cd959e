package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/admission"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/cache"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/config"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/fetcher"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/gbp"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/progress"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/publisher"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/scheduler"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/secrets"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/server"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/service"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/storage/postgres"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/token"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	box, err := secrets.NewBox(cfg.EncryptionKey)
	if err != nil {
		logger.Error("invalid encryption key", "error", err)
		os.Exit(1)
	}

	// Redis is optional: without it cache invalidation is a no-op.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		logger.Info("connected to redis")
	}

	// RabbitMQ is optional as well; downstream events are skipped without it.
	var rabbitMQ *publisher.RabbitMQ
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err = publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
	}

	// Initialize stores
	accountStore := postgres.NewAccountStore(db)
	credentialStore := postgres.NewCredentialStore(db)
	jobStore := postgres.NewJobStore(db)
	resourceStore := postgres.NewResourceStore(db)
	txManager := postgres.NewTransactionManager(db)

	// Business Profile API client
	apiClient := gbp.New(gbp.Config{
		BaseURL:      cfg.API.BaseURL,
		PageSize:     cfg.API.PageSize,
		Timeout:      cfg.API.Timeout,
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		TokenURL:     cfg.OAuth.TokenURL,
	}, logger)

	tokenManager := token.NewManager(accountStore, credentialStore, apiClient, box, logger)
	broadcaster := progress.NewBroadcaster()
	resourceFetcher := fetcher.New(apiClient, tokenManager, cfg.Sync.FanOutLimit, logger)
	coordinator := service.NewCoordinator(resourceStore, txManager, logger)
	invalidator := cache.NewInvalidator(redisClient, logger)

	var pub service.Publisher
	if rabbitMQ != nil {
		pub = rabbitMQ
	}

	syncService := service.NewSyncService(
		resourceFetcher,
		coordinator,
		jobStore,
		invalidator,
		pub,
		broadcaster,
		logger,
	)

	controller := admission.NewController(
		accountStore,
		jobStore,
		cfg.Sync.SubmitsPerHour,
		cfg.Sync.QueueSize,
		cfg.Sync.JobTimeout,
		logger,
	)

	sched := scheduler.NewScheduler(
		tokenManager,
		controller,
		accountStore,
		scheduler.Config{
			RefreshInterval: cfg.Sync.RefreshInterval,
			RefreshHorizon:  cfg.Sync.RefreshHorizon,
			SyncInterval:    cfg.Sync.SyncInterval,
		},
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	router := gin.New()
	router.Use(gin.Recovery())
	server.NewHandler(controller, jobStore, broadcaster, logger).Register(router)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	go func() {
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler error", "error", err)
		}
	}()

	logger.Info("starting sync workers",
		"workers", cfg.Sync.Workers,
		"queue_size", cfg.Sync.QueueSize,
		"fan_out_limit", cfg.Sync.FanOutLimit,
	)

	controller.Start(ctx, cfg.Sync.Workers, syncService)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
