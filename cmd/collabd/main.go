package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabd/internal/bot"
	"collabd/internal/config"
	"collabd/internal/discord"
	"collabd/internal/jobs"
	"collabd/internal/placement"
	"collabd/internal/pubsub"
	"collabd/internal/reaper"
	"collabd/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Redis connection (job queue + audit event bus)
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Platform REST client
	client := discord.NewClient(cfg.Token, cfg.CallTimeout, logger)

	// Pub/sub bus
	bus := pubsub.New(rdb, logger)

	// Lifecycle service
	selector := placement.NewSelector(cfg.CategoryIDs, cfg.CategoryCapacity)
	collabSvc := service.NewCollabService(client, selector, bus, logger, service.Options{
		GuildID:     cfg.GuildID,
		BotUserID:   cfg.ClientID,
		DeleteGrace: cfg.DeleteGrace,
		PendingTTL:  cfg.PendingTTL,
	})

	// Background jobs: deferred channel deletion and the daily idle sweep
	idleReaper := reaper.New(client, collabSvc, cfg.GuildID, cfg.CategoryIDs, cfg.IdleThreshold, logger)
	jobServer, jobClient := jobs.NewJobServer(cfg.RedisAddr, client, idleReaper, logger)
	go func() {
		if err := jobServer.Start(); err != nil {
			logger.Fatal("Job server failed", zap.Error(err))
		}
	}()
	defer jobServer.Stop()
	collabSvc.SetJobClient(service.NewAsynqJobClient(jobClient))

	// Register the slash command surface
	regCtx, regCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := client.RegisterCommands(regCtx, cfg.ClientID, cfg.GuildID, bot.Commands()); err != nil {
		regCancel()
		logger.Fatal("Failed to register commands", zap.Error(err))
	}
	regCancel()

	// Gateway connection dispatching interactions to the router
	handler := bot.NewHandler(collabSvc, client, logger)
	gwCtx, gwCancel := context.WithCancel(ctx)
	defer gwCancel()
	gateway := discord.NewGateway(cfg.Token, client.GatewayURL, handler.HandleInteraction, logger)
	go func() {
		if err := gateway.Run(gwCtx); err != nil && gwCtx.Err() == nil {
			logger.Fatal("Gateway failed", zap.Error(err))
		}
	}()

	// HTTP router (liveness only)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	logger.Info("Starting collabd",
		zap.String("addr", cfg.Addr),
		zap.String("guild_id", cfg.GuildID),
		zap.Strings("category_ids", cfg.CategoryIDs))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Health server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	gwCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Stopped")
}
