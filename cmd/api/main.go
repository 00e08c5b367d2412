package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/taskboard/internal/bootstrap"
	"github.com/cassiomorais/taskboard/internal/controller"
	infraRedis "github.com/cassiomorais/taskboard/internal/infrastructure/redis"
	"github.com/cassiomorais/taskboard/internal/replay"
	"github.com/cassiomorais/taskboard/internal/repository/postgres"
	"github.com/cassiomorais/taskboard/internal/service"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "taskboard-api", "taskboard")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	taskRepo := postgres.NewTaskRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	deadLetterRepo := postgres.NewDeadLetterRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Services ---
	taskService := service.NewTaskService(taskRepo, outboxRepo, txManager, app.Logger)

	producer := infraRedis.NewProducer(app.Redis)
	pipelineCfg := app.Config.Pipeline
	replayService := replay.NewService(
		deadLetterRepo,
		producer,
		pipelineCfg.Topic,
		func() replay.Locker {
			return infraRedis.NewDistributedLock(app.Redis, "dead-letter-replay", 5*time.Minute)
		},
		replay.Config{
			RatePerSec: pipelineCfg.ReplayRatePerSec,
			BatchLimit: pipelineCfg.ReplayBatchLimit,
		},
		app.Metrics,
		app.Logger,
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:           app.Pool,
		RedisClient:    app.Redis,
		TaskService:    taskService,
		DeadLetterRepo: deadLetterRepo,
		ReplayService:  replayService,
		Metrics:        app.Metrics,
		CORSConfig:     app.Config.Server.CORS,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
