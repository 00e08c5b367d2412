package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/taskboard/internal/bootstrap"
	"github.com/cassiomorais/taskboard/internal/consumer"
	"github.com/cassiomorais/taskboard/internal/dispatch"
	"github.com/cassiomorais/taskboard/internal/event"
	"github.com/cassiomorais/taskboard/internal/handler"
	infraRedis "github.com/cassiomorais/taskboard/internal/infrastructure/redis"
	"github.com/cassiomorais/taskboard/internal/publisher"
	"github.com/cassiomorais/taskboard/internal/replay"
	"github.com/cassiomorais/taskboard/internal/repository/postgres"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "taskboard-worker", "taskboard_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	deadLetterRepo := postgres.NewDeadLetterRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Bus ---
	producer := infraRedis.NewProducer(app.Redis)
	pipelineCfg := app.Config.Pipeline

	// Dead letters land in the database first; the dlq stream copy is for
	// operational tooling only.
	recorder := replay.NewRecorder(deadLetterRepo, producer, app.Logger)

	// --- Outbox publisher ---
	pub := publisher.New(
		outboxRepo,
		txManager,
		producer,
		recorder,
		pipelineCfg.Topic,
		publisher.Config{
			BatchSize:    pipelineCfg.OutboxBatchSize,
			PollInterval: pipelineCfg.PollInterval,
			MaxAttempts:  pipelineCfg.MaxPublishAttempts,
			Backoff:      pipelineCfg.Backoff(),
		},
		app.Metrics,
		app.Logger,
	)

	// --- Event registry and handlers ---
	registry := event.NewRegistry()
	event.RegisterAll(registry)

	dispatcher := dispatch.New(app.Logger)
	handler.NewActivityHandler(app.Logger).Register(dispatcher)

	// One consumer per subscribed topic. Distinct event types may share a
	// topic through routing config, so dedupe first.
	topics := make(map[string]struct{})
	for _, eventType := range registry.Types() {
		topics[pipelineCfg.Topic(eventType)] = struct{}{}
	}

	consumerCfg := consumer.Config{
		MaxRetries:      pipelineCfg.MaxRetries,
		Backoff:         pipelineCfg.Backoff(),
		ReclaimInterval: pipelineCfg.ReclaimInterval,
		ReclaimMinIdle:  pipelineCfg.ReclaimMinIdle,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pub.Run(gCtx)
	})

	for topic := range topics {
		stream := infraRedis.NewStreamConsumer(
			app.Redis,
			topic,
			pipelineCfg.ConsumerGroup,
			app.Config.InstanceID,
			int64(pipelineCfg.OutboxBatchSize),
			pipelineCfg.BlockDuration,
		)
		if err := stream.CreateGroup(gCtx); err != nil {
			app.Logger.Error().Err(err).Str("topic", topic).Msg("Failed to create consumer group")
		}

		c := consumer.New(
			stream,
			registry,
			dispatcher,
			deadLetterRepo,
			producer,
			consumerCfg,
			app.Metrics,
			app.Logger,
		)
		g.Go(func() error {
			return c.Run(gCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
