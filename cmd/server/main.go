package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ClipScribe/internal/api"
	"github.com/dharsanguruparan/ClipScribe/internal/config"
	"github.com/dharsanguruparan/ClipScribe/internal/database"
	"github.com/dharsanguruparan/ClipScribe/internal/queue"
	"github.com/dharsanguruparan/ClipScribe/internal/repository"
	"github.com/dharsanguruparan/ClipScribe/internal/s3storage"
	"github.com/dharsanguruparan/ClipScribe/internal/videos"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	repo := repository.NewVideoRepository(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure bucket")
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()
	jobs := queue.NewClient(asynqClient, cfg.MaxRetries)

	svc := videos.NewService(repo, store, jobs, cfg.AllowedExtensions, log)
	srv := api.New(cfg, svc, log)

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
