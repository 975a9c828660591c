package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/ClipScribe/internal/config"
	"github.com/dharsanguruparan/ClipScribe/internal/database"
	"github.com/dharsanguruparan/ClipScribe/internal/media"
	"github.com/dharsanguruparan/ClipScribe/internal/repository"
	"github.com/dharsanguruparan/ClipScribe/internal/s3storage"
	"github.com/dharsanguruparan/ClipScribe/internal/transcribe"
	"github.com/dharsanguruparan/ClipScribe/internal/worker"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "worker").Logger()

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

	tool := media.NewFFmpeg(cfg.FFmpegBin, cfg.FFmpegTimeout)
	transcriber := transcribe.NewClient(transcribe.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
	})

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info().Str("addr", cfg.MetricsAddress).Msg("metrics listening")
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})
	processor := worker.NewProcessor(repo, store, tool, transcriber, nil, log)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
