package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/tiptally/tiptally/internal/cache"
	"github.com/tiptally/tiptally/internal/common"
	"github.com/tiptally/tiptally/internal/cost"
	"github.com/tiptally/tiptally/internal/llm"
	"github.com/tiptally/tiptally/internal/llm/openai"
	"github.com/tiptally/tiptally/internal/normalize"
	"github.com/tiptally/tiptally/internal/pipeline"
	"github.com/tiptally/tiptally/internal/retry"
	"github.com/tiptally/tiptally/internal/server"
)

func main() {
	cfg := common.LoadConfig()

	fs := ff.NewFlagSet("tiptallyd")
	var (
		addr       = fs.StringLong("addr", cfg.Server.Addr, "HTTP listen address")
		stagingDir = fs.StringLong("staging-dir", cfg.Normalize.StagingDir, "Directory for transient normalized images")
		cacheTTL   = fs.DurationLong("cache-ttl", cfg.Cache.TTL, "Extraction cache time-to-live")
		model      = fs.StringLong("model", cfg.LLM.Model, "Vision model name")
		debug      = fs.BoolLong("debug", "Enable debug logging")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("TIPTALLY")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg.Server.Addr = *addr
	cfg.Normalize.StagingDir = *stagingDir
	cfg.Cache.TTL = *cacheTTL
	cfg.LLM.Model = *model

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator, contentCache := buildPipeline(cfg, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(logger, coordinator, contentCache, cfg.Server.MaxUploadBytes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http.serving", "addr", cfg.Server.Addr, "model", cfg.LLM.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http.serve_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http.shutdown_failed", "error", err)
	}
	fmt.Println("stopped.")
}

func buildPipeline(cfg *common.Config, logger *slog.Logger) (*pipeline.Coordinator, *cache.ContentCache) {
	normalizer := normalize.NewNormalizer(cfg.Normalize, logger)
	contentCache := cache.New(cfg.Cache.TTL, logger)

	client := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	estimator := cost.NewEstimator(cfg.LLM.Model, llm.Instruction())
	extractor := pipeline.NewRetryingExtractor(logger, contentCache, client, estimator, retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		Multiplier:  cfg.Retry.Multiplier,
	})

	return pipeline.NewCoordinator(logger, normalizer, extractor), contentCache
}
