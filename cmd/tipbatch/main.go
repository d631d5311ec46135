package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/tiptally/tiptally/constants"
	"github.com/tiptally/tiptally/internal/cache"
	"github.com/tiptally/tiptally/internal/common"
	"github.com/tiptally/tiptally/internal/cost"
	"github.com/tiptally/tiptally/internal/llm"
	"github.com/tiptally/tiptally/internal/llm/openai"
	"github.com/tiptally/tiptally/internal/normalize"
	"github.com/tiptally/tiptally/internal/pipeline"
	"github.com/tiptally/tiptally/internal/retry"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	cfg := common.LoadConfig()

	fs := ff.NewFlagSet("tipbatch")
	var (
		dir   = fs.StringLong("dir", "", "directory of receipt images to process (required)")
		out   = fs.StringLong("out", "", "write the batch outcome JSON here instead of stdout")
		model = fs.StringLong("model", cfg.LLM.Model, "Vision model name")
		debug = fs.BoolLong("debug", "Enable debug logging")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("TIPTALLY")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		printError("error: %v\n", err)
		os.Exit(1)
	}
	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	cfg.LLM.Model = *model

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.LLM.APIKey == "" {
		printError("Error: OPENAI_API_KEY is required\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	items, err := collectImages(*dir)
	if err != nil {
		logger.Error("collecting images", "dir", *dir, "error", err)
		os.Exit(1)
	}

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
	coordinator := pipeline.NewCoordinator(logger, normalizer, extractor)

	outcome, err := coordinator.ProcessBatch(ctx, items)
	if err != nil {
		logger.Error("batch failed to start", "error", err)
		os.Exit(1)
	}

	b, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		logger.Error("encoding outcome", "error", err)
		os.Exit(1)
	}
	if *out != "" {
		if err := os.WriteFile(*out, b, 0o644); err != nil {
			logger.Error("writing outcome", "path", *out, "error", err)
			os.Exit(1)
		}
	} else {
		fmt.Println(string(b))
	}

	if outcome.Succeeded == 0 {
		os.Exit(1)
	}
}

// collectImages lists supported receipt files in dir, sorted by name so
// outcomes are stable run to run.
func collectImages(dir string) ([]normalize.RawImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var items []normalize.RawImage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if _, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]; !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		items = append(items, normalize.RawImage{
			Data:      data,
			MediaType: mime.TypeByExtension(ext),
			Filename:  e.Name(),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Filename < items[j].Filename })
	return items, nil
}
