package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/tiptally/tiptally/internal/cache"
	"github.com/tiptally/tiptally/internal/common"
	"github.com/tiptally/tiptally/internal/cost"
	"github.com/tiptally/tiptally/internal/llm"
	"github.com/tiptally/tiptally/internal/normalize"
	"github.com/tiptally/tiptally/internal/retry"
)

// CachingExtractor is the single-item extraction contract the batch
// coordinator depends on.
type CachingExtractor interface {
	ExtractWithCache(ctx context.Context, img *normalize.NormalizedImage, fingerprint string) (*llm.ExtractionResult, error)
}

// RetryingExtractor wraps the extraction client with the content cache
// and the transient-failure retry policy. Within one process a
// fingerprint with a live cache entry is never sent upstream again; two
// concurrent misses may still both call out, which the cache tolerates.
type RetryingExtractor struct {
	logger    *slog.Logger
	cache     *cache.ContentCache
	client    llm.FieldExtractor
	estimator *cost.Estimator
	policy    retry.Policy

	// sleeper overrides backoff waits in tests
	sleeper retry.Sleeper
}

func NewRetryingExtractor(
	logger *slog.Logger,
	c *cache.ContentCache,
	client llm.FieldExtractor,
	estimator *cost.Estimator,
	policy retry.Policy,
) *RetryingExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingExtractor{
		logger:    logger,
		cache:     c,
		client:    client,
		estimator: estimator,
		policy:    policy,
	}
}

// ExtractWithCache consults the cache first; on a miss it calls the
// client under the retry policy, attaches the cost estimate and stores
// the result. Failed extractions are propagated and never cached.
func (e *RetryingExtractor) ExtractWithCache(ctx context.Context, img *normalize.NormalizedImage, fingerprint string) (*llm.ExtractionResult, error) {
	start := time.Now()

	if res, ok := e.cache.Get(fingerprint); ok {
		e.logger.Info("extract.cache_hit",
			"fingerprint", fingerprint[:12],
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return res, nil
	}

	var fields llm.ReceiptFields
	var raw []byte
	err := retry.DoWithSleeper(ctx, e.policy, e.logger, common.IsRetryable, e.sleeper, func(ctx context.Context) error {
		f, r, callErr := e.client.ExtractFields(ctx, llm.ExtractRequest{
			ImageData:    img.Bytes,
			FilenameHint: img.Filename,
		})
		if callErr != nil {
			return callErr
		}
		fields, raw = f, r
		return nil
	})
	if err != nil {
		e.logger.Error("extract.failed",
			"fingerprint", fingerprint[:12], "err", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	res := &llm.ExtractionResult{
		Fields: fields,
		Cost:   e.estimator.Estimate(len(img.Bytes), len(raw)),
	}
	e.cache.Put(fingerprint, res)

	e.logger.Info("extract.ok",
		"fingerprint", fingerprint[:12],
		"merchant", fields.MerchantName,
		"total", fields.Total,
		"cost_usd", res.Cost.CostUSD,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
