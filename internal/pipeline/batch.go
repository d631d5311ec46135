package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiptally/tiptally/internal/common"
	"github.com/tiptally/tiptally/internal/llm"
	"github.com/tiptally/tiptally/internal/normalize"
)

// ItemOutcome is the per-item slot in a batch result: either an
// extraction result or an error description, tagged with the item's
// position and original filename.
type ItemOutcome struct {
	Index    int                   `json:"index"`
	Filename string                `json:"filename,omitempty"`
	Result   *llm.ExtractionResult `json:"result,omitempty"`
	Error    string                `json:"error,omitempty"`
}

func (o ItemOutcome) Succeeded() bool { return o.Error == "" }

// BatchOutcome aggregates a whole batch; Items preserves input order.
type BatchOutcome struct {
	Submitted int           `json:"submitted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Items     []ItemOutcome `json:"items"`
}

// Coordinator drives raw uploads through normalize → fingerprint →
// extract. Items run strictly sequentially to stay inside the upstream
// service's rate limits; one item's failure never aborts the rest.
type Coordinator struct {
	logger     *slog.Logger
	normalizer *normalize.Normalizer
	extractor  CachingExtractor
}

func NewCoordinator(logger *slog.Logger, n *normalize.Normalizer, e CachingExtractor) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger, normalizer: n, extractor: e}
}

// ProcessOne handles a single-image submission. Terminal errors
// propagate to the caller as typed failures.
func (c *Coordinator) ProcessOne(ctx context.Context, raw normalize.RawImage) (*llm.ExtractionResult, error) {
	return c.processItem(ctx, raw)
}

// ProcessBatch processes items in order and returns an aggregate
// outcome. Only an empty batch fails at the top level; per-item errors
// are captured in the outcome list.
func (c *Coordinator) ProcessBatch(ctx context.Context, items []normalize.RawImage) (*BatchOutcome, error) {
	if len(items) == 0 {
		return nil, common.NewAppError("EMPTY_BATCH", "no images submitted", common.ErrInvalidRequest)
	}

	batchID := uuid.New().String()
	start := time.Now()
	c.logger.Info("batch.start", "batch_id", batchID, "items", len(items))

	out := &BatchOutcome{
		Submitted: len(items),
		Items:     make([]ItemOutcome, 0, len(items)),
	}

	for i, raw := range items {
		// Once the caller cancels, skip the remaining items without
		// spending normalization work on them.
		if err := ctx.Err(); err != nil {
			c.logger.Warn("batch.item.skipped",
				"batch_id", batchID, "index", i, "filename", raw.Filename, "err", err)
			out.Failed++
			out.Items = append(out.Items, ItemOutcome{
				Index:    i,
				Filename: raw.Filename,
				Error:    err.Error(),
			})
			continue
		}

		res, err := c.processItem(ctx, raw)
		if err != nil {
			c.logger.Warn("batch.item.failed",
				"batch_id", batchID, "index", i, "filename", raw.Filename, "err", err)
			out.Failed++
			out.Items = append(out.Items, ItemOutcome{
				Index:    i,
				Filename: raw.Filename,
				Error:    err.Error(),
			})
			continue
		}
		out.Succeeded++
		out.Items = append(out.Items, ItemOutcome{
			Index:    i,
			Filename: raw.Filename,
			Result:   res,
		})
	}

	c.logger.Info("batch.done",
		"batch_id", batchID,
		"succeeded", out.Succeeded,
		"failed", out.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// processItem owns the item's normalized image for its whole lifetime;
// the staging file is released on every exit path, error or not.
func (c *Coordinator) processItem(ctx context.Context, raw normalize.RawImage) (*llm.ExtractionResult, error) {
	img, err := c.normalizer.Normalize(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := img.Release(); rerr != nil {
			c.logger.Warn("batch.item.release_failed", "path", img.StagingPath, "err", rerr)
		}
	}()

	return c.extractor.ExtractWithCache(ctx, img, img.Fingerprint())
}
