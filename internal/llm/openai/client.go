package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/tiptally/tiptally/internal/common"
	"github.com/tiptally/tiptally/internal/llm"
)

// ExtractFields implements llm.FieldExtractor over vision chat
// completions: one call, one image, one JSON object back.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.ReceiptFields, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"image_bytes", len(req.ImageData),
		"filename", req.FilenameHint,
	)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.ImageData)

	chatReq := goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: llm.Instruction(),
			},
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{
						Type: goopenai.ChatMessagePartTypeText,
						Text: "Extract the receipt fields from this image. Return ONLY JSON.",
					},
					{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: goopenai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}

	resp, err := c.api.CreateChatCompletion(callCtx, chatReq)
	if err != nil {
		classified := classify(err)
		c.logger.Error("llm.extract.call_failed",
			"req_id", rid, "error", err,
			"retryable", common.IsRetryable(classified),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ReceiptFields{}, nil, classified
	}
	if len(resp.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices", "req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds())
		return llm.ReceiptFields{}, nil, common.NewAppError("MALFORMED_RESPONSE",
			"no choices in model response", common.ErrMalformedResponse)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	obj, err := llm.ExtractObject(content)
	if err != nil {
		c.logger.Error("llm.extract.parse_failed",
			"req_id", rid, "error", err, "content_bytes", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ReceiptFields{}, []byte(content), err
	}

	cleaned, _, err := llm.NormalizeAndSanitizeJSON(obj, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.sanitize_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ReceiptFields{}, obj, common.NewAppError("MALFORMED_RESPONSE",
			"sanitize failed: "+err.Error(), common.ErrMalformedResponse)
	}

	if err := llm.ValidateReceiptJSON(cleaned); err != nil {
		c.logger.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(cleaned),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ReceiptFields{}, cleaned, common.NewAppError("MALFORMED_RESPONSE",
			"schema validation failed: "+err.Error(), common.ErrMalformedResponse)
	}

	var out llm.ReceiptFields
	if err := json.Unmarshal(cleaned, &out); err != nil {
		c.logger.Error("llm.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ReceiptFields{}, cleaned, fmt.Errorf("unmarshal fields: %w", err)
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"merchant", out.MerchantName,
		"date", out.TxDate,
		"total", out.Total,
		"tip", out.Tip,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, cleaned, nil
}

// classify maps transport and API failures onto the pipeline taxonomy.
// Rate limits, 5xx and timeouts are transient; credential problems and
// bad requests are terminal.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return common.NewAppError("TRANSIENT_SERVICE_ERROR",
				fmt.Sprintf("upstream status %d", apiErr.HTTPStatusCode),
				errors.Join(common.ErrTransientService, err))
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return common.NewAppError("AUTHENTICATION_ERROR",
				fmt.Sprintf("upstream status %d", apiErr.HTTPStatusCode),
				errors.Join(common.ErrAuthentication, err))
		default:
			return common.NewAppError("INVALID_REQUEST",
				fmt.Sprintf("upstream status %d", apiErr.HTTPStatusCode),
				errors.Join(common.ErrInvalidRequest, err))
		}
	}

	// Timeouts count as transient for retry purposes.
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewAppError("TRANSIENT_SERVICE_ERROR", "call timed out",
			errors.Join(common.ErrTransientService, err))
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return common.NewAppError("TRANSIENT_SERVICE_ERROR", "network error",
			errors.Join(common.ErrTransientService, err))
	}

	return common.NewAppError("TRANSIENT_SERVICE_ERROR", "upstream call failed",
		errors.Join(common.ErrTransientService, err))
}
