package llm

import (
	"context"

	"github.com/tiptally/tiptally/internal/cost"
)

// ReceiptFields is the normalized shape we want from the extraction model.
// Money fields are decimal strings with exactly two places; Confidence
// carries one score per populated field, keyed by JSON field name.
type ReceiptFields struct {
	MerchantName    string             `json:"merchant_name"`
	TxDate          string             `json:"tx_date"`           // YYYY-MM-DD
	TxTime          string             `json:"tx_time,omitempty"` // HH:MM, 24h
	ReferenceNumber string             `json:"reference_number,omitempty"`
	Subtotal        string             `json:"subtotal,omitempty"` // decimal
	Tip             string             `json:"tip,omitempty"`      // decimal
	Total           string             `json:"total"`              // decimal
	PaymentMethod   string             `json:"payment_method,omitempty"`
	Names           []string           `json:"names,omitempty"` // server/customer names on the slip
	Confidence      map[string]float64 `json:"confidence"`      // 0..1 per field
}

// ExtractionResult is the canonical pipeline output: the parsed fields
// plus the cost estimate for the upstream call that produced them.
// Results are immutable once created; cache entries are snapshots of
// this struct.
type ExtractionResult struct {
	Fields ReceiptFields `json:"fields"`
	Cost   cost.Estimate `json:"cost_estimate"`
}

// ExtractRequest is one call to the extraction capability.
type ExtractRequest struct {
	ImageData    []byte // normalized JPEG bytes
	FilenameHint string
}

// FieldExtractor is the interface the pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (ReceiptFields, []byte /*rawJSON*/, error)
}
