package llm

import (
	"encoding/json"
	"strings"
)

// Instruction composes the fixed system message sent with every image.
// It pins the output schema so replies parse the same way regardless of
// which receipt is attached.
func Instruction() string {
	parts := []string{
		"You are a receipts parser. You are shown a photo of a paper receipt.",
		"Return ONLY a single JSON object that matches the provided JSON Schema. No markdown, no commentary.",
		"Use ISO-8601 dates (YYYY-MM-DD) for 'tx_date' and 24-hour HH:MM for 'tx_time'.",
		"Money fields ('subtotal', 'tip', 'total') are plain decimal numbers without currency symbols.",
		"Put the transaction/check/reference number in 'reference_number' if one is printed.",
		"Put any printed server, cashier, or customer names in the 'names' array.",
		"Include a 'confidence' object with a 0..1 score per field you extracted.",
		"Never output null. If a field is not present on the receipt, omit it.",
		"JSON Schema:\n" + mustJSON(BuildReceiptJSONSchema()),
	}
	return strings.Join(parts, " ")
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
