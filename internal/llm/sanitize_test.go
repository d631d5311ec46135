package llm

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NormalizeAndSanitizeJSON", func() {
	var (
		raw     string
		cleaned map[string]any
		err     error
	)

	JustBeforeEach(func() {
		var out []byte
		out, _, err = NormalizeAndSanitizeJSON([]byte(raw), nil)
		Expect(err).NotTo(HaveOccurred())
		cleaned = map[string]any{}
		Expect(json.Unmarshal(out, &cleaned)).To(Succeed())
	})

	When("the tip is a bare integer", func() {
		BeforeEach(func() {
			raw = `{"merchant_name": "Diner", "total": 12, "tip": 5}`
		})

		It("should coerce tip to two decimals", func() {
			Expect(cleaned["tip"]).To(Equal("5.00"))
		})

		It("should coerce total to two decimals", func() {
			Expect(cleaned["total"]).To(Equal("12.00"))
		})
	})

	When("the tip is a one-decimal string", func() {
		BeforeEach(func() {
			raw = `{"merchant_name": "Diner", "total": "12.0", "tip": "5.5"}`
		})

		It("should coerce tip to two decimals", func() {
			Expect(cleaned["tip"]).To(Equal("5.50"))
		})
	})

	When("the tip is already two-decimal", func() {
		BeforeEach(func() {
			raw = `{"merchant_name": "Diner", "total": "12.00", "tip": 5.50}`
		})

		It("should keep the two-decimal form", func() {
			Expect(cleaned["tip"]).To(Equal("5.50"))
		})
	})

	When("money fields carry currency symbols or nulls", func() {
		BeforeEach(func() {
			raw = `{"merchant_name": "Diner", "total": "$8.75", "subtotal": null, "tip": ""}`
		})

		It("should strip the symbol", func() {
			Expect(cleaned["total"]).To(Equal("8.75"))
		})

		It("should drop null and empty optionals", func() {
			Expect(cleaned).NotTo(HaveKey("subtotal"))
			Expect(cleaned).NotTo(HaveKey("tip"))
		})
	})

	When("a non-money optional is JSON null", func() {
		BeforeEach(func() {
			raw = `{"merchant_name": "Diner", "total": "12.00", "tx_time": null, "payment_method": null}`
		})

		It("should drop the null fields", func() {
			Expect(cleaned).NotTo(HaveKey("tx_time"))
			Expect(cleaned).NotTo(HaveKey("payment_method"))
		})

		It("should not synthesize confidence for them", func() {
			conf, ok := cleaned["confidence"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(conf).NotTo(HaveKey("tx_time"))
			Expect(conf).NotTo(HaveKey("payment_method"))
		})

		It("should produce output that passes schema validation", func() {
			out, _, serr := NormalizeAndSanitizeJSON([]byte(raw), nil)
			Expect(serr).NotTo(HaveOccurred())
			Expect(ValidateReceiptJSON(out)).To(Succeed())
		})
	})

	When("the model invents keys", func() {
		BeforeEach(func() {
			raw = `{"merchant_name": "Diner", "total": "1.00", "vibes": "good"}`
		})

		It("should remove unknown keys", func() {
			Expect(cleaned).NotTo(HaveKey("vibes"))
		})
	})

	When("confidence scores are missing", func() {
		BeforeEach(func() {
			raw = `{"merchant_name": "Diner", "total": "1.00", "tip": "0.50"}`
		})

		It("should synthesize a score per populated field", func() {
			conf, ok := cleaned["confidence"].(map[string]any)
			Expect(ok).To(BeTrue())
			for _, k := range []string{"merchant_name", "total", "tip"} {
				Expect(conf).To(HaveKey(k))
				score := conf[k].(float64)
				Expect(score).To(BeNumerically(">=", 0.8))
				Expect(score).To(BeNumerically("<", 1.0))
			}
		})
	})

	When("confidence scores are present", func() {
		BeforeEach(func() {
			raw = `{"merchant_name": "Diner", "total": "1.00", "confidence": {"merchant_name": 0.42, "total": 1.7}}`
		})

		It("should keep supplied scores", func() {
			conf := cleaned["confidence"].(map[string]any)
			Expect(conf["merchant_name"]).To(Equal(0.42))
		})

		It("should clamp out-of-range scores", func() {
			conf := cleaned["confidence"].(map[string]any)
			Expect(conf["total"]).To(Equal(1.0))
		})
	})

	When("names need pruning", func() {
		BeforeEach(func() {
			raw = `{"merchant_name": "Diner", "total": "1.00", "names": ["Alex", "  ", "Sam "]}`
		})

		It("should keep trimmed non-empty names", func() {
			Expect(cleaned["names"]).To(Equal([]any{"Alex", "Sam"}))
		})
	})
})

var _ = Describe("ValidateReceiptJSON", func() {
	It("should accept sanitized output", func() {
		out, _, err := NormalizeAndSanitizeJSON([]byte(`{"merchant_name": "Diner", "tx_date": "2026-03-01", "total": 12, "tip": "5.5"}`), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(ValidateReceiptJSON(out)).To(Succeed())
	})

	It("should reject output missing required fields", func() {
		Expect(ValidateReceiptJSON([]byte(`{"tip": "5.00"}`))).NotTo(Succeed())
	})

	It("should reject malformed money strings", func() {
		Expect(ValidateReceiptJSON([]byte(`{"merchant_name": "Diner", "total": "12.5"}`))).NotTo(Succeed())
	})
})
