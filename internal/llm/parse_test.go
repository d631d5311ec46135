package llm

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tiptally/tiptally/internal/common"
)

var _ = Describe("ExtractObject", func() {
	var (
		reply string
		obj   []byte
		err   error
	)

	JustBeforeEach(func() {
		obj, err = ExtractObject(reply)
	})

	When("the reply is a bare JSON object", func() {
		BeforeEach(func() {
			reply = `{"merchant_name": "Luigi's", "total": "41.00"}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the object unchanged", func() {
			Expect(string(obj)).To(Equal(reply))
		})
	})

	When("the object is wrapped in markdown fences", func() {
		BeforeEach(func() {
			reply = "```json\n{\"merchant_name\": \"Luigi's\", \"total\": \"41.00\"}\n```"
		})

		It("should extract the object span", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(obj)).To(Equal(`{"merchant_name": "Luigi's", "total": "41.00"}`))
		})
	})

	When("the object is surrounded by chatter", func() {
		BeforeEach(func() {
			reply = `Here is the receipt you asked for: {"total": "9.99"} — let me know if you need anything else.`
		})

		It("should extract the object span", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(obj)).To(Equal(`{"total": "9.99"}`))
		})
	})

	When("string values contain braces", func() {
		BeforeEach(func() {
			reply = `text {"merchant_name": "Curly {Brace} Cafe", "total": "1.00"} more text`
		})

		It("should keep the braces balanced through the string", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(obj)).To(Equal(`{"merchant_name": "Curly {Brace} Cafe", "total": "1.00"}`))
		})
	})

	When("the object is nested", func() {
		BeforeEach(func() {
			reply = `{"fields": {"total": "3.00"}, "confidence": {"total": 0.9}}`
		})

		It("should return the whole outer object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(obj)).To(Equal(reply))
		})
	})

	When("there is no JSON object at all", func() {
		BeforeEach(func() {
			reply = "I could not read this receipt, sorry."
		})

		It("should return a malformed-response error", func() {
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, common.ErrMalformedResponse)).To(BeTrue())
		})
	})

	When("the braces never balance", func() {
		BeforeEach(func() {
			reply = `{"merchant_name": "Truncated`
		})

		It("should return a malformed-response error", func() {
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, common.ErrMalformedResponse)).To(BeTrue())
		})
	})
})
