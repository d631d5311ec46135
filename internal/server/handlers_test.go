package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tiptally/tiptally/internal/cache"
	"github.com/tiptally/tiptally/internal/llm"
	"github.com/tiptally/tiptally/internal/pipeline"
)

var _ = Describe("Server", func() {
	var (
		client     *stubClient
		contentCch *cache.ContentCache
		srv        *Server
		rec        *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		client = &stubClient{fields: stubFields}
		contentCch = cache.New(time.Hour, nil)
		srv = newTestServer(client, contentCch)
		rec = httptest.NewRecorder()
	})

	Describe("POST /api/extract", func() {
		It("should return the extraction result for a valid image", func() {
			body, ct := multipartBody(uploadPart{
				field: "file", filename: "dinner.png", contentType: "image/png", data: testPNG(3),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
			req.Header.Set("Content-Type", ct)

			srv.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("X-Request-Id")).NotTo(BeEmpty())

			var res llm.ExtractionResult
			Expect(json.Unmarshal(rec.Body.Bytes(), &res)).To(Succeed())
			Expect(res.Fields.MerchantName).To(Equal("Harbor Grill"))
			Expect(res.Fields.Total).To(Equal("62.00"))
			Expect(res.Cost.InputTokens).To(BeNumerically(">", 0))
		})

		It("should reject an unsupported media type with 415", func() {
			body, ct := multipartBody(uploadPart{
				field: "file", filename: "notes.txt", contentType: "text/plain", data: []byte("not an image"),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
			req.Header.Set("Content-Type", ct)

			srv.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnsupportedMediaType))
			Expect(rec.Body.String()).To(ContainSubstring("UNSUPPORTED_MEDIA_TYPE"))
		})

		It("should reject a corrupt image with 422", func() {
			body, ct := multipartBody(uploadPart{
				field: "file", filename: "broken.png", contentType: "image/png", data: []byte("truncated"),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
			req.Header.Set("Content-Type", ct)

			srv.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		})

		It("should return 400 when no file part is present", func() {
			body, ct := multipartBody()
			req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
			req.Header.Set("Content-Type", ct)

			srv.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should infer the media type from the extension when the part omits it", func() {
			body, ct := multipartBody(uploadPart{
				field: "file", filename: "lunch.png", contentType: "application/octet-stream", data: testPNG(5),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
			req.Header.Set("Content-Type", ct)

			srv.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /api/extract/batch", func() {
		It("should return per-item outcomes with one corrupt item isolated", func() {
			body, ct := multipartBody(
				uploadPart{field: "files", filename: "a.png", contentType: "image/png", data: testPNG(1)},
				uploadPart{field: "files", filename: "b.png", contentType: "image/png", data: []byte("corrupt")},
				uploadPart{field: "files", filename: "c.png", contentType: "image/png", data: testPNG(9)},
			)
			req := httptest.NewRequest(http.MethodPost, "/api/extract/batch", body)
			req.Header.Set("Content-Type", ct)

			srv.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))

			var out pipeline.BatchOutcome
			Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
			Expect(out.Submitted).To(Equal(3))
			Expect(out.Succeeded).To(Equal(2))
			Expect(out.Failed).To(Equal(1))
			Expect(out.Items[1].Filename).To(Equal("b.png"))
			Expect(out.Items[1].Error).NotTo(BeEmpty())
			Expect(out.Items[2].Result).NotTo(BeNil())
		})

		It("should return 400 for an empty batch", func() {
			body, ct := multipartBody()
			req := httptest.NewRequest(http.MethodPost, "/api/extract/batch", body)
			req.Header.Set("Content-Type", ct)

			srv.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("EMPTY_BATCH"))
		})
	})

	Describe("cache endpoints", func() {
		extractOnce := func(seed int) {
			body, ct := multipartBody(uploadPart{
				field: "file", filename: "r.png", contentType: "image/png", data: testPNG(seed),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusOK))
		}

		It("should report hits and misses after repeated extractions", func() {
			extractOnce(2)
			extractOnce(2)

			req := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
			srv.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var stats cache.Stats
			Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
			Expect(stats.Misses).To(Equal(int64(1)))
			Expect(stats.Hits).To(Equal(int64(1)))
			Expect(stats.Entries).To(Equal(1))
			Expect(client.callCount()).To(Equal(1))
		})

		It("should flush all entries and report the count", func() {
			extractOnce(4)
			extractOnce(6)

			req := httptest.NewRequest(http.MethodPost, "/api/cache/flush", nil)
			srv.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"removed": 2}`))
		})
	})

	Describe("GET /healthz", func() {
		It("should report ok", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			srv.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"status": "ok"}`))
		})
	})
})
