package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/backend"
	"github.com/clearportx/amm-client/pkg/domain"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		mu       sync.Mutex
		handlers map[string]http.HandlerFunc
		hits     map[string]int
		sleeps   []time.Duration
		client   *backend.Client
	)

	newClient := func() *backend.Client {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		c, err := backend.NewClient(&backend.Config{
			BaseURL:            server.URL,
			RequestTimeout:     5 * time.Second,
			Party:              "alice::1220",
			AuthToken:          "backend-token",
			ConflictRetryDelay: 3500 * time.Millisecond,
			Logger:             logger,
		}, backend.WithSleep(func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		}))
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		handlers = map[string]http.HandlerFunc{}
		hits = map[string]int{}
		sleeps = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits[r.URL.Path]++
			h, ok := handlers[r.URL.Path]
			mu.Unlock()
			if ok {
				h(w, r)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		client = newClient()
	})

	AfterEach(func() {
		server.Close()
	})

	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	Describe("conflict handling", func() {
		It("retries a 409 exactly once after retry_after_ms", func() {
			handlers["/pool/fetch-cid"] = func(w http.ResponseWriter, r *http.Request) {
				if hits["/pool/fetch-cid"] == 1 {
					writeJSON(w, http.StatusConflict, map[string]interface{}{
						"success": false, "error": "CONTRACT_NOT_ACTIVE", "message": "stale", "retry_after_ms": 1200,
					})
					return
				}
				writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "visible": true})
			}

			visible, err := client.FetchPoolVisible(context.Background(), "pool-cid-1", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(visible).To(BeTrue())
			Expect(hits["/pool/fetch-cid"]).To(Equal(2))
			Expect(sleeps).To(Equal([]time.Duration{1200 * time.Millisecond}))
		})

		It("falls back to the configured delay when none is suggested", func() {
			handlers["/pool/fetch-cid"] = func(w http.ResponseWriter, r *http.Request) {
				if hits["/pool/fetch-cid"] == 1 {
					w.WriteHeader(http.StatusConflict)
					return
				}
				writeJSON(w, http.StatusOK, map[string]interface{}{"visible": false})
			}

			_, err := client.FetchPoolVisible(context.Background(), "pool-cid-1", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(sleeps).To(Equal([]time.Duration{3500 * time.Millisecond}))
		})

		It("reports STALE_VISIBILITY after a second conflict", func() {
			handlers["/resolve-and-grant"] = func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusConflict, map[string]interface{}{"code": "STALE", "message": "stale", "retry_after_ms": 10})
			}

			_, err := client.ResolveAndGrant(context.Background(), "ETH-USDC-01", "")
			Expect(err).To(HaveOccurred())

			var derr *domain.DomainError
			Expect(errors.As(err, &derr)).To(BeTrue())
			Expect(derr.Code).To(Equal(domain.CodeStaleVisibility))
			Expect(derr.HTTPStatus).To(Equal(http.StatusConflict))
			Expect(hits["/resolve-and-grant"]).To(Equal(2))
		})
	})

	Describe("error bodies", func() {
		It("parses {code, message}", func() {
			handlers["/pools-for-party"] = func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"code": "BAD_PARTY", "message": "unknown party"})
			}
			_, err := client.PoolsForParty(context.Background(), "")

			var apiErr *backend.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Code()).To(Equal("BAD_PARTY"))
			Expect(apiErr.Message).To(Equal("unknown party"))
		})

		It("parses the nested envelope error", func() {
			handlers["/liquidity/consume"] = func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
					"ok": false,
					"error": map[string]interface{}{
						"code": "MISSING_INBOUND_TIS_FOR_POOL_INSTRUMENT", "message": "no inbound", "retryable": true,
					},
				})
			}
			_, err := client.ConsumeLiquidity(context.Background(), backend.ConsumeRequest{RequestID: "liq-1", PoolCid: "p"})

			var apiErr *backend.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Code()).To(Equal("MISSING_INBOUND_TIS_FOR_POOL_INSTRUMENT"))
			Expect(apiErr.Retryable).To(BeTrue())
			Expect(apiErr.StatusCode()).To(Equal(http.StatusUnprocessableEntity))
		})

		It("treats {success:false, error} as a code only when it looks like one", func() {
			handlers["/resolve-and-grant"] = func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
					"success": false, "error": "java.lang.IllegalStateException: grant failed",
				})
			}
			_, err := client.ResolveAndGrant(context.Background(), "ETH-USDC-01", "")

			var apiErr *backend.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Code()).To(BeEmpty())
			Expect(apiErr.Message).To(Equal("java.lang.IllegalStateException: grant failed"))

			handlers["/resolve-and-grant"] = func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "POOL_NOT_FOUND"})
			}
			_, err = client.ResolveAndGrant(context.Background(), "ETH-USDC-01", "")
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Code()).To(Equal("POOL_NOT_FOUND"))
			Expect(apiErr.Message).To(Equal(http.StatusText(http.StatusBadRequest)))
		})

		It("keeps plain text bodies as the message", func() {
			handlers["/holdings/select"] = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("upstream down"))
			}
			_, err := client.SelectHolding(context.Background(), backend.HoldingSelectRequest{TimeoutSeconds: 1})

			var apiErr *backend.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Message).To(Equal("upstream down"))
		})
	})

	Describe("endpoints", func() {
		It("sends the party header and bearer token", func() {
			handlers["/resolve-and-grant"] = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Header.Get("X-Party")).To(Equal("alice::1220"))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer backend-token"))
				var req backend.ResolveRequest
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
				Expect(req.PoolID).To(Equal("ETH-USDC-01"))
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"success": true, "poolId": "ETH-USDC-01", "poolCid": "cid-7", "packageId": "abc123", "visibilityGranted": true,
				})
			}
			res, err := client.ResolveAndGrant(context.Background(), "ETH-USDC-01", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.PoolCid).To(Equal("cid-7"))
			Expect(res.VisibilityGranted).To(BeTrue())
		})

		It("decodes pools with string reserves", func() {
			handlers["/pools-for-party"] = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Query().Get("party")).To(Equal("bob::1220"))
				_, _ = w.Write([]byte(`[{"poolId":"ETH-USDC-01","poolCid":"c1","symbolA":"ETH","symbolB":"USDC","reserveA":"10.5","reserveB":"2000"}]`))
			}
			pools, err := client.PoolsForParty(context.Background(), "bob::1220")
			Expect(err).NotTo(HaveOccurred())
			Expect(pools).To(HaveLen(1))
			Expect(pools[0].ReserveProduct().Equal(decimal.RequireFromString("21000"))).To(BeTrue())
		})

		It("accepts the wrapped pools shape", func() {
			handlers["/pools-for-party"] = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":true,"pools":[{"poolId":"X","poolCid":"c2","reserveA":"1","reserveB":"1"}]}`))
			}
			pools, err := client.PoolsForParty(context.Background(), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(pools).To(HaveLen(1))
			Expect(pools[0].PoolCid).To(Equal("c2"))
		})

		It("unwraps the liquidity envelope", func() {
			handlers["/liquidity/consume"] = func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"ok": true, "requestId": "liq-1",
					"result": map[string]interface{}{"requestId": "liq-1", "newPoolCid": "cid-8", "lpMinted": "3.25"},
				})
			}
			res, err := client.ConsumeLiquidity(context.Background(), backend.ConsumeRequest{RequestID: "liq-1", PoolCid: "cid-7"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NewPoolCid).To(Equal("cid-8"))
			Expect(res.LpMinted.String()).To(Equal("3.25"))
		})

		It("turns a 200 envelope with ok=false into an error", func() {
			handlers["/liquidity/inspect"] = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Query().Get("requestId")).To(Equal("liq-2"))
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"ok": false, "error": map[string]interface{}{"code": "NOT_FOUND", "message": "unknown request"},
				})
			}
			_, err := client.InspectLiquidity(context.Background(), "liq-2")

			var apiErr *backend.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Code()).To(Equal("NOT_FOUND"))
		})

		It("validates required arguments before calling out", func() {
			_, err := client.ResolveAndGrant(context.Background(), "", "")
			Expect(domain.IsDomainError(err, domain.CodeValidation)).To(BeTrue())
			_, err = client.InspectLiquidity(context.Background(), "")
			Expect(domain.IsDomainError(err, domain.CodeValidation)).To(BeTrue())
			Expect(hits).To(BeEmpty())
		})
	})
})
