package wallet_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/ledger"
	"github.com/clearportx/amm-client/pkg/wallet"
)

var _ = Describe("BridgeProvider", func() {
	var (
		server   *httptest.Server
		config   *wallet.Config
		handlers map[string]http.HandlerFunc
		bodies   map[string]map[string]interface{}
	)

	BeforeEach(func() {
		handlers = map[string]http.HandlerFunc{}
		bodies = map[string]map[string]interface{}{}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			bodies[r.URL.Path] = body
			if h, ok := handlers[r.URL.Path]; ok {
				h(w, r)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		config = testConfig()
		config.BridgeURL = server.URL
		config.AuthToken = "bridge-token"
	})

	AfterEach(func() {
		server.Close()
	})

	It("submits through execute-and-wait", func() {
		handlers["/transactions/execute-and-wait"] = func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer bridge-token"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"updateId": "upd-9", "txStatus": "SUCCEEDED"})
		}
		bridge, err := wallet.NewBridgeProvider(config)
		Expect(err).NotTo(HaveOccurred())

		res := wallet.NewSubmitter(config, bridge, nil).Submit(context.Background(), wallet.SubmitRequest{
			Commands:         []ledger.Command{ledger.NewCreateCommand("pkg:M:T", map[string]interface{}{"owner": "alice"})},
			ActAs:            []string{"alice::1220"},
			DeduplicationKey: "dedup-1",
		})
		Expect(res.IsOk()).To(BeTrue())
		Expect(res.Value().LedgerUpdateID).To(Equal("upd-9"))

		envelope := bodies["/transactions/execute-and-wait"]["envelope"].(map[string]interface{})
		Expect(envelope["commandId"]).To(Equal("dedup-1"))
		Expect(envelope["applicationId"]).To(Equal("clearportx"))
	})

	It("prepares transfers", func() {
		handlers["/transfers/prepare"] = func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"commands": []interface{}{map[string]interface{}{"ExerciseCommand": map[string]interface{}{"choice": "TransferFactory_Transfer"}}},
			})
		}
		bridge, err := wallet.NewBridgeProvider(config)
		Expect(err).NotTo(HaveOccurred())

		now := time.Now()
		sub, derr := wallet.NewSubmitter(config, bridge, nil).PrepareTransfer(context.Background(), wallet.TransferRequest{
			Recipient:     "operator::1220",
			Amount:        decimal.RequireFromString("2.5"),
			Instrument:    wallet.InstrumentRef{Admin: "admin::1", ID: "CBTC"},
			RequestedAt:   now,
			ExecuteBefore: now.Add(time.Minute),
		})
		Expect(derr).To(BeNil())
		Expect(sub.Commands).To(HaveLen(1))

		sent := bodies["/transfers/prepare"]
		Expect(sent["amount"]).To(Equal("2.5"))
		Expect(sent["instrument"]).To(HaveKeyWithValue("instrument_id", "CBTC"))
	})

	It("maps bridge errors onto domain codes", func() {
		handlers["/transactions/execute-and-wait"] = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "USER_CANCELLED", "message": "user closed the popup"})
		}
		bridge, err := wallet.NewBridgeProvider(config)
		Expect(err).NotTo(HaveOccurred())

		res := wallet.NewSubmitter(config, bridge, nil).Submit(context.Background(), wallet.SubmitRequest{
			Commands: exerciseCommands(),
			ActAs:    []string{"alice::1220"},
		})
		Expect(res.Error().Code).To(Equal(domain.CodeUserCancelled))
		Expect(res.Error().HTTPStatus).To(Equal(http.StatusForbidden))
	})

	It("requires a bridge URL", func() {
		config.BridgeURL = ""
		_, err := wallet.NewBridgeProvider(config)
		Expect(err).To(HaveOccurred())
	})
})
