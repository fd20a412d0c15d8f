package wallet_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/ledger"
	"github.com/clearportx/amm-client/pkg/retry"
	"github.com/clearportx/amm-client/pkg/wallet"
)

var _ = Describe("Submitter", func() {
	var (
		ctx    context.Context
		config *wallet.Config
		rec    *recorder
		slept  []time.Duration
	)

	newSubmitter := func(p wallet.Provider) *wallet.Submitter {
		return wallet.NewSubmitter(config, p, nil, wallet.WithExecutor(noSleepExecutor(config.Logger, &slept)))
	}

	request := func() wallet.SubmitRequest {
		return wallet.SubmitRequest{
			Commands:         exerciseCommands(),
			ActAs:            []string{"alice::1220"},
			DeduplicationKey: "liq-42-a",
			Memo:             `{"requestId":"liq-42"}`,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		config = testConfig()
		rec = &recorder{}
		slept = nil
	})

	Context("preconditions", func() {
		It("returns NO_PROVIDER without a provider", func() {
			res := newSubmitter(nil).Submit(ctx, request())
			Expect(res.IsOk()).To(BeFalse())
			Expect(res.Error().Code).To(Equal(domain.CodeNoProvider))
		})

		It("returns VALIDATION without touching the provider", func() {
			s := newSubmitter(waitOnly{rec})

			req := request()
			req.Commands = nil
			Expect(s.Submit(ctx, req).Error().Code).To(Equal(domain.CodeValidation))

			req = request()
			req.ActAs = nil
			Expect(s.Submit(ctx, req).Error().Code).To(Equal(domain.CodeValidation))

			Expect(rec.calls).To(BeZero())
		})

		It("can connect a provider later", func() {
			s := newSubmitter(nil)
			s.SetProvider(waitOnly{rec})
			Expect(s.Submit(ctx, request()).IsOk()).To(BeTrue())
		})
	})

	Context("pacing", func() {
		It("spaces back-to-back submissions by the minimum gap", func() {
			config.MinGap = 150 * time.Millisecond
			var stamps []time.Time
			rec.respond = func(call int) (wallet.Response, error) {
				stamps = append(stamps, time.Now())
				if call == 1 {
					return nil, errors.New("wallet rejected the envelope")
				}
				return wallet.Response{"updateId": "upd-2", "txStatus": "SUCCEEDED"}, nil
			}
			s := wallet.NewSubmitter(config, waitOnly{rec}, retry.NewPacer(config.MinGap, nil))

			Expect(s.Submit(ctx, request()).IsOk()).To(BeFalse())
			Expect(s.Submit(ctx, request()).IsOk()).To(BeTrue())

			Expect(stamps).To(HaveLen(2))
			Expect(stamps[1].Sub(stamps[0])).To(BeNumerically(">=", config.MinGap-10*time.Millisecond))
		})
	})

	Context("mode selection", func() {
		It("prefers submitAndWaitForTransaction in WAIT mode", func() {
			res := newSubmitter(waitAndLegacy{rec}).Submit(ctx, request())
			Expect(res.IsOk()).To(BeTrue())
			Expect(rec.methods).To(Equal([]string{"submitAndWaitForTransaction"}))
			Expect(rec.opts[0].TimeoutMs).To(Equal(int64(120000)))
			Expect(rec.opts[0].Mode).To(BeEmpty())
			Expect(res.Value().Mode).To(Equal(wallet.ModeWait))
		})

		It("falls through to executeAndWait", func() {
			res := newSubmitter(executeOnly{rec}).Submit(ctx, request())
			Expect(res.IsOk()).To(BeTrue())
			Expect(rec.methods).To(Equal([]string{"executeAndWait"}))
		})

		It("falls back to legacy with the execute-and-wait hint", func() {
			res := newSubmitter(legacyOnly{rec}).Submit(ctx, request())
			Expect(res.IsOk()).To(BeTrue())
			Expect(rec.methods).To(Equal([]string{"submitTransaction"}))
			Expect(rec.opts[0].Mode).To(Equal("execute-and-wait"))
		})

		It("returns NOT_SUPPORTED when wait is missing and legacy is disabled", func() {
			config.LegacyEnabled = false
			res := newSubmitter(legacyOnly{rec}).Submit(ctx, request())
			Expect(res.Error().Code).To(Equal(domain.CodeNotSupported))
			Expect(rec.calls).To(BeZero())
		})

		It("returns NOT_SUPPORTED for LEGACY without submitTransaction", func() {
			req := request()
			req.Mode = wallet.ModeLegacy
			res := newSubmitter(waitOnly{rec}).Submit(ctx, req)
			Expect(res.Error().Code).To(Equal(domain.CodeNotSupported))
		})

		It("honors the configured override", func() {
			config.ForcedMode = wallet.ModeLegacy
			res := newSubmitter(waitAndLegacy{rec}).Submit(ctx, request())
			Expect(res.IsOk()).To(BeTrue())
			Expect(rec.methods).To(Equal([]string{"submitTransaction"}))
			Expect(rec.opts[0].Mode).To(BeEmpty())
		})
	})

	Context("envelope", func() {
		It("submits under the deduplication key with the memo embedded", func() {
			res := newSubmitter(waitOnly{rec}).Submit(ctx, request())
			Expect(res.IsOk()).To(BeTrue())
			Expect(rec.envs[0].CommandID).To(Equal("liq-42-a"))
			Expect(res.Value().CommandID).To(Equal("liq-42-a"))

			memo, ok := ledger.MemoOf(rec.envs[0].Commands[0])
			Expect(ok).To(BeTrue())
			Expect(memo).To(Equal(`{"requestId":"liq-42"}`))
		})

		It("does not mutate the caller's commands", func() {
			req := request()
			_ = newSubmitter(waitOnly{rec}).Submit(ctx, req)
			_, ok := ledger.MemoOf(req.Commands[0])
			Expect(ok).To(BeFalse())
		})
	})

	Context("failures", func() {
		It("retries rate limits and succeeds", func() {
			rec.respond = func(call int) (wallet.Response, error) {
				if call < 3 {
					return nil, rateLimitErr{}
				}
				return wallet.Response{"updateId": "upd-3"}, nil
			}
			res := newSubmitter(waitOnly{rec}).Submit(ctx, request())
			Expect(res.IsOk()).To(BeTrue())
			Expect(res.Value().LedgerUpdateID).To(Equal("upd-3"))
			Expect(rec.calls).To(Equal(3))
			Expect(slept).To(Equal([]time.Duration{2 * time.Second, 4 * time.Second}))
		})

		It("surfaces RATE_LIMITED after five attempts", func() {
			rec.respond = func(int) (wallet.Response, error) { return nil, rateLimitErr{} }
			res := newSubmitter(waitOnly{rec}).Submit(ctx, request())
			Expect(res.Error().Code).To(Equal(domain.CodeRateLimited))
			Expect(rec.calls).To(Equal(5))
		})

		It("classifies user rejection", func() {
			rec.respond = func(int) (wallet.Response, error) { return nil, errors.New("User rejected the request") }
			res := newSubmitter(waitOnly{rec}).Submit(ctx, request())
			Expect(res.Error().Code).To(Equal(domain.CodeUserCancelled))
			Expect(rec.calls).To(Equal(1))
		})

		It("converts provider panics", func() {
			res := newSubmitter(panicking{}).Submit(ctx, request())
			Expect(res.IsOk()).To(BeFalse())
			Expect(res.Error().Code).To(Equal(domain.CodeProviderError))
			Expect(res.Error().Message).To(ContainSubstring("sdk exploded"))
		})

		It("fails loudly on unrecognized responses", func() {
			rec.respond = func(int) (wallet.Response, error) { return wallet.Response{"hello": "world"}, nil }
			res := newSubmitter(waitOnly{rec}).Submit(ctx, request())
			Expect(res.Error().Code).To(Equal(domain.CodeUnrecognizedResponse))
		})
	})

	Context("PrepareTransfer", func() {
		var (
			p   *preparer
			req wallet.TransferRequest
		)

		BeforeEach(func() {
			now := time.Now()
			p = &preparer{
				waitOnly: waitOnly{rec},
				prepared: wallet.PreparedTransfer{
					"payload": map[string]interface{}{
						"commands": []interface{}{map[string]interface{}{"ExerciseCommand": map[string]interface{}{"choice": "TransferFactory_Transfer"}}},
						"actAs":    "alice::1220",
					},
				},
			}
			req = wallet.TransferRequest{
				Recipient:     "operator::1220",
				Amount:        decimal.RequireFromString("10"),
				Instrument:    wallet.InstrumentRef{Admin: "admin::1", ID: "USDC"},
				RequestedAt:   now,
				ExecuteBefore: now.Add(10 * time.Minute),
			}
			config.AuthToken = "token-1"
		})

		It("extracts the submission and forwards the auth token", func() {
			sub, derr := newSubmitter(p).PrepareTransfer(ctx, req)
			Expect(derr).To(BeNil())
			Expect(sub.Commands).To(HaveLen(1))
			Expect(sub.ActAs).To(Equal([]string{"alice::1220"}))
			Expect(p.token).To(Equal("token-1"))
		})

		It("rejects invalid requests before calling the provider", func() {
			req.Amount = decimal.Zero
			_, derr := newSubmitter(p).PrepareTransfer(ctx, req)
			Expect(derr.Code).To(Equal(domain.CodeValidation))
			Expect(p.requests).To(BeEmpty())
		})

		It("requires a preparing provider", func() {
			_, derr := newSubmitter(waitOnly{rec}).PrepareTransfer(ctx, req)
			Expect(derr.Code).To(Equal(domain.CodeNotSupported))
		})
	})
})
