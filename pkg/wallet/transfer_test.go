package wallet_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clearportx/amm-client/pkg/wallet"
)

var _ = Describe("ExtractTransferSubmission", func() {
	command := map[string]interface{}{"ExerciseCommand": map[string]interface{}{"choice": "TransferFactory_Transfer"}}

	It("reads top-level commands and companions", func() {
		sub, err := wallet.ExtractTransferSubmission(wallet.PreparedTransfer{
			"commands":                     []interface{}{command},
			"actAs":                        []interface{}{"alice::1"},
			"readAs":                       "dso::1",
			"disclosedContracts":           []interface{}{map[string]interface{}{"contractId": "dc"}},
			"packageIdSelectionPreference": []interface{}{"pkg-a"},
			"synchronizerId":               "sync::1",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Commands).To(HaveLen(1))
		Expect(sub.ActAs).To(Equal([]string{"alice::1"}))
		Expect(sub.ReadAs).To(Equal([]string{"dso::1"}))
		Expect(sub.DisclosedContracts).To(HaveLen(1))
		Expect(sub.PackageIDSelectionPreference).To(Equal([]string{"pkg-a"}))
		Expect(sub.SynchronizerID).To(Equal("sync::1"))
	})

	It("reads nested transaction commands", func() {
		sub, err := wallet.ExtractTransferSubmission(wallet.PreparedTransfer{
			"transaction": map[string]interface{}{"commands": []interface{}{command}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Commands).To(HaveLen(1))
	})

	It("accepts a single command", func() {
		sub, err := wallet.ExtractTransferSubmission(wallet.PreparedTransfer{"command": command})
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Commands).To(HaveLen(1))
	})

	It("fails when there are no commands", func() {
		_, err := wallet.ExtractTransferSubmission(wallet.PreparedTransfer{"payload": map[string]interface{}{"commands": []interface{}{}}})
		Expect(err).To(MatchError(ContainSubstring("no commands")))
	})
})
