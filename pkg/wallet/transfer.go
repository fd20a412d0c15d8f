package wallet

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearportx/amm-client/pkg/ledger"
)

// InstrumentRef identifies a token-standard instrument.
type InstrumentRef struct {
	Admin string `json:"instrument_admin"`
	ID    string `json:"instrument_id"`
}

// TransferRequest asks the provider to prepare a transfer of Amount of
// Instrument to Recipient, valid until ExecuteBefore.
type TransferRequest struct {
	Recipient     string          `json:"recipient"`
	Amount        decimal.Decimal `json:"amount"`
	Instrument    InstrumentRef   `json:"instrument"`
	RequestedAt   time.Time       `json:"requested_at"`
	ExecuteBefore time.Time       `json:"execute_before"`
	Memo          string          `json:"memo,omitempty"`
}

// Validate checks the fields every provider requires.
func (r TransferRequest) Validate() error {
	switch {
	case r.Recipient == "":
		return fmt.Errorf("recipient is required")
	case r.Instrument.Admin == "" || r.Instrument.ID == "":
		return fmt.Errorf("instrument admin and id are required")
	case !r.Amount.IsPositive():
		return fmt.Errorf("amount must be positive, got %s", r.Amount)
	case !r.ExecuteBefore.IsZero() && !r.ExecuteBefore.After(r.RequestedAt):
		return fmt.Errorf("execute_before must be after requested_at")
	}
	return nil
}

// PreparedTransfer is the provider's answer to PrepareTransfer in raw form.
type PreparedTransfer map[string]interface{}

// TransferSubmission is what a prepared transfer contributes to an envelope.
type TransferSubmission struct {
	Commands                     []ledger.Command
	ActAs                        []string
	ReadAs                       []string
	DisclosedContracts           []ledger.DisclosedContract
	PackageIDSelectionPreference []string
	SynchronizerID               string
}

// preparedContainers lists where providers put the submission, outermost first.
var preparedContainers = [][]string{
	nil,
	{"payload"},
	{"transaction"},
	{"submission"},
	{"payload", "transaction"},
}

// ExtractTransferSubmission finds the command list and its companions in a
// prepared transfer. It fails when no command list can be found anywhere.
func ExtractTransferSubmission(p PreparedTransfer) (*TransferSubmission, error) {
	if p == nil {
		return nil, fmt.Errorf("prepared transfer is empty")
	}

	for _, path := range preparedContainers {
		node, ok := lookup(map[string]interface{}(p), path)
		if !ok {
			continue
		}
		commands := commandList(node)
		if len(commands) == 0 {
			continue
		}

		sub := &TransferSubmission{
			Commands:                     commands,
			ActAs:                        partyList(node["actAs"]),
			ReadAs:                       partyList(node["readAs"]),
			PackageIDSelectionPreference: stringList(node["packageIdSelectionPreference"]),
		}
		sub.SynchronizerID, _ = node["synchronizerId"].(string)
		if list, ok := node["disclosedContracts"].([]interface{}); ok {
			for _, item := range list {
				if m, ok := item.(map[string]interface{}); ok {
					sub.DisclosedContracts = append(sub.DisclosedContracts, ledger.DisclosedContract(m))
				}
			}
		}
		return sub, nil
	}

	return nil, fmt.Errorf("prepared transfer contains no commands")
}

func lookup(root map[string]interface{}, path []string) (map[string]interface{}, bool) {
	node := root
	for _, key := range path {
		next, ok := node[key].(map[string]interface{})
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

func commandList(node map[string]interface{}) []ledger.Command {
	var out []ledger.Command
	switch cmds := node["commands"].(type) {
	case []interface{}:
		for _, c := range cmds {
			if m, ok := c.(map[string]interface{}); ok {
				out = append(out, ledger.Command(m))
			}
		}
	case []map[string]interface{}:
		for _, m := range cmds {
			out = append(out, ledger.Command(m))
		}
	case []ledger.Command:
		out = append(out, cmds...)
	}
	if len(out) == 0 {
		if single, ok := node["command"].(map[string]interface{}); ok {
			out = append(out, ledger.Command(single))
		}
	}
	return out
}

func partyList(v interface{}) []string {
	if s, ok := v.(string); ok && s != "" {
		return []string{s}
	}
	return stringList(v)
}

func stringList(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}
