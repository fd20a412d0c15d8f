package liquidity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MemoKind tags memos written by add-liquidity transfers.
const MemoKind = "add_liquidity"

const memoVersion = 1

// amountScale is the number of decimals amounts are rendered with.
const amountScale = 10

// MemoInstrument identifies the transferred asset.
type MemoInstrument struct {
	Admin string `json:"admin"`
	ID    string `json:"id"`
}

// Memo is the correlation payload embedded in each inbound transfer. The
// backend pairs the two transfers by RequestID and checks PoolCid,
// ReceiverParty and Deadline before consuming them.
type Memo struct {
	V             int            `json:"v"`
	RequestID     string         `json:"requestId"`
	Kind          string         `json:"kind"`
	Leg           Leg            `json:"leg"`
	PoolCid       string         `json:"poolCid"`
	ReceiverParty string         `json:"receiverParty"`
	Instrument    MemoInstrument `json:"instrument"`
	Amount        string         `json:"amount"`
	Deadline      string         `json:"deadline"`
}

// NewMemo builds the memo for one leg.
func NewMemo(state *SagaState, leg LegState) Memo {
	return Memo{
		V:             memoVersion,
		RequestID:     state.RequestID,
		Kind:          MemoKind,
		Leg:           leg.Leg,
		PoolCid:       state.PoolCid,
		ReceiverParty: state.Party,
		Instrument:    MemoInstrument{Admin: leg.InstrumentAdmin, ID: leg.InstrumentID},
		Amount:        FormatAmount(leg.Amount),
		Deadline:      state.Deadline.UTC().Format(time.RFC3339),
	}
}

// Encode renders the memo as compact JSON.
func (m Memo) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode memo: %w", err)
	}
	return string(data), nil
}

// ParseMemo decodes a memo read back from the ledger.
func ParseMemo(raw string) (Memo, error) {
	var m Memo
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Memo{}, fmt.Errorf("failed to decode memo: %w", err)
	}
	if m.Kind != MemoKind {
		return Memo{}, fmt.Errorf("unexpected memo kind %q", m.Kind)
	}
	return m, nil
}

// FormatAmount renders d with the fixed ledger scale, e.g. "100.0000000000".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(amountScale)
}

// DedupKey is the leg-scoped deduplication key.
func DedupKey(requestID string, leg Leg) string {
	switch leg {
	case LegA:
		return requestID + "-a"
	default:
		return requestID + "-b"
	}
}
